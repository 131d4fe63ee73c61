package pose

import (
	"context"
	"sync/atomic"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//FrameHandler processes one frame to completion.
type FrameHandler interface {
	HandleFrame(ctx context.Context, frame Frame)
}

//RunnerStats counts what happened to submitted frames.
type RunnerStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	Queued    int    `json:"queued"`
}

//Runner serializes frames from any number of producers into one FrameHandler. Submit never blocks:
//when the inbox is full the new frame is dropped, so the handler always works on recent frames.
type Runner struct {
	handler FrameHandler
	inbox   chan Frame

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
}

//NewRunner returns a runner with an inbox of size frames. A non-positive size uses utils.DefaultInboxSize.
func NewRunner(handler FrameHandler, size int) *Runner {
	if size <= 0 {
		size = utils.DefaultInboxSize
	}
	return &Runner{
		handler: handler,
		inbox:   make(chan Frame, size),
	}
}

//Submit queues frame and reports whether it was accepted. A dropped frame is released immediately.
func (r *Runner) Submit(frame Frame) bool {
	r.submitted.Add(1)

	select {
	case r.inbox <- frame:
		return true
	default:
		r.dropped.Add(1)
		frame.release()
		log.Debug(log.Fields{"seq": frame.Seq}, "[pose.Submit] inbox full, frame dropped")
		return false
	}
}

//Run handles queued frames one at a time until ctx is cancelled, then releases whatever is left.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()
		case frame := <-r.inbox:
			r.handler.HandleFrame(ctx, frame)
			frame.release()
			r.processed.Add(1)
		}
	}
}

func (r *Runner) drain() {
	for {
		select {
		case frame := <-r.inbox:
			frame.release()
		default:
			return
		}
	}
}

func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Submitted: r.submitted.Load(),
		Dropped:   r.dropped.Load(),
		Processed: r.processed.Load(),
		Queued:    len(r.inbox),
	}
}
