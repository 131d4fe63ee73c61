package pose

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chenBenjamin97/pose-action/pkg/log"
)

//Config configures a Pipeline.
type Config struct {
	//WindowSize is both the window capacity and the tensor length.
	WindowSize int
	Debounce   DebounceConfig
	//SessionID names this pipeline in logs, stats and the journal. Empty generates one.
	SessionID string
}

//Stats is a snapshot of pipeline counters. It is safe to take from any goroutine.
type Stats struct {
	SessionID              string    `json:"session_id"`
	Frames                 uint64    `json:"frames"`
	DetectionFailures      uint64    `json:"detection_failures"`
	NoBodyFrames           uint64    `json:"no_body_frames"`
	Bodies                 uint64    `json:"bodies"`
	ClassificationPasses   uint64    `json:"classification_passes"`
	ClassificationFailures uint64    `json:"classification_failures"`
	SkippedKeypointFrames  uint64    `json:"skipped_keypoint_frames"`
	ActionsDetected        uint64    `json:"actions_detected"`
	WindowFill             int       `json:"window_fill"`
	WindowSize             int       `json:"window_size"`
	WatchedLabel           string    `json:"watched_label"`
	DebounceState          string    `json:"debounce_state"`
	LastLabel              string    `json:"last_label,omitempty"`
	LastDetection          time.Time `json:"last_detection,omitempty"`
}

type counters struct {
	frames                 atomic.Uint64
	detectionFailures      atomic.Uint64
	noBodyFrames           atomic.Uint64
	bodies                 atomic.Uint64
	classificationPasses   atomic.Uint64
	classificationFailures atomic.Uint64
	skippedKeypointFrames  atomic.Uint64
	actionsDetected        atomic.Uint64
	windowFill             atomic.Int64
	lastDetection          atomic.Int64 //unix nanos, 0 when nothing fired
	lastLabel              atomic.Value //string
}

//Pipeline wires detection, windowing, classification and debouncing for a single stream of frames.
//HandleFrame must be called from one goroutine at a time; Stats may be called from anywhere.
type Pipeline struct {
	detector   Detector
	classifier Classifier
	observer   Observer

	window    *Window
	debouncer *Debouncer
	sessionID string

	counters counters
}

//NewPipeline returns a pipeline with an empty window in the Idle state. observer may be nil.
func NewPipeline(detector Detector, classifier Classifier, observer Observer, cfg Config) *Pipeline {
	if observer == nil {
		observer = Observers{}
	}

	p := &Pipeline{
		detector:   detector,
		classifier: classifier,
		observer:   observer,
		window:     NewWindow(cfg.WindowSize),
		debouncer:  NewDebouncer(cfg.Debounce),
		sessionID:  cfg.SessionID,
	}
	if p.sessionID == "" {
		p.sessionID = uuid.NewString()
	}
	p.counters.lastLabel.Store("")
	return p
}

//HandleFrame runs one frame through the pipeline. Failures are logged and counted; they never stop the
//pipeline, and the next frame retries from scratch.
func (p *Pipeline) HandleFrame(ctx context.Context, frame Frame) {
	p.counters.frames.Add(1)
	fields := log.Fields{"session_id": p.sessionID, "seq": frame.Seq}

	bodies, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.counters.detectionFailures.Add(1)
		fields["error"] = err.Error()
		log.Error(fields, "[pose.HandleFrame] pose detection failed, skipping frame")
		return
	}

	if len(bodies) == 0 {
		p.counters.noBodyFrames.Add(1)
		log.Debug(fields, "[pose.HandleFrame] no body in frame")
		return
	}

	now := p.debouncer.cfg.Clock.Now()
	p.counters.bodies.Add(uint64(len(bodies)))

	for i, body := range bodies {
		p.observer.Notify(Event{
			Kind:   PointsObserved,
			Seq:    frame.Seq,
			At:     now,
			Body:   i,
			Points: body.DisplayPoints(),
		})
	}

	//only the first body is tracked, there is no identity association between frames
	p.window.Push(bodies[0])
	p.counters.windowFill.Store(int64(p.window.Len()))

	p.classify(ctx, frame, fields)
}

func (p *Pipeline) classify(ctx context.Context, frame Frame, fields log.Fields) {
	tensor := BuildTensor(p.window.Snapshot(), p.window.Cap())
	if tensor.Skipped > 0 {
		p.counters.skippedKeypointFrames.Add(uint64(tensor.Skipped))
		log.Warn(log.Fields{"session_id": p.sessionID, "seq": frame.Seq, "skipped": tensor.Skipped},
			"[pose.HandleFrame] frames with invalid keypoints left out of the tensor")
	}

	prediction, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		p.counters.classificationFailures.Add(1)
		fields["error"] = err.Error()
		log.Error(fields, "[pose.HandleFrame] classification failed")
		return
	}
	p.counters.classificationPasses.Add(1)

	label, confidence := prediction.Label, prediction.Confidence()
	p.counters.lastLabel.Store(label)

	now := p.debouncer.cfg.Clock.Now()
	p.observer.Notify(Event{
		Kind:       ActionLabeled,
		Seq:        frame.Seq,
		At:         now,
		Label:      label,
		Confidence: confidence,
	})

	action, fired := p.debouncer.Observe(label, confidence)
	if !fired {
		return
	}

	p.counters.actionsDetected.Add(1)
	p.counters.lastDetection.Store(action.DetectedAt.UnixNano())

	log.Info(log.Fields{"session_id": p.sessionID, "seq": frame.Seq, "label": label, "confidence": confidence},
		"[pose.HandleFrame] action detected")

	p.observer.Notify(Event{
		Kind:       ActionDetected,
		Seq:        frame.Seq,
		At:         action.DetectedAt,
		Label:      action.Label,
		Confidence: action.Confidence,
		Action:     &action,
	})
}

//SessionID identifies this pipeline instance in logs and stats.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

func (p *Pipeline) Stats() Stats {
	cfg := p.debouncer.cfg
	s := Stats{
		SessionID:              p.sessionID,
		Frames:                 p.counters.frames.Load(),
		DetectionFailures:      p.counters.detectionFailures.Load(),
		NoBodyFrames:           p.counters.noBodyFrames.Load(),
		Bodies:                 p.counters.bodies.Load(),
		ClassificationPasses:   p.counters.classificationPasses.Load(),
		ClassificationFailures: p.counters.classificationFailures.Load(),
		SkippedKeypointFrames:  p.counters.skippedKeypointFrames.Load(),
		ActionsDetected:        p.counters.actionsDetected.Load(),
		WindowFill:             int(p.counters.windowFill.Load()),
		WindowSize:             p.window.Cap(),
		WatchedLabel:           cfg.Label,
		DebounceState:          Idle.String(),
		LastLabel:              p.counters.lastLabel.Load().(string),
	}

	//same rule as Debouncer.expire, evaluated on the atomics so it does not touch pipeline state
	if last := p.counters.lastDetection.Load(); last != 0 {
		s.LastDetection = time.Unix(0, last)
		if cfg.Clock.Now().Sub(s.LastDetection) < cfg.Cooldown {
			s.DebounceState = Suppressing.String()
		}
	}

	return s
}
