package pose

import "github.com/chenBenjamin97/pose-action/pkg/utils"

//Window is a fixed capacity FIFO of the most recent keypoint frames. Pushing into a full Window
//overwrites the oldest frame. Not safe for concurrent use.
type Window struct {
	frames []KeypointFrame
	start  int //index of the oldest frame
	size   int
}

//NewWindow returns an empty window. A non-positive capacity falls back to utils.WindowSize.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = utils.WindowSize
	}
	return &Window{frames: make([]KeypointFrame, capacity)}
}

//Push appends f, evicting the oldest frame when the window is full.
func (w *Window) Push(f KeypointFrame) {
	if w.size < len(w.frames) {
		w.frames[(w.start+w.size)%len(w.frames)] = f
		w.size++
		return
	}

	w.frames[w.start] = f
	w.start = (w.start + 1) % len(w.frames)
}

//Snapshot returns the frames oldest first. The returned slice is owned by the caller.
func (w *Window) Snapshot() []KeypointFrame {
	out := make([]KeypointFrame, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.frames[(w.start+i)%len(w.frames)]
	}
	return out
}

func (w *Window) Len() int { return w.size }

func (w *Window) Cap() int { return len(w.frames) }
