package pose

import (
	"context"
	"sync"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

//syntheticFrame returns a frame where every joint carries values derived from v, so frames built from
//different v are distinguishable in a tensor.
func syntheticFrame(v float64) KeypointFrame {
	f := NewKeypointFrame()
	for i, j := range Joints {
		f.Keypoints[j] = Keypoint{X: v, Y: v / 2, Confidence: float64(i+1) / 100}
	}
	return f
}

type recorder struct {
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) ofKind(k EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

//scriptedClassifier returns predictions in order and records the tensors it saw.
type scriptedClassifier struct {
	predictions []Prediction
	errs        []error
	seen        []*Tensor
}

func (s *scriptedClassifier) Classify(_ context.Context, t *Tensor) (Prediction, error) {
	i := len(s.seen)
	s.seen = append(s.seen, t)
	if i < len(s.errs) && s.errs[i] != nil {
		return Prediction{}, s.errs[i]
	}
	if i < len(s.predictions) {
		return s.predictions[i], nil
	}
	return Prediction{Label: "idle", Probabilities: map[string]float64{"idle": 1}}, nil
}

func jab(p float64) Prediction {
	return Prediction{Label: "jab", Probabilities: map[string]float64{"jab": p, "idle": 1 - p}}
}
