package pose

import (
	"fmt"
	"time"
)

//EventKind tags an Event.
type EventKind int

const (
	//PointsObserved carries the display points of one detected body.
	PointsObserved EventKind = iota + 1
	//ActionLabeled carries the result of one classification pass.
	ActionLabeled
	//ActionDetected carries a debounced detection of the watched label.
	ActionDetected
)

func (k EventKind) String() string {
	switch k {
	case PointsObserved:
		return "points_observed"
	case ActionLabeled:
		return "action_labeled"
	case ActionDetected:
		return "action_detected"
	default:
		return "unknown"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "points_observed":
		*k = PointsObserved
	case "action_labeled":
		*k = ActionLabeled
	case "action_detected":
		*k = ActionDetected
	default:
		return fmt.Errorf("pose: unknown event kind %q", b)
	}
	return nil
}

//Event is what observers receive from the pipeline.
type Event struct {
	Kind EventKind `json:"kind"`
	//Seq is the sequence number of the frame that produced the event.
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`

	//PointsObserved
	Body   int     `json:"body"`
	Points []Point `json:"points,omitempty"`

	//ActionLabeled and ActionDetected
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`

	//ActionDetected
	Action *ActionEvent `json:"action,omitempty"`
}

//Observer receives pipeline events synchronously, on the pipeline goroutine.
type Observer interface {
	Notify(ev Event)
}

//ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

//Observers fans an event out to every member, in order.
type Observers []Observer

func (o Observers) Notify(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(ev)
		}
	}
}
