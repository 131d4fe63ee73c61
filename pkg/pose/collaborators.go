package pose

import (
	"context"
	"time"
)

//Frame is one captured video frame. Payload is whatever the configured Detector understands.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Payload   interface{}

	//Release frees the payload. The Runner calls it once the frame is handled or dropped.
	Release func()
}

func (f Frame) release() {
	if f.Release != nil {
		f.Release()
	}
}

//Detector finds bodies in a frame. An error means the frame could not be processed; an empty result
//means no body was found.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]KeypointFrame, error)
}

//DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame Frame) ([]KeypointFrame, error)

func (f DetectorFunc) Detect(ctx context.Context, frame Frame) ([]KeypointFrame, error) {
	return f(ctx, frame)
}

//Prediction is a classifier result: the winning label and the probability of every label.
type Prediction struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
}

//Confidence is the probability of the winning label, 0 when the classifier did not report it.
func (p Prediction) Confidence() float64 {
	return p.Probabilities[p.Label]
}

//Classifier labels a tensor built by BuildTensor.
type Classifier interface {
	Classify(ctx context.Context, t *Tensor) (Prediction, error)
}

//ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, t *Tensor) (Prediction, error)

func (f ClassifierFunc) Classify(ctx context.Context, t *Tensor) (Prediction, error) {
	return f(ctx, t)
}

//Passthrough returns a Detector for frames whose payload already is a []KeypointFrame, detected
//upstream. Other payloads go to next; with a nil next they fail with ErrUnsupportedPayload.
func Passthrough(next Detector) Detector {
	return passthrough{next: next}
}

type passthrough struct {
	next Detector
}

func (p passthrough) Detect(ctx context.Context, frame Frame) ([]KeypointFrame, error) {
	if bodies, ok := frame.Payload.([]KeypointFrame); ok {
		return bodies, nil
	}
	if p.next == nil {
		return nil, ErrUnsupportedPayload
	}
	return p.next.Detect(ctx, frame)
}
