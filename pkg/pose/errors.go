package pose

import "errors"

var (
	//ErrInvalidKeypoint is returned when a keypoint cannot be turned into tensor values.
	ErrInvalidKeypoint = errors.New("pose: invalid keypoint")

	//ErrUnsupportedPayload is returned by detectors that do not understand a frame payload.
	ErrUnsupportedPayload = errors.New("pose: unsupported frame payload")

	//ErrClassifierClosed is returned by classifiers used after Close.
	ErrClassifierClosed = errors.New("pose: classifier is closed")
)
