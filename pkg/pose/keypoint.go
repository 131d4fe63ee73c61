package pose

import (
	"fmt"
	"math"

	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//Joint names one anatomical landmark.
type Joint string

const (
	Nose          Joint = "nose"
	LeftEye       Joint = "left_eye"
	RightEye      Joint = "right_eye"
	LeftEar       Joint = "left_ear"
	RightEar      Joint = "right_ear"
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
	LeftElbow     Joint = "left_elbow"
	RightElbow    Joint = "right_elbow"
	LeftWrist     Joint = "left_wrist"
	RightWrist    Joint = "right_wrist"
	LeftHip       Joint = "left_hip"
	RightHip      Joint = "right_hip"
	LeftKnee      Joint = "left_knee"
	RightKnee     Joint = "right_knee"
	LeftAnkle     Joint = "left_ankle"
	RightAnkle    Joint = "right_ankle"
	Neck          Joint = "neck"
)

//Joints is the tracked joint order. A joint's index here is its column in every tensor frame.
var Joints = [utils.KeypointsNum]Joint{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	Neck,
}

var jointIndex = func() map[Joint]int {
	m := make(map[Joint]int, len(Joints))
	for i, j := range Joints {
		m[j] = i
	}
	return m
}()

//JointIndex returns the tensor column of j, or false when j is not tracked.
func JointIndex(j Joint) (int, bool) {
	i, ok := jointIndex[j]
	return i, ok
}

//Keypoint is one detected landmark. X and Y are normalized to [0,1] with the origin at the bottom left.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

//Point is a 2D point in display space (origin top left).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

//KeypointFrame holds the keypoints of one body in one video frame.
type KeypointFrame struct {
	Keypoints map[Joint]Keypoint `json:"keypoints"`
}

//NewKeypointFrame returns an empty frame ready to be filled.
func NewKeypointFrame() KeypointFrame {
	return KeypointFrame{Keypoints: make(map[Joint]Keypoint, len(Joints))}
}

//Validate reports the first tracked keypoint that cannot be used as tensor input.
func (f KeypointFrame) Validate() error {
	for _, j := range Joints {
		kp, ok := f.Keypoints[j]
		if !ok {
			continue
		}
		if !unit(kp.X) || !unit(kp.Y) || !unit(kp.Confidence) {
			return fmt.Errorf("%w: %s (%v, %v, %v)", ErrInvalidKeypoint, j, kp.X, kp.Y, kp.Confidence)
		}
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

//Vector returns the frame as ChannelsNum rows of KeypointsNum values: all x, then all y, then all
//confidences, in Joints order. Missing joints stay zero.
func (f KeypointFrame) Vector() ([]float32, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	v := make([]float32, utils.ChannelsNum*utils.KeypointsNum)
	for i, j := range Joints {
		kp, ok := f.Keypoints[j]
		if !ok {
			continue
		}
		v[i] = float32(kp.X)
		v[utils.KeypointsNum+i] = float32(kp.Y)
		v[2*utils.KeypointsNum+i] = float32(kp.Confidence)
	}
	return v, nil
}

//DisplayPoints converts the detected keypoints to display space by flipping the y axis (y' = 1 - y).
func (f KeypointFrame) DisplayPoints() []Point {
	points := make([]Point, 0, len(f.Keypoints))
	for _, j := range Joints {
		if kp, ok := f.Keypoints[j]; ok {
			points = append(points, Point{X: kp.X, Y: 1 - kp.Y})
		}
	}
	return points
}
