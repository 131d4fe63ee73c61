package video

import (
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//Submitter accepts captured frames without blocking, *pose.Runner is one
type Submitter interface {
	Submit(frame pose.Frame) bool
}

//openPoseParts maps an OpenPose COCO heatmap channel to the joint it locates
var openPoseParts = [utils.KeypointsNum]pose.Joint{
	pose.Nose, pose.Neck,
	pose.RightShoulder, pose.RightElbow, pose.RightWrist,
	pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist,
	pose.RightHip, pose.RightKnee, pose.RightAnkle,
	pose.LeftHip, pose.LeftKnee, pose.LeftAnkle,
	pose.RightEye, pose.LeftEye, pose.RightEar, pose.LeftEar,
}

//heatmapKeypoint turns a heatmap peak at (px, py) on a w*h map into a normalized keypoint with the origin at the
//bottom left. Returns false below minConfidence.
func heatmapKeypoint(px, py, w, h int, conf, minConfidence float64) (pose.Keypoint, bool) {
	if conf <= minConfidence || w <= 0 || h <= 0 {
		return pose.Keypoint{}, false
	}
	if conf > 1 {
		conf = 1
	}

	x := clamp01(float64(px) / float64(max(w-1, 1)))
	y := clamp01(float64(py) / float64(max(h-1, 1)))
	return pose.Keypoint{X: x, Y: 1 - y, Confidence: conf}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
