package pose

import "github.com/chenBenjamin97/pose-action/pkg/utils"

//Tensor is the classifier input: Steps frames of Channels x Joints float32 values, row major.
//The value of channel c (0 x, 1 y, 2 confidence) of joint j at time step t is
//Data[t*Channels*Joints + c*Joints + j].
type Tensor struct {
	Steps    int
	Channels int
	Joints   int
	Data     []float32

	//Used is the number of leading time steps holding real frames; the rest is zero padding.
	Used int
	//Skipped is the number of window frames left out because their keypoints were invalid.
	Skipped int
}

//Shape returns [Steps, Channels, Joints].
func (t *Tensor) Shape() [3]int {
	return [3]int{t.Steps, t.Channels, t.Joints}
}

//StepSize is the number of values in one time step.
func (t *Tensor) StepSize() int {
	return t.Channels * t.Joints
}

//Step returns the values of time step i. The slice aliases Data.
func (t *Tensor) Step(i int) []float32 {
	n := t.StepSize()
	return t.Data[i*n : (i+1)*n]
}

//Float64s returns a float64 copy of Data.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, len(t.Data))
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

//BuildTensor converts up to targetLength frames from the start of window into a tensor of exactly
//targetLength time steps. Frames whose keypoints are invalid are skipped and do not count as used.
//Missing time steps are appended as all-zero frames after the real ones.
func BuildTensor(window []KeypointFrame, targetLength int) *Tensor {
	if targetLength < 0 {
		targetLength = 0
	}

	t := &Tensor{
		Steps:    targetLength,
		Channels: utils.ChannelsNum,
		Joints:   utils.KeypointsNum,
	}
	//zero value of the backing array is the padding
	t.Data = make([]float32, targetLength*t.StepSize())

	take := len(window)
	if take > targetLength {
		take = targetLength
	}

	for _, frame := range window[:take] {
		v, err := frame.Vector()
		if err != nil {
			t.Skipped++
			continue
		}
		copy(t.Step(t.Used), v)
		t.Used++
	}

	return t
}
