package pose

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

func zeroStep() []float32 {
	return make([]float32, utils.ChannelsNum*utils.KeypointsNum)
}

func TestBuildTensorShape(t *testing.T) {
	const n = utils.WindowSize
	for l := 0; l <= n; l++ {
		window := make([]KeypointFrame, l)
		for i := range window {
			window[i] = syntheticFrame(float64(i+1) / 100)
		}

		tensor := BuildTensor(window, n)
		require.Equal(t, [3]int{n, utils.ChannelsNum, utils.KeypointsNum}, tensor.Shape(), "window length %d", l)
		require.Len(t, tensor.Data, n*utils.ChannelsNum*utils.KeypointsNum)
		require.Equal(t, l, tensor.Used)
	}
}

func TestBuildTensorPaddingTrails(t *testing.T) {
	const n, l = 30, 12
	window := make([]KeypointFrame, l)
	for i := range window {
		window[i] = syntheticFrame(float64(i+1) / 100)
	}

	tensor := BuildTensor(window, n)

	for i := 0; i < l; i++ {
		want, err := window[i].Vector()
		require.NoError(t, err)
		if diff := cmp.Diff(want, tensor.Step(i)); diff != "" {
			t.Fatalf("step %d mismatch (-want +got):\n%s", i, diff)
		}
	}
	for i := l; i < n; i++ {
		if diff := cmp.Diff(zeroStep(), tensor.Step(i)); diff != "" {
			t.Fatalf("padding step %d is not zero (-want +got):\n%s", i, diff)
		}
	}
}

func TestBuildTensorFullWindowHasNoPadding(t *testing.T) {
	const n = 30
	window := make([]KeypointFrame, n)
	for i := range window {
		window[i] = syntheticFrame(float64(i+1) / 100)
	}

	tensor := BuildTensor(window, n)
	assert.Equal(t, n, tensor.Used)
	assert.Zero(t, tensor.Skipped)

	for i := range window {
		want, err := window[i].Vector()
		require.NoError(t, err)
		assert.Equal(t, want, tensor.Step(i), "step %d", i)
	}
}

func TestBuildTensorEmptyWindow(t *testing.T) {
	tensor := BuildTensor(nil, 30)

	assert.Equal(t, 30, tensor.Steps)
	assert.Zero(t, tensor.Used)
	for _, v := range tensor.Data {
		require.Zero(t, v)
	}
}

func TestBuildTensorTruncatesFromTheStart(t *testing.T) {
	window := []KeypointFrame{syntheticFrame(0.1), syntheticFrame(0.2), syntheticFrame(0.3)}

	tensor := BuildTensor(window, 2)

	require.Equal(t, 2, tensor.Steps)
	first, _ := window[0].Vector()
	second, _ := window[1].Vector()
	assert.Equal(t, first, tensor.Step(0))
	assert.Equal(t, second, tensor.Step(1))
}

func TestBuildTensorSkipsInvalidFrames(t *testing.T) {
	bad := syntheticFrame(0.5)
	bad.Keypoints[LeftWrist] = Keypoint{X: math.NaN(), Y: 0.5, Confidence: 0.9}

	window := []KeypointFrame{syntheticFrame(0.1), bad, syntheticFrame(0.3)}
	tensor := BuildTensor(window, 5)

	assert.Equal(t, 2, tensor.Used)
	assert.Equal(t, 1, tensor.Skipped)

	first, _ := window[0].Vector()
	third, _ := window[2].Vector()
	assert.Equal(t, first, tensor.Step(0))
	assert.Equal(t, third, tensor.Step(1), "the invalid frame must not leave a hole")
	for i := 2; i < 5; i++ {
		assert.Equal(t, zeroStep(), tensor.Step(i))
	}
}

func TestBuildTensorNonPositiveTarget(t *testing.T) {
	tensor := BuildTensor([]KeypointFrame{syntheticFrame(0.1)}, -3)
	assert.Zero(t, tensor.Steps)
	assert.Empty(t, tensor.Data)
}

func TestTensorFloat64s(t *testing.T) {
	tensor := BuildTensor([]KeypointFrame{syntheticFrame(0.25)}, 1)
	got := tensor.Float64s()
	require.Len(t, got, len(tensor.Data))
	assert.InDelta(t, 0.25, got[0], 1e-6)
}
