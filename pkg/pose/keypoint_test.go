package pose

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

func TestKeypointFrameVectorLayout(t *testing.T) {
	f := NewKeypointFrame()
	f.Keypoints[LeftWrist] = Keypoint{X: 0.25, Y: 0.5, Confidence: 0.75}
	f.Keypoints["tail"] = Keypoint{X: 0.9, Y: 0.9, Confidence: 0.9} //not tracked

	v, err := f.Vector()
	require.NoError(t, err)
	require.Len(t, v, utils.ChannelsNum*utils.KeypointsNum)

	i, ok := JointIndex(LeftWrist)
	require.True(t, ok)

	assert.Equal(t, float32(0.25), v[i])
	assert.Equal(t, float32(0.5), v[utils.KeypointsNum+i])
	assert.Equal(t, float32(0.75), v[2*utils.KeypointsNum+i])

	var sum float32
	for _, x := range v {
		sum += x
	}
	assert.InDelta(t, 1.5, sum, 1e-6, "missing joints must stay zero")
}

func TestKeypointFrameValidate(t *testing.T) {
	cases := map[string]Keypoint{
		"nan x":             {X: math.NaN(), Y: 0.1, Confidence: 0.1},
		"inf y":             {X: 0.1, Y: math.Inf(1), Confidence: 0.1},
		"negative x":        {X: -0.1, Y: 0.1, Confidence: 0.1},
		"confidence over 1": {X: 0.1, Y: 0.1, Confidence: 1.5},
	}

	for name, kp := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewKeypointFrame()
			f.Keypoints[Nose] = kp
			err := f.Validate()
			assert.True(t, errors.Is(err, ErrInvalidKeypoint), "got %v", err)
			_, err = f.Vector()
			assert.ErrorIs(t, err, ErrInvalidKeypoint)
		})
	}

	f := NewKeypointFrame()
	f.Keypoints[Nose] = Keypoint{X: 0, Y: 1, Confidence: 1}
	assert.NoError(t, f.Validate())
}

func TestDisplayPointsFlipY(t *testing.T) {
	f := NewKeypointFrame()
	f.Keypoints[Neck] = Keypoint{X: 0.5, Y: 0.8, Confidence: 1}
	f.Keypoints[Nose] = Keypoint{X: 0.4, Y: 0.9, Confidence: 1}

	points := f.DisplayPoints()
	require.Len(t, points, 2)

	//Joints order: nose before neck
	assert.InDelta(t, 0.4, points[0].X, 1e-9)
	assert.InDelta(t, 0.1, points[0].Y, 1e-9)
	assert.InDelta(t, 0.5, points[1].X, 1e-9)
	assert.InDelta(t, 0.2, points[1].Y, 1e-9)
}

func TestJointsAreUnique(t *testing.T) {
	seen := map[Joint]bool{}
	for _, j := range Joints {
		assert.False(t, seen[j], "duplicate joint %s", j)
		seen[j] = true
	}
	_, ok := JointIndex("tail")
	assert.False(t, ok)
}
