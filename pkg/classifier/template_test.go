package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

const testWindow = 10

func motion(label string, wristX func(step int) float64) TemplateEntry {
	frames := make([]pose.KeypointFrame, testWindow)
	for i := range frames {
		f := pose.NewKeypointFrame()
		f.Keypoints[pose.LeftShoulder] = pose.Keypoint{X: 0.4, Y: 0.7, Confidence: 0.9}
		f.Keypoints[pose.LeftWrist] = pose.Keypoint{X: wristX(i), Y: 0.7, Confidence: 0.9}
		frames[i] = f
	}
	return TemplateEntry{Label: label, Frames: frames}
}

func testSet() TemplateSet {
	return TemplateSet{
		Temperature: 0.1,
		Templates: []TemplateEntry{
			motion("jab", func(i int) float64 { return 0.4 + 0.05*float64(i) }),
			motion("idle", func(int) float64 { return 0.4 }),
		},
	}
}

func TestTemplateClassify(t *testing.T) {
	cls, err := NewTemplate(testSet(), testWindow)
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "jab"}, cls.Labels())

	probe := motion("", func(i int) float64 { return 0.41 + 0.05*float64(i) })
	prediction, err := cls.Classify(context.Background(), pose.BuildTensor(probe.Frames, testWindow))
	require.NoError(t, err)

	assert.Equal(t, "jab", prediction.Label)
	assert.Greater(t, prediction.Confidence(), 0.95)
	assert.InDelta(t, 1.0, prediction.Probabilities["jab"]+prediction.Probabilities["idle"], 1e-9)
}

func TestTemplateClassifyPartialWindow(t *testing.T) {
	cls, err := NewTemplate(testSet(), testWindow)
	require.NoError(t, err)

	//an empty window is closer to neither motion, but must still produce a full distribution
	prediction, err := cls.Classify(context.Background(), pose.BuildTensor(nil, testWindow))
	require.NoError(t, err)
	assert.Contains(t, []string{"jab", "idle"}, prediction.Label)
	assert.Len(t, prediction.Probabilities, 2)
}

func TestTemplateShapeMismatch(t *testing.T) {
	cls, err := NewTemplate(testSet(), testWindow)
	require.NoError(t, err)

	_, err = cls.Classify(context.Background(), pose.BuildTensor(nil, testWindow+1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTemplateCancelledContext(t *testing.T) {
	cls, err := NewTemplate(testSet(), testWindow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cls.Classify(ctx, pose.BuildTensor(nil, testWindow))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTemplateRejectsBadInput(t *testing.T) {
	_, err := NewTemplate(TemplateSet{}, testWindow)
	assert.Error(t, err)

	_, err = NewTemplate(TemplateSet{Templates: []TemplateEntry{{Frames: nil}}}, testWindow)
	assert.Error(t, err)

	bad := motion("jab", func(int) float64 { return 1.5 })
	_, err = NewTemplate(TemplateSet{Templates: []TemplateEntry{bad}}, testWindow)
	assert.ErrorIs(t, err, pose.ErrInvalidKeypoint)
}

func TestLoadTemplates(t *testing.T) {
	b, err := json.Marshal(testSet())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, b, 0644))

	cls, err := LoadTemplates(path, testWindow, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "jab"}, cls.Labels())

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "missing.json"), testWindow, 0)
	assert.Error(t, err)
}
