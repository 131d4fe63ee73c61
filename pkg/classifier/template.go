package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/floats"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//ErrShapeMismatch is returned when a tensor does not have the shape the classifier was built for.
var ErrShapeMismatch = errors.New("classifier: tensor shape mismatch")

//TemplateSet is the on-disk description of a Template classifier: reference keypoint sequences per label
type TemplateSet struct {
	//Temperature scales distances before the softmax, lower is sharper. Defaults to 1.
	Temperature float64         `json:"temperature"`
	Templates   []TemplateEntry `json:"templates"`
}

//TemplateEntry is one reference recording of an action
type TemplateEntry struct {
	Label  string               `json:"label"`
	Frames []pose.KeypointFrame `json:"frames"`
}

//Template labels a tensor by its euclidean distance to reference tensors of known actions.
//Probabilities are a softmax over negative distances, summed per label.
type Template struct {
	labels      []string //label of each prototype
	prototypes  [][]float64
	temperature float64
	steps       int
}

//NewTemplate builds reference tensors of windowSize steps from set
func NewTemplate(set TemplateSet, windowSize int) (*Template, error) {
	if len(set.Templates) == 0 {
		return nil, errors.New("NewTemplate: no templates given")
	}
	if windowSize <= 0 {
		windowSize = utils.WindowSize
	}

	t := &Template{temperature: set.Temperature, steps: windowSize}
	if t.temperature <= 0 {
		t.temperature = 1
	}

	for i, entry := range set.Templates {
		if entry.Label == "" {
			return nil, fmt.Errorf("NewTemplate: template %d has no label", i)
		}
		tensor := pose.BuildTensor(entry.Frames, windowSize)
		if tensor.Skipped > 0 {
			return nil, fmt.Errorf("NewTemplate: template %d (%s): %w", i, entry.Label, pose.ErrInvalidKeypoint)
		}
		t.labels = append(t.labels, entry.Label)
		t.prototypes = append(t.prototypes, tensor.Float64s())
	}

	return t, nil
}

//LoadTemplates reads a TemplateSet JSON file. A positive temperature overrides the one in the file.
func LoadTemplates(path string, windowSize int, temperature float64) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTemplates: could not read '%s': %w", path, err)
	}

	var set TemplateSet
	if err := json.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("LoadTemplates: could not parse '%s': %w", path, err)
	}
	if temperature > 0 {
		set.Temperature = temperature
	}

	t, err := NewTemplate(set, windowSize)
	if err != nil {
		return nil, err
	}

	log.Info(log.Fields{"path": path, "templates": len(t.prototypes), "labels": t.Labels()}, "[classifier.LoadTemplates] templates loaded")
	return t, nil
}

//Labels returns the distinct labels this classifier can predict, sorted
func (t *Template) Labels() []string {
	out := make([]string, 0, len(t.labels))
	for _, l := range t.labels {
		if !utils.InSlice(l, out) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

func (t *Template) Classify(ctx context.Context, tensor *pose.Tensor) (pose.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return pose.Prediction{}, err
	}

	x := tensor.Float64s()
	if tensor.Steps != t.steps || len(x) != len(t.prototypes[0]) {
		return pose.Prediction{}, fmt.Errorf("%w: got %v, want %d steps", ErrShapeMismatch, tensor.Shape(), t.steps)
	}

	scores := make([]float64, len(t.prototypes))
	for i, proto := range t.prototypes {
		scores[i] = -floats.Distance(x, proto, 2) / t.temperature
	}

	lse := floats.LogSumExp(scores)
	probs := make(map[string]float64, len(scores))
	for i, s := range scores {
		probs[t.labels[i]] += math.Exp(s - lse)
	}

	best, bestP := "", -1.0
	for _, label := range t.Labels() {
		if probs[label] > bestP {
			best, bestP = label, probs[label]
		}
	}

	return pose.Prediction{Label: best, Probabilities: probs}, nil
}
