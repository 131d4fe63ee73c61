//Package classifier provides the action classifiers the pipeline can be configured with.
package classifier

import (
	"context"
	"fmt"

	"github.com/chenBenjamin97/pose-action/pkg/pose"
	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//Options selects and configures a classifier backend
type Options struct {
	Kind        string //one of utils.ClassifierKinds
	Templates   string
	Temperature float64
	Python      string
	Script      string
	Model       string
	WindowSize  int
}

//New builds the classifier named by opts.Kind. The returned func releases it and is never nil.
func New(ctx context.Context, opts Options) (pose.Classifier, func() error, error) {
	noop := func() error { return nil }

	if !utils.InSlice(opts.Kind, utils.ClassifierKinds) {
		return nil, noop, fmt.Errorf("classifier.New: unknown kind '%s', want one of %v", opts.Kind, utils.ClassifierKinds)
	}

	switch opts.Kind {
	case "python":
		sp, err := StartSubprocess(ctx, SubprocessConfig{
			Python:     opts.Python,
			Script:     opts.Script,
			Model:      opts.Model,
			WindowSize: opts.WindowSize,
		})
		if err != nil {
			return nil, noop, err
		}
		return sp, sp.Close, nil
	default:
		t, err := LoadTemplates(opts.Templates, opts.WindowSize, opts.Temperature)
		if err != nil {
			return nil, noop, err
		}
		return t, noop, nil
	}
}
