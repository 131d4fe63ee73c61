package log_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chenBenjamin97/pose-action/pkg/log"
)

func TestCallerIsTheLoggingCode(t *testing.T) {
	l := log.NewLogger(log.Options{Level: "debug"})

	var buf bytes.Buffer
	l.SetOutput(&buf)
	t.Cleanup(func() { l.SetOutput(os.Stderr) })

	log.Info(log.Fields{"k": "v"}, "hello")
	line := buf.String()

	assert.Contains(t, line, "hello")
	assert.Contains(t, line, "[log_test.go:")
	assert.Contains(t, line, "[TestCallerIsTheLoggingCode()]")
	assert.NotContains(t, line, "[log.go:")
}

func TestCallerOfNestedHelpers(t *testing.T) {
	l := log.NewLogger(log.Options{Level: "debug"})

	var buf bytes.Buffer
	l.SetOutput(&buf)
	t.Cleanup(func() { l.SetOutput(os.Stderr) })

	func() {
		log.Warn(nil, "from a closure")
	}()

	assert.Contains(t, buf.String(), "[log_test.go:")
}
