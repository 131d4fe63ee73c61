package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplateKind(t *testing.T) {
	b, err := json.Marshal(testSet())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, b, 0644))

	cls, closeFn, err := New(context.Background(), Options{Kind: "template", Templates: path, WindowSize: testWindow, Temperature: 0.5})
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())

	tmpl, ok := cls.(*Template)
	require.True(t, ok)
	assert.Equal(t, 0.5, tmpl.temperature)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, closeFn, err := New(context.Background(), Options{Kind: "svm"})
	assert.Error(t, err)
	assert.NoError(t, closeFn())
}

func TestNewPythonNeedsScript(t *testing.T) {
	_, _, err := New(context.Background(), Options{Kind: "python"})
	assert.Error(t, err)
}
