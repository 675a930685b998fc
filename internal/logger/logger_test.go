package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interviewrec.log")
	log, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	log.Debugw("hidden")
	log.Infow("Recording started", "path", "/tmp/a.mp3")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry), string(data))
	assert.Equal(t, "Recording started", entry["msg"])
	assert.Equal(t, "/tmp/a.mp3", entry["path"])
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}
