package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewrec/audio"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLibraryListGroupsByStem(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	sess := &Session{
		ID:         "a",
		OutputPath: filepath.Join(dir, "interview_20260301_100000.mp3"),
		StartTime:  start,
		EndTime:    &end,
		Devices:    audio.Devices{Monitor: "sink.monitor", Source: "mic"},
		Size:       4,
	}
	writeFile(t, sess.OutputPath, "data")
	writeFile(t, filepath.Join(dir, "interview_20260301_100000.txt"), "hello")
	require.NoError(t, lib.SaveMeta(sess))

	// Transcript only, audio removed after transcription.
	writeFile(t, filepath.Join(dir, "interview_20260302_090000.txt"), "bye")
	later := start.Add(24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "interview_20260302_090000.txt"), later, later))

	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	recs, err := lib.List()
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "interview_20260302_090000", recs[0].Name)
	assert.Empty(t, recs[0].AudioPath)
	assert.NotEmpty(t, recs[0].TranscriptPath)

	assert.Equal(t, "interview_20260301_100000", recs[1].Name)
	assert.Equal(t, sess.OutputPath, recs[1].AudioPath)
	assert.Equal(t, int64(4), recs[1].Size)
	assert.True(t, recs[1].StartTime.Equal(start))
	assert.Equal(t, 90*time.Second, recs[1].Duration)
}

func TestLibraryListMissingDir(t *testing.T) {
	recs, err := NewLibrary(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLibraryDelete(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir)
	writeFile(t, filepath.Join(dir, "x.mp3"), "data")
	writeFile(t, filepath.Join(dir, "x.txt"), "text")

	require.NoError(t, lib.Delete("x"))
	assert.NoFileExists(t, filepath.Join(dir, "x.mp3"))
	assert.NoFileExists(t, filepath.Join(dir, "x.txt"))

	assert.ErrorIs(t, lib.Delete("x"), ErrRecordingNotFound)
	assert.ErrorIs(t, lib.Delete("../x"), ErrRecordingNotFound)
	assert.ErrorIs(t, lib.Delete(""), ErrRecordingNotFound)
}
