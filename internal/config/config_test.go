package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFrom_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(filepath.Join(dir, "missing.toml"), filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Mode)
	assert.Equal(t, "RUNPOD_API_KEY", cfg.CredentialEnv)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 120, cfg.PollAttempts)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.StopGrace)
	assert.True(t, cfg.KeepAudio)
	assert.Empty(t, cfg.Path)
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
output_dir = "/srv/interviews"
mode = "remote"
remote_endpoint = "https://api.runpod.ai/v2/abc/run"
language = "ru"
keep_audio = false
poll_interval = "2s"
stop_grace = "3s"
max_speakers = 4
`)
	t.Setenv("INTERVIEWREC_LANGUAGE", "de")
	t.Setenv("INTERVIEWREC_POLL_ATTEMPTS", "7")
	t.Setenv("INTERVIEWREC_AUTO_TRANSCRIBE", "false")

	cfg, err := LoadFrom(path, "")
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "/srv/interviews", cfg.OutputDir)
	assert.Equal(t, "remote", cfg.Mode)
	assert.Equal(t, "de", cfg.Language)
	assert.False(t, cfg.KeepAudio)
	assert.False(t, cfg.AutoTranscribe)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.StopGrace)
	assert.Equal(t, 7, cfg.PollAttempts)
	assert.Equal(t, 4, cfg.MaxSpeakers)
}

func TestLoadFrom_DotEnv(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "INTERVIEWREC_MODEL=small\nINTERVIEWREC_LOG_LEVEL=debug\n")
	t.Setenv("INTERVIEWREC_MODEL", "")
	t.Setenv("INTERVIEWREC_LOG_LEVEL", "warn")
	os.Unsetenv("INTERVIEWREC_MODEL")

	cfg, err := LoadFrom("", env)
	require.NoError(t, err)
	assert.Equal(t, "small", cfg.Model)
	assert.Equal(t, "warn", cfg.LogLevel, "process environment wins over .env")
}

func TestLoadFrom_Invalid(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad mode":          `mode = "cloud"`,
		"remote no url":     `mode = "remote"`,
		"bad duration":      `poll_interval = "soon"`,
		"bad log level":     `log_level = "loud"`,
		"speakers inverted": "min_speakers = 5\nmax_speakers = 2",
		"broken toml":       `mode = `,
	}
	for name, body := range cases {
		path := writeFile(t, dir, "c.toml", body)
		_, err := LoadFrom(path, "")
		assert.Error(t, err, name)
	}

	t.Setenv("INTERVIEWREC_KEEP_AUDIO", "sometimes")
	_, err := LoadFrom("", "")
	assert.Error(t, err)
}

func TestFilePath_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "interviewrec", "config.toml"), FilePath())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rec"), expandTilde("~/rec"))
	assert.Equal(t, "/abs", expandTilde("/abs"))
}
