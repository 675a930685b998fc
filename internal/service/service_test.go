package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewrec/audio"
	"interviewrec/events"
	"interviewrec/session"
	"interviewrec/transcribe"
)

type sink struct {
	mu     sync.Mutex
	events []events.Event
	jobs   chan *transcribe.Job
}

func newSink() *sink {
	return &sink{jobs: make(chan *transcribe.Job, 4)}
}

func (s *sink) Emit(e events.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	if e.Kind == events.KindJobCompleted {
		s.jobs <- e.Job.(*transcribe.Job)
	}
}

func (s *sink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.Kind == events.KindStatus {
			out = append(out, e.Status)
		}
	}
	return out
}

func (s *sink) waitJob(t *testing.T) *transcribe.Job {
	t.Helper()
	select {
	case j := <-s.jobs:
		return j
	case <-time.After(5 * time.Second):
		t.Fatal("no job_completed event")
		return nil
	}
}

type stub func(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)

func (f stub) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	return f(ctx, req)
}

func dialogueStub(context.Context, transcribe.Request) (*transcribe.Result, error) {
	return &transcribe.Result{Kind: transcribe.ResultDialogue, Dialogue: &transcribe.Dialogue{
		Language:    "en",
		NumSpeakers: 1,
		Turns:       []transcribe.Turn{{Speaker: "SPEAKER_00", Start: 0, End: 5, Text: "hi"}},
	}}, nil
}

func writeAudio(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "interview.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really mp3"), 0o644))
	return path
}

func newTranscription(local, remote transcribe.Transcriber, s *sink) *TranscriptionService {
	d := transcribe.NewDispatcher(local, remote, nil)
	ts := NewTranscriptionService(d, Options{Language: "en", Mode: "remote"}, s, nil)
	ts.FFprobePath = "/nonexistent/ffprobe"
	return ts
}

func TestTranscriptionService_RunPersistsDialogue(t *testing.T) {
	s := newSink()
	ts := newTranscription(nil, stub(dialogueStub), s)
	path := writeAudio(t, t.TempDir())

	job, err := ts.Run(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, transcribe.JobCompleted, job.State)

	out := transcribe.TranscriptPath(path)
	assert.Equal(t, out, job.Result.TranscriptPath)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SPEAKER_00 [00:00 - 00:05]:\nhi\n")

	_, err = os.Stat(path)
	assert.NoError(t, err, "audio kept by default")

	statuses := s.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, "Transcription complete", statuses[len(statuses)-1])
}

func TestTranscriptionService_RemovesRecordedAudio(t *testing.T) {
	s := newSink()
	ts := newTranscription(nil, stub(dialogueStub), s)
	ts.KeepAudio = false
	dir := t.TempDir()

	picked := writeAudio(t, dir)
	_, err := ts.Run(context.Background(), picked, Options{})
	require.NoError(t, err)
	_, err = os.Stat(picked)
	assert.NoError(t, err, "files the recorder did not produce are never removed")

	ts.MarkRecorded(picked)
	_, err = ts.Run(context.Background(), picked, Options{})
	require.NoError(t, err)
	_, err = os.Stat(picked)
	assert.True(t, os.IsNotExist(err))
}

func TestTranscriptionService_FailureKeepsAudio(t *testing.T) {
	s := newSink()
	ts := newTranscription(nil, stub(func(context.Context, transcribe.Request) (*transcribe.Result, error) {
		return nil, transcribe.ErrRemoteTimeout
	}), s)
	ts.KeepAudio = false
	path := writeAudio(t, t.TempDir())
	ts.MarkRecorded(path)

	job, err := ts.Run(context.Background(), path, Options{})
	assert.ErrorIs(t, err, transcribe.ErrRemoteTimeout)
	assert.Equal(t, transcribe.JobTimedOut, job.State)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	statuses := s.statuses()
	assert.Equal(t, "Remote transcription timed out", statuses[len(statuses)-1])
}

func TestTranscriptionService_RemoteErrorPayloadKeepsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"j1","status":"COMPLETED","output":{"error":"Failed to download audio"}}`))
	}))
	defer srv.Close()
	t.Setenv("INTERVIEWREC_TEST_KEY", "secret")

	s := newSink()
	remote := transcribe.NewRemoteTranscriber(transcribe.RemoteConfig{
		Endpoint:      srv.URL + "/v2/ep/run",
		CredentialEnv: "INTERVIEWREC_TEST_KEY",
	}, nil)
	ts := newTranscription(nil, remote, s)
	ts.KeepAudio = false
	path := writeAudio(t, t.TempDir())
	ts.MarkRecorded(path)

	job, err := ts.Run(context.Background(), path, Options{})
	require.ErrorIs(t, err, transcribe.ErrRemoteJobFailed)
	require.NotNil(t, job)
	assert.Equal(t, transcribe.JobFailed, job.State)
	assert.Contains(t, job.Error, "Failed to download audio")
	require.NotNil(t, job.Result)
	assert.Equal(t, "Error: Failed to download audio\n", job.Result.Text)

	assert.FileExists(t, path)
	assert.NoFileExists(t, transcribe.TranscriptPath(path))
	assert.Contains(t, s.statuses(), "Remote transcription failed: Failed to download audio")
	assert.NotContains(t, s.statuses(), "Transcription complete")
}

func TestTranscriptionService_MissingCredentialIsPrecondition(t *testing.T) {
	s := newSink()
	called := false
	ts := newTranscription(nil, stub(func(context.Context, transcribe.Request) (*transcribe.Result, error) {
		called = true
		return nil, nil
	}), s)
	ts.Credential = func() (string, error) {
		return "", fmt.Errorf("%w: $RUNPOD_API_KEY is empty", transcribe.ErrMissingCredential)
	}
	path := writeAudio(t, t.TempDir())

	job, err := ts.Submit(context.Background(), path, Options{})
	assert.Nil(t, job)
	assert.ErrorIs(t, err, transcribe.ErrMissingCredential)
	assert.True(t, IsPrecondition(err))
	assert.False(t, ts.Busy())
	assert.Contains(t, s.statuses(), "Remote credential not set")

	// Local jobs do not need the credential.
	_, err = ts.Submit(context.Background(), path, Options{Mode: "local"})
	assert.ErrorIs(t, err, transcribe.ErrUnknownMode)
	assert.False(t, called)
}

func TestTranscriptionService_Preconditions(t *testing.T) {
	s := newSink()
	ts := newTranscription(nil, stub(dialogueStub), s)

	_, err := ts.Submit(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), Options{})
	assert.ErrorIs(t, err, ErrSourceMissing)
	assert.True(t, IsPrecondition(err))

	_, err = ts.Submit(context.Background(), writeAudio(t, t.TempDir()), Options{Mode: "cloud"})
	assert.ErrorIs(t, err, transcribe.ErrUnknownMode)

	_, err = ts.Run(context.Background(), writeAudio(t, t.TempDir()), Options{Mode: "local"})
	assert.ErrorIs(t, err, transcribe.ErrUnknownMode)
	assert.False(t, ts.Busy())
}

func TestTranscriptionService_SubmitBusy(t *testing.T) {
	s := newSink()
	release := make(chan struct{})
	ts := newTranscription(nil, stub(func(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
		<-release
		return dialogueStub(ctx, req)
	}), s)
	dir := t.TempDir()
	path := writeAudio(t, dir)

	job, err := ts.Submit(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, transcribe.JobPending, job.State)

	_, err = ts.Submit(context.Background(), path, Options{})
	assert.ErrorIs(t, err, transcribe.ErrBusy)
	assert.True(t, IsConflict(err))

	close(release)
	done := s.waitJob(t)
	assert.Equal(t, transcribe.JobCompleted, done.State)
	assert.Equal(t, transcribe.TranscriptPath(path), done.Result.TranscriptPath)
}

func TestRecordingService_OutputPath(t *testing.T) {
	rs := NewRecordingService(nil, nil, "/rec", nil, nil)
	rs.now = func() time.Time { return time.Date(2026, 3, 7, 9, 5, 1, 0, time.Local) }

	assert.Equal(t, filepath.Join("/rec", "interview_20260307_090501.mp3"), rs.OutputPath(""))
	assert.Equal(t, filepath.Join("/rec", "interview_20260307_090501_Jane_Doe.mp3"), rs.OutputPath(" Jane Doe/ "))
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newRecorder(t *testing.T, s *sink) *session.Recorder {
	t.Helper()
	requireShell(t)
	script := filepath.Join(t.TempDir(), "encoder.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
trap 'printf "ID3data" > "$1"; exit 255' INT
while true; do sleep 0.05; done
`), 0o755))

	rec := session.NewRecorder(session.Config{
		Resolver:  audio.StaticResolver{Monitor: "sink.monitor", Source: "mic"},
		StopGrace: 2 * time.Second,
	}, s, nil)
	rec.Command = func(_ audio.Devices, out string) (*exec.Cmd, error) {
		return exec.Command("sh", script, out), nil
	}
	rec.Monitor = nil
	return rec
}

func TestRecordingService_StopSubmitsRecording(t *testing.T) {
	s := newSink()
	ts := newTranscription(nil, stub(dialogueStub), s)
	ts.KeepAudio = false
	rs := NewRecordingService(newRecorder(t, s), ts, t.TempDir(), s, nil)

	sess, err := rs.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, session.StateRecording, rs.Status().State)
	assert.NotNil(t, rs.Status().Session)

	_, err = rs.Start(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrAlreadyRecording)
	assert.True(t, IsConflict(err))

	time.Sleep(50 * time.Millisecond)

	stopped, job, err := rs.Stop(context.Background(), true)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, sess.OutputPath, stopped.OutputPath)

	done := s.waitJob(t)
	assert.Equal(t, transcribe.JobCompleted, done.State)

	_, err = os.Stat(sess.OutputPath)
	assert.True(t, os.IsNotExist(err), "recording removed when keep-audio is off")
	_, err = os.Stat(transcribe.TranscriptPath(sess.OutputPath))
	assert.NoError(t, err)
	assert.Contains(t, s.statuses(), "Recording")
}

func TestRecordingService_CancelAndIdleStop(t *testing.T) {
	s := newSink()
	rs := NewRecordingService(newRecorder(t, s), nil, t.TempDir(), s, nil)

	require.NoError(t, rs.Cancel(context.Background()))
	sess, job, err := rs.Stop(context.Background(), true)
	assert.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, job)

	started, err := rs.Start(context.Background(), "call")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rs.Cancel(context.Background()))

	assert.Equal(t, session.StateIdle, rs.Status().State)
	_, err = os.Stat(started.OutputPath)
	assert.NoError(t, err, "cancel keeps the file")
	assert.Contains(t, s.statuses(), "Recording cancelled")

	recs, err := rs.Library.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, started.OutputPath, recs[0].AudioPath)
	assert.True(t, recs[0].StartTime.Equal(started.StartTime))
	assert.Positive(t, recs[0].Duration)
}
