package transcribe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranscriber func(ctx context.Context, req Request) (*Result, error)

func (f stubTranscriber) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

func plain(text string) stubTranscriber {
	return func(context.Context, Request) (*Result, error) {
		return &Result{Kind: ResultPlain, Text: text}, nil
	}
}

func TestDispatcher_RejectsConcurrentRequest(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	local := stubTranscriber(func(_ context.Context, req Request) (*Result, error) {
		started <- struct{}{}
		if req.Path == "a.mp3" {
			<-release
		}
		return &Result{Kind: ResultPlain, Text: "ok"}, nil
	})
	d := NewDispatcher(local, nil, nil)

	finished := make(chan *Job, 2)
	pending, err := d.Submit(context.Background(), Request{Path: "a.mp3"}, func(j *Job) {
		// The dispatcher is free again by the time the callback runs.
		_, err := d.Submit(context.Background(), Request{Path: "b.mp3", Mode: ModeLocal}, func(j2 *Job) { finished <- j2 })
		assert.NoError(t, err)
		finished <- j
	})
	require.NoError(t, err)
	assert.Equal(t, JobPending, pending.State)
	assert.NotEmpty(t, pending.ID)

	<-started
	assert.True(t, d.Busy())

	_, err = d.Submit(context.Background(), Request{Path: "c.mp3"}, nil)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = d.Run(context.Background(), Request{Path: "c.mp3"})
	assert.ErrorIs(t, err, ErrBusy)

	release <- struct{}{}

	jobs := map[string]*Job{}
	for i := 0; i < 2; i++ {
		select {
		case j := <-finished:
			jobs[j.SourcePath] = j
		case <-time.After(2 * time.Second):
			t.Fatal("completion callback not called")
		}
	}
	require.Contains(t, jobs, "a.mp3")
	require.Contains(t, jobs, "b.mp3")
	assert.Equal(t, JobCompleted, jobs["a.mp3"].State)
	assert.Equal(t, "ok", jobs["a.mp3"].Result.Text)
	assert.NotNil(t, jobs["a.mp3"].FinishedAt)
	assert.Equal(t, JobCompleted, jobs["b.mp3"].State)
}

func TestDispatcher_FormatsRemoteDialogue(t *testing.T) {
	remote := stubTranscriber(func(_ context.Context, req Request) (*Result, error) {
		req.OnProgress(Progress{State: JobSubmitted, RemoteID: "r-1"})
		req.OnProgress(Progress{State: JobPolling, RemoteID: "r-1", Attempt: 2, Status: StatusInProgress})
		return &Result{Kind: ResultDialogue, Dialogue: &Dialogue{
			Language:    "en",
			NumSpeakers: 1,
			Turns:       []Turn{{Speaker: "SPEAKER_00", Start: 0, End: 5, Text: "hi"}},
		}}, nil
	})
	d := NewDispatcher(nil, remote, nil)

	var seen []Progress
	job, err := d.Run(context.Background(), Request{
		Path:       "x.mp3",
		Mode:       ModeRemote,
		OnProgress: func(p Progress) { seen = append(seen, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.State)
	assert.Equal(t, "r-1", job.RemoteID)
	assert.Equal(t, 2, job.Attempts)
	assert.Contains(t, job.Result.Text, "SPEAKER_00 [00:00 - 00:05]:\nhi\n")
	assert.Len(t, seen, 2)
	assert.False(t, d.Busy())
	assert.Equal(t, job.ID, d.Current().ID)
}

func TestDispatcher_DialogueErrorFailsJob(t *testing.T) {
	d := NewDispatcher(nil, stubTranscriber(func(_ context.Context, req Request) (*Result, error) {
		req.progress(Progress{State: JobSubmitted, RemoteID: "r-9"})
		return &Result{Kind: ResultDialogue, Dialogue: &Dialogue{Error: "Failed to download audio"}}, nil
	}), nil)

	job, err := d.Run(context.Background(), Request{Path: "x.mp3", Mode: ModeRemote})
	require.ErrorIs(t, err, ErrRemoteJobFailed)
	assert.Equal(t, JobFailed, job.State)
	assert.Contains(t, job.Error, "Failed to download audio")
	require.NotNil(t, job.Result)
	assert.Equal(t, "Error: Failed to download audio\n", job.Result.Text)
	assert.Equal(t, "r-9", job.RemoteID)
}

func TestDispatcher_ErrorStates(t *testing.T) {
	cases := []struct {
		err   error
		state JobState
	}{
		{fmt.Errorf("%w: job x", ErrRemoteTimeout), JobTimedOut},
		{fmt.Errorf("%w: oom", ErrRemoteJobFailed), JobFailed},
		{ErrRecognizerOutputMissing, JobFailed},
	}
	for _, tc := range cases {
		d := NewDispatcher(stubTranscriber(func(context.Context, Request) (*Result, error) {
			return nil, tc.err
		}), nil, nil)

		job, err := d.Run(context.Background(), Request{Path: "x.mp3"})
		assert.ErrorIs(t, err, tc.err)
		require.NotNil(t, job)
		assert.Equal(t, tc.state, job.State)
		assert.Equal(t, tc.err.Error(), job.Error)
		assert.True(t, errors.Is(job.Err(), tc.err))
		assert.False(t, d.Busy())
	}
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	calls := 0
	d := NewDispatcher(stubTranscriber(func(context.Context, Request) (*Result, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return &Result{Kind: ResultPlain, Text: "second"}, nil
	}), nil, nil)

	job, err := d.Run(context.Background(), Request{Path: "x.mp3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, JobFailed, job.State)
	assert.False(t, d.Busy())

	job, err = d.Run(context.Background(), Request{Path: "x.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "second", job.Result.Text)
}

func TestDispatcher_UnknownMode(t *testing.T) {
	d := NewDispatcher(plain("x"), nil, nil)

	_, err := d.Run(context.Background(), Request{Path: "x.mp3", Mode: "cloud"})
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = d.Submit(context.Background(), Request{Path: "x.mp3", Mode: ModeRemote}, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.False(t, d.Busy())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)

	m, err = ParseMode(" Remote ")
	require.NoError(t, err)
	assert.Equal(t, ModeRemote, m)

	_, err = ParseMode("cloud")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
