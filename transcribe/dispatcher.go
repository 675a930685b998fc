package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher runs at most one transcription at a time and routes requests
// to the local or remote transcriber.
type Dispatcher struct {
	local  Transcriber
	remote Transcriber
	log    *zap.SugaredLogger

	mu      sync.Mutex
	busy    bool
	current *Job
	last    *Job
}

// NewDispatcher creates a dispatcher. Either transcriber may be nil, in
// which case that mode is rejected.
func NewDispatcher(local, remote Transcriber, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{local: local, remote: remote, log: log}
}

// Busy reports whether a transcription is in flight.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Current returns a snapshot of the in-flight job, or the last finished one.
func (d *Dispatcher) Current() *Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	j := d.current
	if j == nil {
		j = d.last
	}
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

func (d *Dispatcher) transcriber(mode Mode) (Transcriber, error) {
	var t Transcriber
	switch mode {
	case ModeLocal, "":
		t = d.local
	case ModeRemote:
		t = d.remote
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s transcriber not configured", ErrUnknownMode, mode)
	}
	return t, nil
}

// acquire marks the dispatcher busy and registers a new job.
func (d *Dispatcher) acquire(req Request) (*Job, Transcriber, error) {
	t, err := d.transcriber(req.Mode)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return nil, nil, ErrBusy
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeLocal
	}
	job := &Job{
		ID:         uuid.New().String(),
		SourcePath: req.Path,
		Language:   req.Language,
		Model:      req.Model,
		Mode:       mode,
		State:      JobPending,
		CreatedAt:  time.Now(),
	}
	d.busy = true
	d.current = job
	return job, t, nil
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	d.last = d.current
	d.current = nil
}

// Run transcribes synchronously. It returns ErrBusy without a job when
// another transcription is in flight; otherwise the finished job and its error.
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Job, error) {
	job, t, err := d.acquire(req)
	if err != nil {
		return nil, err
	}
	func() {
		defer d.release()
		d.execute(ctx, t, job, req)
	}()

	snap := d.snapshot(job)
	return snap, snap.err
}

// Submit starts a transcription in the background and returns the pending
// job. done is called with the finished job after the dispatcher has been
// released, so done may submit again.
func (d *Dispatcher) Submit(ctx context.Context, req Request, done func(*Job)) (*Job, error) {
	job, t, err := d.acquire(req)
	if err != nil {
		return nil, err
	}
	pending := d.snapshot(job)

	go func() {
		func() {
			defer d.release()
			d.execute(ctx, t, job, req)
		}()

		if done == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorf("Transcription completion callback panicked: %v", r)
			}
		}()
		done(d.snapshot(job))
	}()

	return pending, nil
}

func (d *Dispatcher) execute(ctx context.Context, t Transcriber, job *Job, req Request) {
	var (
		res *Result
		err error
	)

	inner := req
	inner.OnProgress = func(p Progress) {
		d.update(job, func(j *Job) {
			if j.State.Terminal() {
				return
			}
			if p.State != "" {
				j.State = p.State
			}
			if p.RemoteID != "" {
				j.RemoteID = p.RemoteID
			}
			if p.Attempt > 0 {
				j.Attempts = p.Attempt
			}
		})
		req.progress(p)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorf("Transcriber panicked: %v", r)
				err = fmt.Errorf("transcriber panicked: %v", r)
			}
		}()
		d.log.Infof("Transcription %s started: %s (mode=%s)", job.ID, job.SourcePath, job.Mode)
		res, err = t.Transcribe(ctx, inner)
	}()

	if err == nil && res == nil {
		err = errors.New("transcriber returned no result")
	}
	if err == nil && res.Kind == ResultDialogue {
		res.Text = FormatDialogue(res.Dialogue)
		// A completed remote job may still carry the worker's error.
		if res.Dialogue != nil && res.Dialogue.Error != "" {
			err = fmt.Errorf("%w: %s", ErrRemoteJobFailed, res.Dialogue.Error)
		}
	}

	d.update(job, func(j *Job) {
		now := time.Now()
		j.FinishedAt = &now
		j.Result = res
		switch {
		case err == nil:
			j.State = JobCompleted
		case errors.Is(err, ErrRemoteTimeout):
			j.State = JobTimedOut
		default:
			j.State = JobFailed
		}
		if err != nil {
			j.err = err
			j.Error = err.Error()
		}
	})

	if err != nil {
		d.log.Errorf("Transcription %s failed: %v", job.ID, err)
	} else {
		d.log.Infof("Transcription %s completed (%s)", job.ID, res.Kind)
	}
}

func (d *Dispatcher) update(job *Job, fn func(*Job)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(job)
}

func (d *Dispatcher) snapshot(job *Job) *Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *job
	return &cp
}
