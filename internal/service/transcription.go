package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"interviewrec/audio"
	"interviewrec/events"
	"interviewrec/transcribe"
)

// ErrSourceMissing is returned when the file to transcribe does not exist.
var ErrSourceMissing = errors.New("audio file not found")

// Options selects how a file is transcribed.
type Options struct {
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

func (o Options) merge(def Options) Options {
	if o.Language == "" {
		o.Language = def.Language
	}
	if o.Model == "" {
		o.Model = def.Model
	}
	if o.Mode == "" {
		o.Mode = def.Mode
	}
	return o
}

// TranscriptionService runs transcriptions, persists transcripts and reports
// progress on the event bus.
type TranscriptionService struct {
	Dispatcher *transcribe.Dispatcher
	Defaults   Options
	// KeepAudio keeps recordings after a successful transcription.
	KeepAudio   bool
	FFprobePath string
	// Credential, when set, is checked before remote jobs are accepted.
	Credential func() (string, error)

	emit events.Emitter
	log  *zap.SugaredLogger

	mu       sync.Mutex
	recorded map[string]bool
}

func NewTranscriptionService(d *transcribe.Dispatcher, defaults Options, emit events.Emitter, log *zap.SugaredLogger) *TranscriptionService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if emit == nil {
		emit = events.Nop{}
	}
	return &TranscriptionService{
		Dispatcher: d,
		Defaults:   defaults,
		KeepAudio:  true,
		emit:       emit,
		log:        log,
		recorded:   make(map[string]bool),
	}
}

// MarkRecorded records that path was produced by the recorder, which makes
// it eligible for deletion when KeepAudio is off.
func (s *TranscriptionService) MarkRecorded(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded[filepath.Clean(path)] = true
}

func (s *TranscriptionService) takeRecorded(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := filepath.Clean(path)
	ok := s.recorded[key]
	delete(s.recorded, key)
	return ok
}

// Busy reports whether a transcription is running.
func (s *TranscriptionService) Busy() bool {
	return s.Dispatcher.Busy()
}

func (s *TranscriptionService) request(ctx context.Context, path string, opts Options) (transcribe.Request, error) {
	opts = opts.merge(s.Defaults)

	mode, err := transcribe.ParseMode(opts.Mode)
	if err != nil {
		return transcribe.Request{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return transcribe.Request{}, fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	if mode == transcribe.ModeRemote && s.Credential != nil {
		if _, err := s.Credential(); err != nil {
			return transcribe.Request{}, err
		}
	}

	if d, err := audio.Duration(ctx, path, s.FFprobePath); err == nil {
		s.log.Infof("Transcribing %s (duration %s, mode=%s)", filepath.Base(path), audio.FormatClock(d), mode)
	} else {
		s.log.Debugf("Duration of %s unknown: %v", path, err)
	}

	return transcribe.Request{
		Path:       path,
		Language:   opts.Language,
		Model:      opts.Model,
		Mode:       mode,
		OnProgress: s.progress,
	}, nil
}

func (s *TranscriptionService) progress(p transcribe.Progress) {
	switch {
	case p.Line != "":
		s.emit.Emit(events.Progress(p.Line))
	case p.State == transcribe.JobSubmitted:
		s.emit.Emit(events.Status("Remote job submitted: " + p.RemoteID))
	case p.State == transcribe.JobPolling:
		s.emit.Emit(events.Status(fmt.Sprintf("Remote job %s (attempt %d)", p.Status, p.Attempt)))
	}
}

// Submit starts a background transcription. ErrBusy and precondition
// errors are returned synchronously; everything else arrives as a
// job_completed event.
func (s *TranscriptionService) Submit(ctx context.Context, path string, opts Options) (*transcribe.Job, error) {
	req, err := s.request(ctx, path, opts)
	if err != nil {
		s.emit.Emit(events.Status(statusFor(err)))
		return nil, err
	}

	if s.Dispatcher.Busy() {
		s.emit.Emit(events.Status(statusFor(transcribe.ErrBusy)))
		return nil, transcribe.ErrBusy
	}
	s.emit.Emit(events.Status("Transcribing..."))

	// The job outlives the caller's request.
	job, err := s.Dispatcher.Submit(context.WithoutCancel(ctx), req, func(job *transcribe.Job) {
		s.finish(job)
	})
	if err != nil {
		s.emit.Emit(events.Status(statusFor(err)))
		return nil, err
	}
	return job, nil
}

// Run transcribes in the foreground.
func (s *TranscriptionService) Run(ctx context.Context, path string, opts Options) (*transcribe.Job, error) {
	req, err := s.request(ctx, path, opts)
	if err != nil {
		s.emit.Emit(events.Status(statusFor(err)))
		return nil, err
	}

	s.emit.Emit(events.Status("Transcribing..."))
	job, err := s.Dispatcher.Run(ctx, req)
	if job == nil {
		s.emit.Emit(events.Status(statusFor(err)))
		return nil, err
	}
	job = s.finish(job)
	return job, job.Err()
}

// finish persists the transcript, applies the keep-audio policy and
// publishes the outcome.
func (s *TranscriptionService) finish(job *transcribe.Job) *transcribe.Job {
	recorded := s.takeRecorded(job.SourcePath)

	if job.State == transcribe.JobCompleted && job.Result != nil {
		res := *job.Result
		if res.TranscriptPath == "" {
			out := transcribe.TranscriptPath(job.SourcePath)
			if err := os.WriteFile(out, []byte(res.Text), 0644); err != nil {
				s.log.Errorf("Failed to save transcript: %v", err)
			} else {
				res.TranscriptPath = out
			}
		}
		job.Result = &res

		if !s.KeepAudio && recorded && res.TranscriptPath != "" && (res.Dialogue == nil || res.Dialogue.Error == "") {
			if err := os.Remove(job.SourcePath); err != nil {
				s.log.Warnf("Failed to remove audio %s: %v", job.SourcePath, err)
			} else {
				s.log.Infof("Removed audio %s", job.SourcePath)
			}
		}
		s.log.Infof("Transcript saved: %s", res.TranscriptPath)
	}

	s.emit.Emit(events.JobCompleted(job))
	if job.State == transcribe.JobCompleted {
		s.emit.Emit(events.Status("Transcription complete"))
	} else {
		s.emit.Emit(events.Status(statusFor(job.Err())))
	}
	return job
}

// statusFor maps an error to a short status line.
func statusFor(err error) string {
	switch {
	case err == nil:
		return "Ready"
	case errors.Is(err, transcribe.ErrBusy):
		return "Transcription already running"
	case errors.Is(err, transcribe.ErrRecognizerNotFound):
		return "Recognizer not found"
	case errors.Is(err, transcribe.ErrRecognizerOutputMissing):
		return "Transcription produced no output"
	case errors.Is(err, transcribe.ErrMissingCredential):
		return "Remote credential not set"
	case errors.Is(err, transcribe.ErrRemoteTimeout):
		return "Remote transcription timed out"
	case errors.Is(err, transcribe.ErrRemoteJobFailed):
		msg := strings.TrimPrefix(err.Error(), transcribe.ErrRemoteJobFailed.Error())
		return "Remote transcription failed" + msg
	case errors.Is(err, ErrSourceMissing):
		return "Audio file not found"
	}
	return "Error: " + err.Error()
}
