package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"interviewrec/events"
	"interviewrec/session"
	"interviewrec/transcribe"
)

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// RecordingService drives the recorder on behalf of the CLI and the control
// server.
type RecordingService struct {
	Recorder      *session.Recorder
	Transcription *TranscriptionService
	Library       *session.Library
	OutputDir     string

	emit events.Emitter
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewRecordingService(rec *session.Recorder, ts *TranscriptionService, outputDir string, emit events.Emitter, log *zap.SugaredLogger) *RecordingService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if emit == nil {
		emit = events.Nop{}
	}
	return &RecordingService{
		Recorder:      rec,
		Transcription: ts,
		Library:       session.NewLibrary(outputDir),
		OutputDir:     outputDir,
		emit:          emit,
		log:           log,
		now:           time.Now,
	}
}

// OutputPath returns the timestamped recording path for name.
func (s *RecordingService) OutputPath(name string) string {
	base := "interview_" + s.now().Format("20060102_150405")
	if name = strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(name), "_"), "_."); name != "" {
		base += "_" + name
	}
	return filepath.Join(s.OutputDir, base+".mp3")
}

// Start begins a new recording.
func (s *RecordingService) Start(ctx context.Context, name string) (*session.Session, error) {
	sess, err := s.Recorder.Start(ctx, s.OutputPath(name))
	if err != nil {
		s.log.Errorf("Failed to start recording: %v", err)
		s.emit.Emit(events.Status(recordingStatus(err)))
		return nil, err
	}
	s.emit.Emit(events.Status("Recording"))
	return sess, nil
}

// Stop finalizes the active recording and optionally submits it for
// transcription. It returns a nil session when nothing was recording.
func (s *RecordingService) Stop(ctx context.Context, withTranscript bool) (*session.Session, *transcribe.Job, error) {
	if s.Recorder.State() == session.StateRecording {
		s.emit.Emit(events.Status("Finalizing recording..."))
	}

	sess, err := s.Recorder.Stop(ctx)
	if err != nil {
		s.log.Errorf("Recording failed: %v", err)
		s.emit.Emit(events.Status(recordingStatus(err)))
		return sess, nil, err
	}
	if sess == nil {
		return nil, nil, nil
	}

	s.saveMeta(sess)
	s.emit.Emit(events.Status(fmt.Sprintf("Saved %s (%.1f MB)", filepath.Base(sess.OutputPath), float64(sess.Size)/(1024*1024))))

	if !withTranscript || s.Transcription == nil {
		return sess, nil, nil
	}

	s.Transcription.MarkRecorded(sess.OutputPath)
	job, err := s.Transcription.Submit(ctx, sess.OutputPath, Options{})
	return sess, job, err
}

// Cancel stops an active recording without transcribing it. The file is kept.
func (s *RecordingService) Cancel(ctx context.Context) error {
	if s.Recorder.State() != session.StateRecording {
		return nil
	}
	sess, err := s.Recorder.Stop(ctx)
	if err != nil {
		s.emit.Emit(events.Status(recordingStatus(err)))
		return err
	}
	if sess == nil {
		return nil
	}
	s.saveMeta(sess)
	s.log.Infof("Recording cancelled: %s", sess.OutputPath)
	s.emit.Emit(events.Status("Recording cancelled"))
	return nil
}

func (s *RecordingService) saveMeta(sess *session.Session) {
	if s.Library == nil {
		return
	}
	if err := s.Library.SaveMeta(sess); err != nil {
		s.log.Warnf("Failed to save recording metadata: %v", err)
	}
}

// Status summarizes the recorder and transcriber for status queries.
type Status struct {
	State   session.State    `json:"state"`
	Session *session.Session `json:"session,omitempty"`
	Elapsed string           `json:"elapsed,omitempty"`
	Busy    bool             `json:"busy"`
	Job     *transcribe.Job  `json:"job,omitempty"`
}

func (s *RecordingService) Status() Status {
	st := Status{
		State:   s.Recorder.State(),
		Session: s.Recorder.Active(),
	}
	if st.Session != nil {
		st.Elapsed = session.FormatElapsed(int64(s.Recorder.Elapsed() / time.Second))
	}
	if s.Transcription != nil {
		st.Busy = s.Transcription.Busy()
		st.Job = s.Transcription.Dispatcher.Current()
	}
	return st
}

func recordingStatus(err error) string {
	switch {
	case err == nil:
		return "Ready"
	case errors.Is(err, session.ErrAlreadyRecording):
		return "Already recording"
	case errors.Is(err, session.ErrEncoderUnavailable):
		return "ffmpeg not found"
	case errors.Is(err, session.ErrDeviceUnavailable):
		return "Audio device unavailable"
	case errors.Is(err, session.ErrRecordingFailed):
		return "Recording failed"
	}
	return "Error: " + err.Error()
}
