package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"interviewrec/audio"
	"interviewrec/events"
)

// DefaultStopGrace bounds how long Stop waits for the encoder to write its
// trailer after the interrupt.
const DefaultStopGrace = 10 * time.Second

// EncoderCommandFunc builds the encoder command for a recording.
type EncoderCommandFunc func(dev audio.Devices, outputPath string) (*exec.Cmd, error)

// Monitor is the live level source started next to the encoder.
type Monitor interface {
	Start(ctx context.Context, dev audio.Devices) error
	Stop()
}

// Config configures a Recorder.
type Config struct {
	FFmpegPath string
	StopGrace  time.Duration
	Resolver   audio.DeviceResolver
}

// Recorder owns the encoder process of the single active recording.
type Recorder struct {
	// Command replaces the default ffmpeg encoder command.
	Command EncoderCommandFunc
	// Monitor publishes level events while recording. Nil disables metering.
	Monitor Monitor
	// TickInterval is the period of elapsed time events.
	TickInterval time.Duration

	cfg  Config
	emit events.Emitter
	log  *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	current  *Session
	proc     *audio.Process
	stderr   *zapio.Writer
	tickStop chan struct{}
	tickDone chan struct{}
}

// NewRecorder creates an idle recorder. Level samples from the default
// ffmpeg monitor are published on emit.
func NewRecorder(cfg Config, emit events.Emitter, log *zap.SugaredLogger) *Recorder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if emit == nil {
		emit = events.Nop{}
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Resolver == nil {
		cfg.Resolver = &audio.PulseResolver{}
	}

	monitor := audio.NewLevelMonitor(func(level int) {
		emit.Emit(events.Level(level))
	}, log.Named("meter"))
	monitor.FFmpegPath = cfg.FFmpegPath

	return &Recorder{
		Monitor:      monitor,
		TickInterval: time.Second,
		cfg:          cfg,
		emit:         emit,
		log:          log,
		state:        StateIdle,
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Active returns a copy of the current session, or nil when idle.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	s := *r.current
	return &s
}

// Elapsed returns the time since the active recording started.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return time.Since(r.current.StartTime)
}

func (r *Recorder) encoderCommand(dev audio.Devices, outputPath string) (*exec.Cmd, error) {
	if r.Command != nil {
		return r.Command(dev, outputPath)
	}
	bin, err := audio.FindBinary("ffmpeg", r.cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}
	return exec.Command(bin, audio.EncoderArgs(dev, outputPath)...), nil
}

// Start begins recording to outputPath.
func (r *Recorder) Start(ctx context.Context, outputPath string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return nil, ErrAlreadyRecording
	}

	if r.Command == nil {
		if _, err := audio.FindBinary("ffmpeg", r.cfg.FFmpegPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
		}
	}

	dev, err := r.cfg.Resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	cmd, err := r.encoderCommand(dev, outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	stderr := &zapio.Writer{Log: r.log.Desugar().Named("encoder"), Level: zapcore.WarnLevel}
	cmd.Stderr = stderr

	proc, err := audio.StartProcess("encoder", cmd, r.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}

	if r.Monitor != nil {
		if err := r.Monitor.Start(ctx, dev); err != nil {
			r.log.Warnf("Level monitor unavailable: %v", err)
		}
	}

	s := &Session{
		ID:         uuid.New().String(),
		OutputPath: outputPath,
		StartTime:  time.Now(),
		State:      StateRecording,
		Devices:    dev,
	}
	r.current = s
	r.proc = proc
	r.stderr = stderr
	r.state = StateRecording
	r.tickStop = make(chan struct{})
	r.tickDone = make(chan struct{})

	go r.tick(s.StartTime, r.tickStop, r.tickDone)
	go r.watch(s.ID, proc)

	r.log.Infof("Recording started: %s (monitor=%s source=%s)", outputPath, dev.Monitor, dev.Source)
	return s, nil
}

func (r *Recorder) tick(start time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := r.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			secs := int64(time.Since(start) / time.Second)
			r.emit.Emit(events.Tick(FormatElapsed(secs), secs))
		}
	}
}

// watch reports an encoder that exits on its own while still recording.
func (r *Recorder) watch(id string, proc *audio.Process) {
	<-proc.Done()

	r.mu.Lock()
	unexpected := r.state == StateRecording && r.current != nil && r.current.ID == id
	r.mu.Unlock()

	if unexpected {
		r.log.Errorf("Encoder exited while recording: %v", proc.Err())
		r.emit.Emit(events.Status("Encoder stopped unexpectedly"))
	}
}

// Stop finalizes the active recording. It returns (nil, nil) when idle.
// The encoder is interrupted so it can flush the file trailer, waited for up
// to the stop grace, and killed after that. The state is idle on return.
func (r *Recorder) Stop(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, nil
	}
	r.state = StateFinalizing
	s := r.current
	s.State = StateFinalizing
	proc, stderr := r.proc, r.stderr
	tickStop, tickDone := r.tickStop, r.tickDone
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateIdle
		r.current = nil
		r.proc = nil
		r.stderr = nil
		r.mu.Unlock()
		r.emit.Emit(events.Level(0))
	}()

	close(tickStop)
	<-tickDone

	if r.Monitor != nil {
		r.Monitor.Stop()
	}

	grace := r.cfg.StopGrace
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 && left < grace {
			grace = left
		}
	}

	// ffmpeg exits non-zero after an interrupt even on a clean finish.
	if err := proc.Stop(os.Interrupt, grace); err != nil {
		if errors.Is(err, audio.ErrProcessKilled) {
			r.log.Warnf("Encoder killed, file may be truncated: %s", s.OutputPath)
		} else {
			r.log.Debugf("Encoder exit: %v", err)
		}
	}
	if stderr != nil {
		stderr.Close()
	}

	r.mu.Lock()
	out := *s
	r.mu.Unlock()
	now := time.Now()
	out.EndTime = &now
	out.State = StateIdle

	info, err := os.Stat(out.OutputPath)
	if err != nil {
		return &out, fmt.Errorf("%w: %s: %v", ErrRecordingFailed, out.OutputPath, err)
	}
	if info.Size() == 0 {
		return &out, fmt.Errorf("%w: %s is empty", ErrRecordingFailed, out.OutputPath)
	}
	out.Size = info.Size()

	r.log.Infof("Recording stopped: %s (%s, %d bytes)", out.OutputPath, FormatElapsed(int64(out.Duration()/time.Second)), out.Size)
	return &out, nil
}

// Shutdown stops an active recording on application exit.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.State() != StateRecording {
		return nil
	}
	_, err := r.Stop(ctx)
	return err
}
