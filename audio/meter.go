package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrMonitorRunning is returned by Start when the monitor is already active.
var ErrMonitorRunning = errors.New("level monitor already running")

// CommandFunc builds the capture command for the given devices.
type CommandFunc func(ctx context.Context, dev Devices) (*exec.Cmd, error)

// LevelMonitor runs its own capture process next to the recording encoder and
// turns the raw PCM stream into level samples, one per 100 ms chunk.
type LevelMonitor struct {
	// FFmpegPath overrides the ffmpeg binary.
	FFmpegPath string
	// Command replaces the default ffmpeg capture command.
	Command CommandFunc
	// Grace bounds how long Stop waits for the capture process to exit
	// before killing it.
	Grace time.Duration

	onLevel func(level int)
	log     *zap.SugaredLogger

	mu   sync.Mutex
	proc *Process
	pipe *os.File
	done chan struct{}
}

// NewLevelMonitor creates a monitor delivering levels to onLevel.
// onLevel is called from the read goroutine.
func NewLevelMonitor(onLevel func(level int), log *zap.SugaredLogger) *LevelMonitor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if onLevel == nil {
		onLevel = func(int) {}
	}
	return &LevelMonitor{
		Grace:   2 * time.Second,
		onLevel: onLevel,
		log:     log,
	}
}

func (m *LevelMonitor) command(ctx context.Context, dev Devices) (*exec.Cmd, error) {
	if m.Command != nil {
		return m.Command(ctx, dev)
	}
	bin, err := FindBinary("ffmpeg", m.FFmpegPath)
	if err != nil {
		return nil, err
	}
	return exec.Command(bin, MeterArgs(dev)...), nil
}

// Start launches the capture process and the read loop.
func (m *LevelMonitor) Start(ctx context.Context, dev Devices) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != nil {
		return ErrMonitorRunning
	}

	cmd, err := m.command(ctx, dev)
	if err != nil {
		return err
	}

	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd.Stdout = w
	cmd.Stderr = nil

	proc, err := StartProcess("level monitor", cmd, m.log)
	// The child holds its own copy of the write end; EOF arrives when it exits.
	w.Close()
	if err != nil {
		r.Close()
		return err
	}

	done := make(chan struct{})
	m.proc = proc
	m.pipe = r
	m.done = done

	go m.readLoop(r, done)

	m.log.Infof("Level monitor started: monitor=%s source=%s", dev.Monitor, dev.Source)
	return nil
}

func (m *LevelMonitor) readLoop(r io.Reader, done chan struct{}) {
	defer close(done)

	buf := make([]byte, MeterChunkSamples*2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				m.log.Debugf("Level monitor read: %v", err)
			}
			return
		}
		m.onLevel(Level(DecodePCM16(buf)))
	}
}

// Stop terminates the capture process and waits for the read loop to exit.
// It is safe to call repeatedly and on a monitor that never started.
func (m *LevelMonitor) Stop() {
	m.mu.Lock()
	proc, pipe, done := m.proc, m.pipe, m.done
	m.proc, m.pipe, m.done = nil, nil, nil
	m.mu.Unlock()

	if proc == nil {
		return
	}

	// Closing the read end unblocks a pending read immediately.
	pipe.Close()
	if err := proc.Stop(syscall.SIGTERM, m.Grace); err != nil && !errors.Is(err, ErrProcessKilled) {
		m.log.Debugf("Level monitor exited: %v", err)
	}
	<-done

	m.log.Info("Level monitor stopped")
}
