package audio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ErrProcessKilled is returned by Stop when the process ignored the graceful
// signal and had to be killed.
var ErrProcessKilled = errors.New("process killed after grace period")

// Process owns a started external command. It is always reaped: a single
// goroutine waits on the command, and Stop escalates to Kill when the grace
// period runs out.
type Process struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	log  *zap.SugaredLogger
}

// StartProcess starts cmd and begins reaping it in the background.
func StartProcess(name string, cmd *exec.Cmd, log *zap.SugaredLogger) (*Process, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p := &Process{
		name: name,
		cmd:  cmd,
		done: make(chan struct{}),
		log:  log,
	}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	log.Debugf("%s started (pid=%d)", name, cmd.Process.Pid)
	return p, nil
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the wait error. Only meaningful after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop sends sig and waits up to grace for the process to exit, then kills
// it. Stop always returns after the process has been reaped. The returned
// error is the process wait error, or ErrProcessKilled.
func (p *Process) Stop(sig os.Signal, grace time.Duration) error {
	select {
	case <-p.done:
		return p.err
	default:
	}

	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Warnf("%s: signal %v failed: %v, killing", p.name, sig, err)
		_ = p.cmd.Process.Kill()
		<-p.done
		return p.err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		p.log.Debugf("%s exited after %v: %v", p.name, sig, p.err)
		return p.err
	case <-timer.C:
	}

	p.log.Warnf("%s did not exit within %s, killing (pid=%d)", p.name, grace, p.Pid())
	_ = p.cmd.Process.Kill()
	<-p.done
	return fmt.Errorf("%s: %w", p.name, ErrProcessKilled)
}
