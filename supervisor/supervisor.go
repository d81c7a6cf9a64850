// Package supervisor runs the external browser driver as a child process.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/use-agent/liveprice/config"
)

const defaultGrace = 5 * time.Second

// Supervisor owns one driver process from readiness until Stop.
type Supervisor struct {
	cmd   *exec.Cmd
	grace time.Duration

	waitDone chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Start spawns cfg.Command and returns once a line of its output matches
// cfg.ReadyPattern. It fails if the process exits first, the startup
// timeout passes, or ctx is done; in the last two cases the process is stopped.
func Start(ctx context.Context, cfg config.DriverConfig) (*Supervisor, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("supervisor: no driver command configured")
	}
	ready, err := regexp.Compile(cfg.ReadyPattern)
	if err != nil {
		return nil, fmt.Errorf("supervisor: ready pattern: %w", err)
	}
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = defaultGrace
	}

	pr, pw := io.Pipe()
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	// Grandchildren holding the pipe open must not block Wait forever.
	cmd.WaitDelay = grace
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("supervisor: start %s: %w", cfg.Command[0], err)
	}

	s := &Supervisor{
		cmd:      cmd,
		grace:    grace,
		waitDone: make(chan struct{}),
	}
	go func() {
		s.waitErr = cmd.Wait()
		pw.Close()
		close(s.waitDone)
	}()

	readyCh := make(chan struct{})
	go scanOutput(pr, ready, readyCh)

	slog.Info("driver starting", "command", cfg.Command[0], "pid", cmd.Process.Pid)

	timeout := cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		slog.Info("driver ready", "pid", cmd.Process.Pid)
		return s, nil
	case <-s.waitDone:
		return nil, fmt.Errorf("supervisor: driver exited before ready: %v", s.waitErr)
	case <-timer.C:
		s.Stop()
		return nil, fmt.Errorf("supervisor: driver not ready after %s", timeout)
	case <-ctx.Done():
		s.Stop()
		return nil, fmt.Errorf("supervisor: %w", ctx.Err())
	}
}

// scanOutput logs every output line and closes readyCh on the first
// match. It keeps reading until the pipe closes so the child never
// blocks on a full pipe.
func scanOutput(r io.Reader, ready *regexp.Regexp, readyCh chan<- struct{}) {
	signalled := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		slog.Debug("driver output", "line", line)
		if !signalled && ready.MatchString(line) {
			close(readyCh)
			signalled = true
		}
	}
	// Overlong lines stop the scanner; keep draining.
	_, _ = io.Copy(io.Discard, r)
}

// PID returns the driver's process id.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Done is closed when the driver process has exited, for any reason.
func (s *Supervisor) Done() <-chan struct{} {
	return s.waitDone
}

// Err is the process exit error. Only meaningful after Done is closed.
func (s *Supervisor) Err() error {
	select {
	case <-s.waitDone:
		return s.waitErr
	default:
		return nil
	}
}

// Stop interrupts the driver, waits the grace period, then kills it.
// Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		select {
		case <-s.waitDone:
			return
		default:
		}

		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = s.cmd.Process.Kill()
		}
		select {
		case <-s.waitDone:
			slog.Info("driver stopped", "pid", s.cmd.Process.Pid)
		case <-time.After(s.grace):
			slog.Warn("driver ignored interrupt, killing", "pid", s.cmd.Process.Pid)
			_ = s.cmd.Process.Kill()
			<-s.waitDone
		}
	})
}
