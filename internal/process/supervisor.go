package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a supervised daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

var (
	// ErrAlreadyRunning is returned by Start on a running supervisor.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNotReady is returned when the daemon does not pass its ready
	// check within ReadyTimeout.
	ErrNotReady = errors.New("process: daemon not ready")
)

// Config holds configuration for a supervised daemon.
type Config struct {
	// Name is used in logs.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed to the binary. The daemon must stay in the
	// foreground (pigpiod -g).
	Args []string

	// RestartOnFailure restarts the daemon after an unexpected exit.
	RestartOnFailure bool

	// RestartDelay is the first restart delay; it doubles per attempt up
	// to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// ReadyCheck reports whether the daemon is serving. If nil the daemon
	// is considered ready as soon as it starts.
	ReadyCheck func(ctx context.Context) error

	// ReadyTimeout bounds the wait for ReadyCheck after each start.
	ReadyTimeout time.Duration
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const readyPollInterval = 100 * time.Millisecond

// Supervisor runs one daemon and keeps it alive.
//
// Thread Safety: all methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restarts      int
	lastErr       error
	startedAt     time.Time
	stopRequested bool
	done          chan struct{}
}

// NewSupervisor creates a supervisor with defaults applied to zero fields.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = time.Minute
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger.
func (s *Supervisor) SetLogger(l Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// DialCheck returns a ReadyCheck that succeeds once addr accepts TCP.
func DialCheck(addr string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Start launches the daemon and blocks until it passes ReadyCheck.
// If it never becomes ready the process is stopped and ErrNotReady returned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.status = StatusStarting
	s.stopRequested = false
	s.restarts = 0
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.launch(ctx)
	if err != nil {
		s.fail(err)
		close(s.done)
		return err
	}

	go s.watch(ctx, cmd)

	if err := s.waitReady(ctx); err != nil {
		s.mu.Lock()
		s.stopRequested = true
		s.mu.Unlock()
		_ = s.Stop()
		s.fail(err)
		return err
	}
	return nil
}

func (s *Supervisor) fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastErr = err
	s.mu.Unlock()
}

// launch starts one instance of the daemon in its own process group.
func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	s.log().Info("starting daemon", "name", s.cfg.Name, "binary", s.cfg.Binary, "args", s.cfg.Args)

	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.forward("stdout", stdout)
	go s.forward("stderr", stderr)

	s.log().Info("daemon started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// forward logs daemon output line by line.
func (s *Supervisor) forward(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.log().Debug("daemon output", "name", s.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	if s.cfg.ReadyCheck == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = s.cfg.ReadyCheck(ctx); lastErr == nil {
			return nil
		}
		if !s.IsRunning() {
			return fmt.Errorf("%w: %s exited: %w", ErrNotReady, s.cfg.Name, s.LastError())
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotReady, s.cfg.Name, lastErr)
		case <-ticker.C:
		}
	}
}

// watch waits for the daemon to exit and restarts it when configured.
func (s *Supervisor) watch(ctx context.Context, cmd *exec.Cmd) {
	defer close(s.done)

	for {
		err := cmd.Wait()

		s.mu.Lock()
		stopping := s.stopRequested
		if stopping {
			s.status = StatusStopped
		} else {
			s.status = StatusFailed
			s.lastErr = fmt.Errorf("%s exited: %w", s.cfg.Name, exitErr(err))
		}
		s.mu.Unlock()

		if stopping {
			s.log().Info("daemon stopped", "name", s.cfg.Name)
			return
		}
		s.log().Warn("daemon exited unexpectedly", "name", s.cfg.Name, "error", err)

		if !s.cfg.RestartOnFailure {
			return
		}

		s.mu.Lock()
		attempt := s.restarts + 1
		if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
			s.mu.Unlock()
			s.log().Error("max restart attempts reached", "name", s.cfg.Name, "attempts", attempt-1)
			return
		}
		s.restarts = attempt
		s.mu.Unlock()

		delay := s.backoff(attempt)
		s.log().Info("restarting daemon", "name", s.cfg.Name, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		s.mu.RLock()
		stopping = s.stopRequested
		s.mu.RUnlock()
		if stopping {
			return
		}

		next, err := s.launch(ctx)
		if err != nil {
			s.log().Error("restart failed", "name", s.cfg.Name, "error", err)
			s.fail(err)
			return
		}
		cmd = next
	}
}

func exitErr(err error) error {
	if err == nil {
		return errors.New("exit status 0")
	}
	return err
}

// backoff returns RestartDelay doubled per attempt, capped at MaxRestartDelay.
func (s *Supervisor) backoff(attempt int) time.Duration {
	d := s.cfg.RestartDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.MaxRestartDelay {
			return s.cfg.MaxRestartDelay
		}
	}
	return d
}

// Stop sends SIGTERM to the daemon's process group, escalating to SIGKILL
// after GracefulTimeout. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.status != StatusRunning && s.status != StatusStarting {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	s.log().Info("stopping daemon", "name", s.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.log().Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.log().Warn("graceful stop timed out, sending SIGKILL", "name", s.cfg.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-done
	return nil
}

func (s *Supervisor) log() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsRunning reports whether the daemon process is up.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == StatusRunning
}

// LastError returns the error from the last unexpected exit.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Stats is a point-in-time summary used by the health endpoint.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.cfg.Name, Status: s.status, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil && s.status == StatusRunning {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
