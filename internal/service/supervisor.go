package service

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"fluxboard/internal/config"
	"fluxboard/internal/metrics"
	"fluxboard/internal/models"
)

var (
	ErrWorkerAlreadyRunning = errors.New("worker already running")
	ErrWorkerNotRunning     = errors.New("worker not running")
	ErrKillFailed           = errors.New("worker could not be killed")
)

// handle is the in-memory representation of the currently supervised
// worker process. At most one live handle exists at any time; a new one
// is installed only after the previous process has fully terminated.
type handle struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	// done is closed by the wait goroutine once the process has been
	// reaped and exit state recorded.
	done chan struct{}
	// relaysDone receives twice, once per drained output stream.
	relaysDone chan struct{}

	// Guarded by Supervisor.stateMu.
	exited     bool
	exitCode   int
	killFailed bool
}

// Supervisor owns the single watch-worker slot. Control operations
// (Start/Stop/Restart) serialize on controlMu; Status only takes the
// read side of stateMu so it never blocks behind an in-flight stop.
type Supervisor struct {
	controlMu sync.Mutex
	stateMu   sync.RWMutex
	h         *handle

	cfg    config.WorkerConfig
	logs   *LogBuffer
	logger *slog.Logger

	gracePeriod  time.Duration
	killTimeout  time.Duration
	drainTimeout time.Duration
}

func NewSupervisor(cfg config.WorkerConfig, logs *LogBuffer, logger *slog.Logger) *Supervisor {
	grace := time.Duration(cfg.GracePeriod) * time.Second
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Supervisor{
		cfg:          cfg,
		logs:         logs,
		logger:       logger,
		gracePeriod:  grace,
		killTimeout:  5 * time.Second,
		drainTimeout: 2 * time.Second,
	}
}

// log records a supervisor event in both the structured logger and the
// ring buffer shown on the dashboard.
func (s *Supervisor) log(level, message string, args ...any) {
	s.logs.Add(models.LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
	})
	switch level {
	case "error":
		s.logger.Error(message, args...)
	case "warning":
		s.logger.Warn(message, args...)
	default:
		s.logger.Info(message, args...)
	}
}

// Start spawns the worker. It fails with ErrWorkerAlreadyRunning if a
// live handle exists. Returns the new PID.
func (s *Supervisor) Start() (int, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	return s.startLocked()
}

func (s *Supervisor) startLocked() (int, error) {
	s.stateMu.RLock()
	h := s.h
	var live, killFailed bool
	if h != nil {
		live = !h.exited
		killFailed = h.killFailed
	}
	s.stateMu.RUnlock()

	if live && killFailed {
		return 0, ErrKillFailed
	}
	if live {
		return 0, ErrWorkerAlreadyRunning
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	if s.cfg.Directory != "" {
		cmd.Dir = s.cfg.Directory
	}
	if len(s.cfg.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.cfg.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.log("error", "failed to create stdout pipe", "error", err)
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.log("error", "failed to create stderr pipe", "error", err)
		return 0, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.log("error", "failed to start worker", "command", s.cfg.Command, "error", err)
		return 0, fmt.Errorf("start worker: %w", err)
	}

	nh := &handle{
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		startedAt:  time.Now(),
		done:       make(chan struct{}),
		relaysDone: make(chan struct{}, 2),
	}

	go NewRelay("stdout", nh.pid, s.logs, s.logger).Drain(stdout, nh.relaysDone)
	go NewRelay("stderr", nh.pid, s.logs, s.logger).Drain(stderr, nh.relaysDone)
	go s.wait(nh)

	// The gauge is updated under stateMu so it stays ordered with the
	// handle's exit flag: once a caller sees exited, the old handle's
	// Set(0) has already happened and cannot clobber this Set(1).
	s.stateMu.Lock()
	s.h = nh
	metrics.WorkerUp.Set(1)
	s.stateMu.Unlock()

	metrics.WorkerStarts.Inc()
	s.log("info", "worker started", "pid", nh.pid, "command", s.cfg.Command)

	return nh.pid, nil
}

// wait reaps the process and records its exit state. It is the only
// writer of the handle's exit fields.
func (s *Supervisor) wait(h *handle) {
	err := h.cmd.Wait()
	code := exitCodeFromError(err)

	s.stateMu.Lock()
	h.exited = true
	h.exitCode = code
	metrics.WorkerUp.Set(0)
	s.stateMu.Unlock()

	if err != nil {
		s.log("warning", "worker exited", "pid", h.pid, "exit_code", code, "error", err)
	} else {
		s.log("info", "worker exited", "pid", h.pid, "exit_code", code)
	}
	close(h.done)
}

// exitCodeFromError extracts the exit code from cmd.Wait's error.
// Returns 0 for nil, the exit code for ExitError (-1 when signaled),
// or 1 for anything else.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// Stop terminates the worker: SIGTERM, then SIGKILL after grace. A
// non-positive grace uses the configured default. A kill that does not
// take effect marks the handle failed; the error shows up on subsequent
// status and restart calls.
func (s *Supervisor) Stop(grace time.Duration) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	return s.stopLocked(grace)
}

func (s *Supervisor) stopLocked(grace time.Duration) error {
	if grace <= 0 {
		grace = s.gracePeriod
	}

	s.stateMu.RLock()
	h := s.h
	var live, killFailed bool
	if h != nil {
		live = !h.exited
		killFailed = h.killFailed
	}
	s.stateMu.RUnlock()

	if h == nil || !live {
		return ErrWorkerNotRunning
	}
	if killFailed {
		return ErrKillFailed
	}

	s.log("info", "sending SIGTERM to worker", "pid", h.pid)
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to send SIGTERM", "pid", h.pid, "error", err)
	}

	select {
	case <-h.done:
	case <-time.After(grace):
		s.log("warning", "worker did not exit within grace period, killing", "pid", h.pid, "grace", grace.String())
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.markKillFailed(h)
			s.log("error", "failed to kill worker", "pid", h.pid, "error", err)
			return fmt.Errorf("%w: %v", ErrKillFailed, err)
		}
		select {
		case <-h.done:
		case <-time.After(s.killTimeout):
			s.markKillFailed(h)
			s.log("error", "worker did not exit after SIGKILL", "pid", h.pid)
			return fmt.Errorf("%w: no exit after SIGKILL", ErrKillFailed)
		}
	}

	s.waitRelays(h)

	s.stateMu.RLock()
	code := h.exitCode
	s.stateMu.RUnlock()
	s.log("info", "worker stopped", "pid", h.pid, "exit_code", code)
	return nil
}

func (s *Supervisor) markKillFailed(h *handle) {
	s.stateMu.Lock()
	h.killFailed = true
	s.stateMu.Unlock()
}

// waitRelays waits for both output relays to reach EOF, abandoning them
// after the drain timeout so a stuck pipe cannot wedge a stop.
func (s *Supervisor) waitRelays(h *handle) {
	deadline := time.After(s.drainTimeout)
	for i := 0; i < 2; i++ {
		select {
		case <-h.relaysDone:
		case <-deadline:
			s.logger.Warn("abandoning output relay drain", "pid", h.pid)
			return
		}
	}
}

// Restart stops the current worker (if any) and spawns a new one under
// a single lock acquisition, so no instant exists with two live
// workers. Returns the new PID.
func (s *Supervisor) Restart() (int, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	if err := s.stopLocked(0); err != nil && !errors.Is(err, ErrWorkerNotRunning) {
		return 0, err
	}
	pid, err := s.startLocked()
	if err != nil {
		return 0, err
	}
	metrics.WorkerRestarts.Inc()
	return pid, nil
}

// Status reports the last known worker state without blocking on
// in-flight control operations or probing the process.
func (s *Supervisor) Status() models.WatchStatus {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	h := s.h
	if h == nil {
		return models.WatchStatus{Status: models.StatusNotRunning}
	}
	if h.exited {
		code := h.exitCode
		return models.WatchStatus{
			Status:     models.StatusStopped,
			ReturnCode: &code,
		}
	}
	if h.killFailed {
		return models.WatchStatus{
			Status:  models.StatusRunning,
			Pid:     h.pid,
			Started: humanize.Time(h.startedAt),
			Error:   ErrKillFailed.Error(),
		}
	}
	return models.WatchStatus{
		Status:  models.StatusRunning,
		Pid:     h.pid,
		Started: humanize.Time(h.startedAt),
	}
}

// Logs returns up to limit recent entries from the shared log sink.
func (s *Supervisor) Logs(limit int) []models.LogEntry {
	return s.logs.Last(limit)
}
