package service

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fluxboard/internal/config"
	"fluxboard/internal/metrics"
	"fluxboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSupervisor creates a Supervisor with short timeouts for testing.
func newTestSupervisor(command string, args ...string) *Supervisor {
	s := NewSupervisor(config.WorkerConfig{
		Command: command,
		Args:    args,
	}, NewLogBuffer(100), testLogger())
	s.gracePeriod = 200 * time.Millisecond
	s.killTimeout = 200 * time.Millisecond
	s.drainTimeout = 200 * time.Millisecond
	return s
}

// waitForStatus polls Status until the predicate holds, failing the test
// on timeout.
func waitForStatus(t *testing.T, s *Supervisor, timeout time.Duration, pred func(models.WatchStatus) bool) models.WatchStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		st := s.Status()
		if pred(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for status, last: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartAndStatus(t *testing.T) {
	s := newTestSupervisor("sleep", "10")

	pid, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("expected positive pid, got %d", pid)
	}

	st := s.Status()
	if st.Status != models.StatusRunning {
		t.Errorf("status = %q, want running", st.Status)
	}
	if st.Pid != pid {
		t.Errorf("status pid = %d, want %d", st.Pid, pid)
	}

	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	st = s.Status()
	if st.Status != models.StatusStopped {
		t.Errorf("status after stop = %q, want stopped", st.Status)
	}
	if st.ReturnCode == nil {
		t.Error("expected return code after stop")
	}
}

func TestStartTwice(t *testing.T) {
	s := newTestSupervisor("sleep", "10")
	defer s.Stop(0)

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.Start(); !errors.Is(err, ErrWorkerAlreadyRunning) {
		t.Errorf("second Start err = %v, want ErrWorkerAlreadyRunning", err)
	}
}

func TestStopNotRunning(t *testing.T) {
	s := newTestSupervisor("sleep", "10")
	if err := s.Stop(0); !errors.Is(err, ErrWorkerNotRunning) {
		t.Errorf("Stop err = %v, want ErrWorkerNotRunning", err)
	}
}

func TestGracefulStop(t *testing.T) {
	// Worker that exits cleanly on SIGTERM.
	s := newTestSupervisor("sh", "-c", `trap 'exit 0' TERM; while :; do sleep 0.1; done`)
	s.gracePeriod = time.Second

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	st := s.Status()
	if st.Status != models.StatusStopped {
		t.Fatalf("status = %q, want stopped", st.Status)
	}
	if st.ReturnCode == nil || *st.ReturnCode != 0 {
		t.Errorf("return code = %v, want 0", st.ReturnCode)
	}
}

func TestForceKillOnGraceTimeout(t *testing.T) {
	// Worker that ignores SIGTERM.
	s := newTestSupervisor("sh", "-c", `trap '' TERM; sleep 10`)
	s.gracePeriod = 100 * time.Millisecond

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took too long: %v", elapsed)
	}

	if st := s.Status(); st.Status != models.StatusStopped {
		t.Errorf("status = %q, want stopped", st.Status)
	}
}

func TestRestartReplacesWorker(t *testing.T) {
	s := newTestSupervisor("sleep", "10")
	defer s.Stop(0)

	oldPid, err := s.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	newPid, err := s.Restart()
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if newPid == oldPid {
		t.Errorf("restart returned the same pid %d", newPid)
	}

	// The old process must be fully gone before the new one was spawned;
	// by now it has been reaped, so signal 0 fails.
	if err := syscall.Kill(oldPid, 0); err == nil {
		t.Errorf("old worker pid %d still alive after restart", oldPid)
	}

	if st := s.Status(); st.Status != models.StatusRunning || st.Pid != newPid {
		t.Errorf("status = %+v, want running with pid %d", st, newPid)
	}
}

func TestRestartFromIdle(t *testing.T) {
	s := newTestSupervisor("sleep", "10")
	defer s.Stop(0)

	pid, err := s.Restart()
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if pid <= 0 {
		t.Errorf("expected positive pid, got %d", pid)
	}
}

func TestStatusDoesNotBlockDuringStop(t *testing.T) {
	// Worker that ignores SIGTERM so Stop has to ride out the grace period.
	s := newTestSupervisor("sh", "-c", `trap '' TERM; sleep 10`)
	s.gracePeriod = 500 * time.Millisecond

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop(0) }()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	st := s.Status()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Status blocked for %v during stop", elapsed)
	}
	if st.Status != models.StatusRunning {
		t.Errorf("status during stop = %q, want running", st.Status)
	}

	if err := <-stopDone; err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestConcurrentRestartsSerialize(t *testing.T) {
	s := newTestSupervisor("sleep", "10")
	defer s.Stop(0)

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Restart()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Restart: %v", err)
		}
	}

	if st := s.Status(); st.Status != models.StatusRunning {
		t.Errorf("status = %q, want running", st.Status)
	}
}

func TestSpawnFailure(t *testing.T) {
	s := newTestSupervisor("/nonexistent/worker/binary")

	if _, err := s.Start(); err == nil {
		t.Fatal("expected error starting nonexistent binary")
	}
	if st := s.Status(); st.Status != models.StatusNotRunning {
		t.Errorf("status = %q, want not_running", st.Status)
	}
}

func TestWorkerExitRecorded(t *testing.T) {
	s := newTestSupervisor("true")

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := waitForStatus(t, s, 2*time.Second, func(st models.WatchStatus) bool {
		return st.Status == models.StatusStopped
	})
	if st.ReturnCode == nil || *st.ReturnCode != 0 {
		t.Errorf("return code = %v, want 0", st.ReturnCode)
	}

	// Starting again after a self-exit installs a fresh handle.
	if _, err := s.Start(); err != nil {
		t.Fatalf("Start after exit: %v", err)
	}
	waitForStatus(t, s, 2*time.Second, func(st models.WatchStatus) bool {
		return st.Status == models.StatusStopped
	})
}

func TestWorkerUpGaugeAfterSelfExitStart(t *testing.T) {
	s := newTestSupervisor("true")

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, s, 2*time.Second, func(st models.WatchStatus) bool {
		return st.Status == models.StatusStopped
	})

	// Starting over a self-exited handle must leave the gauge up even
	// though the old reaper goroutine may still be winding down.
	s.cfg.Command = "sleep"
	s.cfg.Args = []string{"10"}
	defer s.Stop(0)

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start after exit: %v", err)
	}
	if got := testutil.ToFloat64(metrics.WorkerUp); got != 1 {
		t.Errorf("worker_up gauge = %v, want 1", got)
	}
}

func TestStopAfterSelfExit(t *testing.T) {
	s := newTestSupervisor("true")

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, s, 2*time.Second, func(st models.WatchStatus) bool {
		return st.Status == models.StatusStopped
	})

	if err := s.Stop(0); !errors.Is(err, ErrWorkerNotRunning) {
		t.Errorf("Stop after exit err = %v, want ErrWorkerNotRunning", err)
	}
}

func TestWorkerOutputReachesLogBuffer(t *testing.T) {
	logs := NewLogBuffer(100)
	s := NewSupervisor(config.WorkerConfig{
		Command: "sh",
		Args:    []string{"-c", `echo out line; echo err line 1>&2`},
	}, logs, testLogger())
	s.gracePeriod = 200 * time.Millisecond
	s.killTimeout = 200 * time.Millisecond
	s.drainTimeout = 500 * time.Millisecond

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, s, 2*time.Second, func(st models.WatchStatus) bool {
		return st.Status == models.StatusStopped
	})

	deadline := time.Now().Add(time.Second)
	for {
		var gotOut, gotErr bool
		for _, e := range logs.Last(100) {
			if e.Stream == "stdout" && e.Message == "out line" {
				gotOut = true
			}
			if e.Stream == "stderr" && e.Message == "err line" {
				gotErr = true
			}
		}
		if gotOut && gotErr {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("relayed lines missing from buffer: %+v", logs.Last(100))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
