package service

import (
	"bufio"
	"io"
	"log/slog"
	"time"

	"fluxboard/internal/metrics"
	"fluxboard/internal/models"
)

// Relay drains one output stream of the worker, forwarding each line to
// the shared log sink tagged with the stream name and the worker's PID.
// It runs until the stream reaches EOF, which happens when the worker
// exits or closes the descriptor; EOF is completion, not an error.
type Relay struct {
	stream string // "stdout" or "stderr"
	pid    int
	logs   *LogBuffer
	logger *slog.Logger
}

func NewRelay(stream string, pid int, logs *LogBuffer, logger *slog.Logger) *Relay {
	return &Relay{
		stream: stream,
		pid:    pid,
		logs:   logs,
		logger: logger,
	}
}

// Drain reads lines until EOF, then signals done. The worker must never
// be stalled by a full pipe, so Drain is expected to run on its own
// goroutine for the whole lifetime of the handle.
func (rl *Relay) Drain(r io.Reader, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	level := "info"
	if rl.stream == "stderr" {
		level = "error"
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		rl.logs.Add(models.LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     level,
			Message:   line,
			Stream:    rl.stream,
		})
		metrics.OutputLines.WithLabelValues(rl.stream).Inc()

		if rl.stream == "stderr" {
			rl.logger.Error(line, "stream", rl.stream, "pid", rl.pid)
		} else {
			rl.logger.Info(line, "stream", rl.stream, "pid", rl.pid)
		}
	}

	if err := scanner.Err(); err != nil {
		rl.logger.Warn("error reading worker output", "stream", rl.stream, "pid", rl.pid, "error", err)
	}
}
