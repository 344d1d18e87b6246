// Package metrics exposes Prometheus collectors for the supervisor and
// the data endpoints, served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkerUp is 1 while a supervised worker process is alive.
	WorkerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fluxboard_worker_up",
		Help: "Whether the watch worker is currently running",
	})

	WorkerStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxboard_worker_starts_total",
		Help: "Number of times the watch worker has been started",
	})

	WorkerRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fluxboard_worker_restarts_total",
		Help: "Number of restarts requested through the API",
	})

	OutputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxboard_worker_output_lines_total",
		Help: "Lines relayed from the worker's output streams",
	}, []string{"stream"})

	DataFileReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fluxboard_data_file_reads_total",
		Help: "Change file reads by outcome (ok, missing, parse_error)",
	}, []string{"outcome"})
)
