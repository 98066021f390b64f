// Package metrics exposes the Prometheus instrumentation for the
// background sweeps. Foreground request metrics come from the standard
// HTTP middleware; the sweeps are the part of the system that fails
// silently without counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sweep counters, labelled by job name (debug_files, chat_states,
// orphaned_blobs).
var (
	SweepPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "cleanup",
		Name:      "sweep_pages_total",
		Help:      "Pages processed by background sweeps.",
	}, []string{"job"})

	SweepRowsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "cleanup",
		Name:      "sweep_rows_deleted_total",
		Help:      "Rows deleted by background sweeps.",
	}, []string{"job"})

	SweepBlobsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "cleanup",
		Name:      "sweep_blobs_deleted_total",
		Help:      "Blobs deleted by background sweeps.",
	}, []string{"job"})

	SweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Subsystem: "cleanup",
		Name:      "sweep_errors_total",
		Help:      "Per-item errors skipped by background sweeps.",
	}, []string{"job"})
)
