// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequests counts spreadsheet calls by action and outcome (ok, rejected, error).
	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Spreadsheet service calls by action and outcome.",
	}, []string{"action", "outcome"})

	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "absensi",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Spreadsheet service call latency.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"action"})

	Syncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Subsystem: "shell",
		Name:      "syncs_total",
		Help:      "Sync attempts by mode and outcome (ok, failed, dropped).",
	}, []string{"mode", "outcome"})

	// ProvisionalKept counts provisional records that survived a reconciliation.
	ProvisionalKept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "absensi",
		Subsystem: "reconcile",
		Name:      "provisional_kept_total",
		Help:      "Provisional records retained across a sync.",
	})

	ProvisionalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "absensi",
		Subsystem: "reconcile",
		Name:      "provisional_dropped_total",
		Help:      "Provisional records dropped as expired or absorbed by the server.",
	})

	Records = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "absensi",
		Subsystem: "shell",
		Name:      "attendance_records",
		Help:      "Attendance records currently held in memory.",
	})

	OutboxReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "absensi",
		Subsystem: "outbox",
		Name:      "replays_total",
		Help:      "Replayed writes by action and outcome (ok, retry, gave_up, dropped).",
	}, []string{"action", "outcome"})
)
