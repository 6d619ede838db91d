package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   prometheus.CounterVec
	HTTPRequestDuration prometheus.HistogramVec

	// Vendor sync metrics
	SyncRunsTotal  prometheus.CounterVec
	SyncDuration   prometheus.HistogramVec
	SyncItemsTotal prometheus.CounterVec
	RepliesTotal   prometheus.CounterVec

	// Changefeed and batching metrics
	ChangesPublishedTotal prometheus.CounterVec
	BatchesDelivered      prometheus.CounterVec
	BatchSize             prometheus.HistogramVec

	// Session metrics
	ActiveSessions prometheus.GaugeVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
				},
				[]string{"method", "path"},
			),

			SyncRunsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vendor_sync_runs_total",
					Help: "Total vendor sync passes",
				},
				[]string{"platform", "status"},
			),
			SyncDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "vendor_sync_duration_seconds",
					Help:    "Vendor sync pass duration in seconds",
					Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
				},
				[]string{"platform"},
			),
			SyncItemsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vendor_sync_items_total",
					Help: "Vendor items processed by sync, by outcome",
				},
				[]string{"platform", "result"},
			),
			RepliesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "vendor_replies_total",
					Help: "Replies posted back to vendors",
				},
				[]string{"platform", "status"},
			),

			ChangesPublishedTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "changefeed_changes_published_total",
					Help: "Change envelopes published to the changefeed",
				},
				[]string{"op"},
			),
			BatchesDelivered: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inbox_batches_delivered_total",
					Help: "Coalesced change batches delivered to sessions",
				},
				[]string{},
			),
			BatchSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "inbox_batch_size",
					Help:    "Number of changes per delivered batch",
					Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
				},
				[]string{},
			),

			ActiveSessions: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dashboard_active_sessions",
					Help: "Connected dashboard WebSocket sessions",
				},
				[]string{},
			),

			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total errors by type",
				},
				[]string{"type"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, initializing it if needed
func Get() *Metrics {
	return Initialize()
}
