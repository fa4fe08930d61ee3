// Package metrics provides Prometheus metrics for the explorer cache and the
// move/copy executor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch and transfer result label values
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultSkip  = "skipped"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchTotal      *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	fetchJoined     prometheus.Counter
	cacheEntries    prometheus.Gauge
	transferTotal   *prometheus.CounterVec
	transferBatches prometheus.Counter
}

// New registers all collectors against reg under namespace
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "Total number of listings issued by the fetch cache",
			},
			[]string{"kind", "result"},
		),
		fetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Listing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		fetchJoined: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_joined_total",
				Help:      "Reload requests attached to an already in-flight fetch",
			},
		),
		cacheEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of queries held by the fetch cache",
			},
		),
		transferTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_total",
				Help:      "Total number of move/copy/delete operations by result",
			},
			[]string{"op", "result"},
		),
		transferBatches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_batches_total",
				Help:      "Total number of executed batches",
			},
		),
	}
}

func (m *Metrics) RecordFetch(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(kind, result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordJoin() {
	if m == nil {
		return
	}
	m.fetchJoined.Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *Metrics) RecordTransfer(op, result string) {
	if m == nil {
		return
	}
	m.transferTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) RecordBatch() {
	if m == nil {
		return
	}
	m.transferBatches.Inc()
}
