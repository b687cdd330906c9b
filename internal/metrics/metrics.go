// Package metrics exposes the reconciler's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_reconciler"

// Source labels for fetch failures.
const (
	SourceRemote  = "remote"
	SourcePending = "pending"
	SourceLocal   = "local"
)

// Metrics groups the collectors recorded by the reconcile service.
type Metrics struct {
	registry *prometheus.Registry

	Merges             prometheus.Counter
	MergedOrders       prometheus.Histogram
	Duplicates         prometheus.Counter
	PlaceholdersPruned prometheus.Counter
	Backfills          prometheus.Counter
	SnapshotsConsumed  prometheus.Counter
	FetchFailures      *prometheus.CounterVec
	PollAttempts       prometheus.Histogram
	PendingPruned      prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Reconciliations performed.",
		}),
		MergedOrders: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merged_orders",
			Help:      "Orders in a reconciled list.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Orders discarded because a higher precedence copy existed.",
		}),
		PlaceholdersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placeholders_dropped_total",
			Help:      "Local placeholder orders dropped once remote data was available.",
		}),
		Backfills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfills_total",
			Help:      "Winning orders that borrowed items or totals from a duplicate.",
		}),
		SnapshotsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_consumed_total",
			Help:      "Last-payment snapshots applied to, or superseded by, a fetched order.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_failures_total",
			Help:      "Source reads that failed and were treated as empty.",
		}, []string{"source"}),
		PollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_attempts",
			Help:      "Attempts used by post-payment polling.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		PendingPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_pruned_total",
			Help:      "Pending submissions deleted after the remote system caught up.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Merges,
		m.MergedOrders,
		m.Duplicates,
		m.PlaceholdersPruned,
		m.Backfills,
		m.SnapshotsConsumed,
		m.FetchFailures,
		m.PollAttempts,
		m.PendingPruned,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
