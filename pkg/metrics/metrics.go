package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pager metrics
	PagerCachePagesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_pager_cache_pages_in_use",
			Help: "Number of page-cache slots currently holding a valid page",
		},
	)

	PagerCachePagesMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_pager_cache_pages_max",
			Help: "Page-cache capacity in pages",
		},
	)

	JournalWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_journal_writes_total",
			Help: "Total number of original-page images written to the rollback journal",
		},
	)

	JournalReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_journal_replays_total",
			Help: "Total number of journal pages replayed during crash recovery on Open",
		},
	)

	// MVCC metrics
	MVCCActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_mvcc_active_transactions",
			Help: "Number of MVCC transactions currently open",
		},
	)

	MVCCWriteConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_mvcc_write_write_conflicts_total",
			Help: "Total number of write-write conflicts detected before a write",
		},
	)

	MVCCCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_mvcc_commits_total",
			Help: "Total number of committed transactions",
		},
	)

	MVCCRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_mvcc_rollbacks_total",
			Help: "Total number of rolled-back transactions",
		},
	)

	// Server metrics (wire protocol connections and statements)
	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvdb_server_connections_total",
			Help: "Total number of accepted TCP connections",
		},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_server_connections_active",
			Help: "Number of currently open TCP connections",
		},
	)

	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdb_statements_total",
			Help: "Total number of SQL statements executed, by result kind",
		},
		[]string{"kind"},
	)

	StatementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdb_statement_duration_seconds",
			Help:    "Time taken to parse, plan and execute one SQL statement",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(PagerCachePagesInUse)
	prometheus.MustRegister(PagerCachePagesMax)
	prometheus.MustRegister(JournalWritesTotal)
	prometheus.MustRegister(JournalReplaysTotal)
	prometheus.MustRegister(MVCCActiveTransactions)
	prometheus.MustRegister(MVCCWriteConflictsTotal)
	prometheus.MustRegister(MVCCCommitsTotal)
	prometheus.MustRegister(MVCCRollbacksTotal)
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(StatementsTotal)
	prometheus.MustRegister(StatementDuration)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
