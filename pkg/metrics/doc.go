/*
Package metrics provides Prometheus metrics collection and exposition for
kvdb's three layers: the page cache, the MVCC transactional layer and the
SQL server front-end.

# Metrics Catalog

Pager:

kvdb_pager_cache_pages_in_use:
  - Type: Gauge
  - Description: page-cache slots currently holding a valid page

kvdb_pager_cache_pages_max:
  - Type: Gauge
  - Description: page-cache capacity in pages

kvdb_journal_writes_total / kvdb_journal_replays_total:
  - Type: Counter
  - Description: original-page images journaled / pages replayed on crash recovery

MVCC:

kvdb_mvcc_active_transactions:
  - Type: Gauge
  - Description: transactions currently open

kvdb_mvcc_write_write_conflicts_total:
  - Type: Counter
  - Description: write-write conflicts detected before a write

kvdb_mvcc_commits_total / kvdb_mvcc_rollbacks_total:
  - Type: Counter

Server:

kvdb_server_connections_total / kvdb_server_connections_active:
  - Type: Counter / Gauge

kvdb_statements_total{kind}:
  - Type: Counter
  - Labels: kind (create_table, query, update, delete, ...)

kvdb_statement_duration_seconds:
  - Type: Histogram

# Usage

	import "github.com/cuemby/kvdb/pkg/metrics"

	metrics.PagerCachePagesInUse.Set(float64(pager.CacheSize()))
	metrics.MVCCActiveTransactions.Set(float64(len(status.ActiveTxnIDs)))

	timer := metrics.NewTimer()
	result, err := session.Execute(sql)
	timer.ObserveDuration(metrics.StatementDuration)
	metrics.StatementsTotal.WithLabelValues(result.Kind.String()).Inc()

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

All metrics are registered at package init via MustRegister: package-level
variables, no runtime registration, safe for concurrent updates. Label
cardinality stays low (statement kind is a small fixed set); per-connection
or per-transaction identifiers are never used as label values.

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
