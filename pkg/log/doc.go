/*
Package log provides structured logging for kvdb using zerolog.

It wraps zerolog to give every subsystem — the pager, the MVCC layer, the
SQL executors, the TCP servlet — a component-scoped logger with consistent
fields, instead of scattering fmt.Printf calls through the engine.

# Usage

	import "github.com/cuemby/kvdb/pkg/log"

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	pagerLog := log.WithComponent("pager")
	pagerLog.Warn().Int("pgno", pgno).Msg("evicting dirty page, forcing sync")

	txnLog := log.WithTxnID(txn.ID())
	txnLog.Debug().Msg("write-write conflict, aborting")

# Levels

Debug carries one line per MVCC transaction lifecycle event
(begin/commit/rollback). Info covers server startup and shutdown and each
connection opening or closing. Warn covers a failed frame read or write on
a client connection. Error covers failures logged without stopping the
process: the server binary's metrics endpoint and file-store close, and a
rollback that itself fails after a statement error. Startup failures are
returned as errors from the command rather than logged at Fatal.
*/
package log
