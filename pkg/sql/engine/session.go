package engine

import (
	"github.com/cuemby/kvdb/pkg/log"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/sql/exec"
	"github.com/cuemby/kvdb/pkg/sql/parser"
	"github.com/cuemby/kvdb/pkg/sql/plan"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// Session is the SQL-facing entry point: parse, plan and execute one
// statement inside its own freshly-begun ReadWrite transaction, committing
// on success and rolling back on any error. Explicit
// BEGIN/COMMIT/ROLLBACK and resuming a transaction across statements are
// noted in the source as future work, so every Execute call here is
// necessarily single-statement and auto-committing.
type Session struct {
	mv *mvcc.MVCC
}

// NewSession creates a Session over mv.
func NewSession(mv *mvcc.MVCC) *Session {
	return &Session{mv: mv}
}

// Execute parses, plans and runs one SQL statement to completion.
func (s *Session) Execute(sql string) (*exec.ResultSet, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	mvTxn, err := s.mv.Begin(mvcc.TransactionMode{Mode: mvcc.ReadWrite})
	if err != nil {
		return nil, err
	}
	txn := New(mvTxn)

	node, err := plan.New(txn).Plan(stmt)
	if err != nil {
		_ = mvTxn.Rollback()
		return nil, err
	}

	result, err := exec.Execute(node, txn)
	if err != nil {
		if rerr := mvTxn.Rollback(); rerr != nil {
			log.Error("rollback after execution failure also failed: " + rerr.Error())
		}
		return nil, err
	}

	// A Query result's row iterator reads through mvTxn lazily (it wraps a
	// materialized slice today, but the contract is that rows may still be
	// pulled after Execute returns), so the transaction can only be
	// committed once the caller has fully drained it.
	if result.Kind == exec.ResultQuery {
		result.Rows = &commitOnDrainIter{inner: result.Rows, txn: mvTxn}
		return result, nil
	}

	if err := mvTxn.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTable reads one table's schema in its own read-only transaction, for
// the wire protocol's GetTable request.
func (s *Session) GetTable(name string) (*types.Table, error) {
	mvTxn, err := s.mv.Begin(mvcc.TransactionMode{Mode: mvcc.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = mvTxn.Rollback() }()
	return New(mvTxn).GetTable(name)
}

// ListTables returns every table name in the catalog, for the wire
// protocol's ListTables request.
func (s *Session) ListTables() ([]string, error) {
	mvTxn, err := s.mv.Begin(mvcc.TransactionMode{Mode: mvcc.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = mvTxn.Rollback() }()
	return New(mvTxn).ListTables()
}

// Status reports the underlying MVCC store's status, for the wire
// protocol's Status request.
func (s *Session) Status() (mvcc.Status, error) {
	return s.mv.Status()
}

// commitOnDrainIter commits the owning transaction the moment its row
// stream reports end-of-stream (or errors), since the engine has no
// longer-lived transaction handle for the caller to commit explicitly.
type commitOnDrainIter struct {
	inner exec.RowIter
	txn   *mvcc.Transaction
	done  bool
}

func (it *commitOnDrainIter) Next() (types.Row, error) {
	if it.done {
		return nil, nil
	}
	row, err := it.inner.Next()
	if err != nil {
		it.done = true
		_ = it.txn.Rollback()
		return nil, err
	}
	if row == nil {
		it.done = true
		if cerr := it.txn.Commit(); cerr != nil {
			return nil, cerr
		}
		return nil, nil
	}
	return row, nil
}
