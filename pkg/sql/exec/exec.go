// Package exec implements the streaming executors that walk a plan.Node
// tree against a Transaction, producing a ResultSet.
package exec

import (
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/plan"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// RowIter is a pull-based row stream: Next returns (row, nil) while rows
// remain, (nil, nil) at end of stream, or (nil, err) on error — after an
// error the stream is considered terminated and must not be pulled again.
type RowIter interface {
	Next() (types.Row, error)
}

// Transaction is everything an executor needs from the storage layer: the
// catalog operations (also used directly by the planner) plus row-level
// reads/writes/scans and index maintenance (the row creation side-effects
// contract).
type Transaction interface {
	plan.Catalog
	CreateTable(table *types.Table) error
	DropTable(name string) error
	TableReferencedBy(name string) (string, bool, error)

	CreateRow(table string, row types.Row) error
	ReadRow(table string, pk types.DataValue) (types.Row, bool, error)
	UpdateRow(table string, pk types.DataValue, row types.Row) error
	DeleteRow(table string, pk types.DataValue) error
	ScanTable(table string) (RowIter, error)
	ScanIndex(table, column string, value types.DataValue) ([]types.DataValue, error)
}

// ResultKind discriminates ResultSet's variants.
type ResultKind int

const (
	ResultCreate ResultKind = iota
	ResultCreateTable
	ResultDropTable
	ResultQuery
	ResultUpdate
	ResultDelete
	ResultExplain
)

func (k ResultKind) String() string {
	switch k {
	case ResultCreate:
		return "create"
	case ResultCreateTable:
		return "create_table"
	case ResultDropTable:
		return "drop_table"
	case ResultQuery:
		return "query"
	case ResultUpdate:
		return "update"
	case ResultDelete:
		return "delete"
	case ResultExplain:
		return "explain"
	default:
		return "unknown"
	}
}

// ResultSet is the tagged outcome of executing one statement.
type ResultSet struct {
	Kind ResultKind

	Count int    // Create/Update/Delete
	Name  string // CreateTable/DropTable

	Columns []string
	Rows    RowIter // Query

	Explain *plan.Node
}

// Execute runs node against txn and returns its ResultSet.
func Execute(node *plan.Node, txn Transaction) (*ResultSet, error) {
	switch node.Kind {
	case plan.KindCreateTable:
		return execCreateTable(node, txn)
	case plan.KindDropTable:
		return execDropTable(node, txn)
	case plan.KindInsert:
		return execInsert(node, txn)
	case plan.KindUpdate:
		return execUpdate(node, txn)
	case plan.KindDelete:
		return execDelete(node, txn)
	case plan.KindNothing:
		return &ResultSet{Kind: ResultQuery, Rows: emptyIter{}}, nil
	default:
		it, columns, err := buildIter(node, txn)
		if err != nil {
			return nil, err
		}
		return &ResultSet{Kind: ResultQuery, Columns: columns, Rows: it}, nil
	}
}

// Explain returns node unexecuted.
func Explain(node *plan.Node) *ResultSet {
	return &ResultSet{Kind: ResultExplain, Explain: node}
}

func execCreateTable(node *plan.Node, txn Transaction) (*ResultSet, error) {
	if err := txn.CreateTable(node.Schema); err != nil {
		return nil, err
	}
	return &ResultSet{Kind: ResultCreateTable, Name: node.Schema.Name}, nil
}

func execDropTable(node *plan.Node, txn Transaction) (*ResultSet, error) {
	if referencing, ok, err := txn.TableReferencedBy(node.Table); err != nil {
		return nil, err
	} else if ok {
		return nil, errs.Value("table %q is referenced by table %q", node.Table, referencing)
	}
	if err := txn.DropTable(node.Table); err != nil {
		return nil, err
	}
	return &ResultSet{Kind: ResultDropTable, Name: node.Table}, nil
}

// buildIter compiles node into a RowIter, recursing into Source nodes
// (the streaming executor chain).
func buildIter(node *plan.Node, txn Transaction) (RowIter, []string, error) {
	switch node.Kind {
	case plan.KindScan:
		return scanIter(node, txn)
	case plan.KindFilter:
		src, cols, err := buildIter(node.Source, txn)
		if err != nil {
			return nil, nil, err
		}
		return &filterIter{src: src, pred: node.Filter}, cols, nil
	case plan.KindProjection:
		src, _, err := buildIter(node.Source, txn)
		if err != nil {
			return nil, nil, err
		}
		return &projectionIter{src: src, items: node.Projections}, node.OutputScope.ColumnNames(), nil
	case plan.KindOrderBy:
		src, cols, err := buildIter(node.Source, txn)
		if err != nil {
			return nil, nil, err
		}
		it, err := newOrderIter(src, node.Orders)
		if err != nil {
			return nil, nil, err
		}
		return it, cols, nil
	case plan.KindLimit:
		src, cols, err := buildIter(node.Source, txn)
		if err != nil {
			return nil, nil, err
		}
		return &limitIter{src: src, offset: node.Offset, limit: node.Limit}, cols, nil
	case plan.KindGroupBy:
		src, cols, err := buildIter(node.Source, txn)
		if err != nil {
			return nil, nil, err
		}
		it, err := newGroupIter(src, node.GroupBy)
		if err != nil {
			return nil, nil, err
		}
		return it, cols, nil
	default:
		return nil, nil, errs.Internal("exec: node kind %d is not a row source", node.Kind)
	}
}

type emptyIter struct{}

func (emptyIter) Next() (types.Row, error) { return nil, nil }

// scanIter reads SQLKey::Row(table, _) entries and drops rows whose filter
// doesn't evaluate to Boolean(true).
func scanIter(node *plan.Node, txn Transaction) (RowIter, []string, error) {
	table, err := txn.GetTable(node.Table)
	if err != nil {
		return nil, nil, err
	}
	raw, err := txn.ScanTable(node.Table)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	if node.Filter == nil {
		return raw, names, nil
	}
	return &filterIter{src: raw, pred: node.Filter}, names, nil
}

type filterIter struct {
	src  RowIter
	pred *expr.Expression
}

func (it *filterIter) Next() (types.Row, error) {
	for {
		row, err := it.src.Next()
		if err != nil || row == nil {
			return nil, err
		}
		v, err := expr.Evaluate(it.pred, row)
		if err != nil {
			return nil, err
		}
		dt, ok := v.DataType()
		if ok && dt == types.Boolean && v.AsBoolean() {
			return row, nil
		}
	}
}

type projectionIter struct {
	src   RowIter
	items []plan.ProjectionItem
}

func (it *projectionIter) Next() (types.Row, error) {
	row, err := it.src.Next()
	if err != nil || row == nil {
		return nil, err
	}
	out := make(types.Row, len(it.items))
	for i, item := range it.items {
		v, err := expr.Evaluate(item.Expr, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type limitIter struct {
	src     RowIter
	offset  int64
	limit   *int64
	skipped int64
	taken   int64
	done    bool
}

func (it *limitIter) Next() (types.Row, error) {
	if it.done {
		return nil, nil
	}
	for it.skipped < it.offset {
		row, err := it.src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			it.done = true
			return nil, nil
		}
		it.skipped++
	}
	if it.limit != nil && it.taken >= *it.limit {
		it.done = true
		return nil, nil
	}
	row, err := it.src.Next()
	if err != nil || row == nil {
		it.done = true
		return nil, err
	}
	it.taken++
	return row, nil
}
