package exec

import (
	"testing"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/parser"
	"github.com/cuemby/kvdb/pkg/sql/plan"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// fakeTxn is a minimal in-memory Transaction used to exercise the
// executors without the MVCC/pager stack.
type fakeTxn struct {
	tables map[string]*types.Table
	rows   map[string]map[any]types.Row // table -> pk hash -> row
}

func newFakeTxn() *fakeTxn {
	return &fakeTxn{tables: map[string]*types.Table{}, rows: map[string]map[any]types.Row{}}
}

func (f *fakeTxn) GetTable(name string) (*types.Table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, errs.Value("no such table %q", name)
	}
	return t, nil
}

func (f *fakeTxn) CreateTable(table *types.Table) error {
	if _, exists := f.tables[table.Name]; exists {
		return errs.Value("table %q already exists", table.Name)
	}
	f.tables[table.Name] = table
	f.rows[table.Name] = map[any]types.Row{}
	return nil
}

func (f *fakeTxn) DropTable(name string) error {
	if _, ok := f.tables[name]; !ok {
		return errs.Value("no such table %q", name)
	}
	delete(f.tables, name)
	delete(f.rows, name)
	return nil
}

func (f *fakeTxn) TableReferencedBy(name string) (string, bool, error) {
	for _, t := range f.tables {
		for _, c := range t.Columns {
			if c.References == name && t.Name != name {
				return t.Name, true, nil
			}
		}
	}
	return "", false, nil
}

func (f *fakeTxn) CreateRow(table string, row types.Row) error {
	t := f.tables[table]
	pk, err := t.RowKey(row)
	if err != nil {
		return err
	}
	if err := t.ValidateRow(row, types.RowCheckers{}); err != nil {
		return err
	}
	if _, exists := f.rows[table][pk.HashKey()]; exists {
		return errs.Value("duplicate primary key %s", pk)
	}
	f.rows[table][pk.HashKey()] = row
	return nil
}

func (f *fakeTxn) ReadRow(table string, pk types.DataValue) (types.Row, bool, error) {
	row, ok := f.rows[table][pk.HashKey()]
	return row, ok, nil
}

func (f *fakeTxn) UpdateRow(table string, pk types.DataValue, row types.Row) error {
	f.rows[table][pk.HashKey()] = row
	return nil
}

func (f *fakeTxn) DeleteRow(table string, pk types.DataValue) error {
	delete(f.rows[table], pk.HashKey())
	return nil
}

func (f *fakeTxn) ScanTable(table string) (RowIter, error) {
	var rows []types.Row
	for _, r := range f.rows[table] {
		rows = append(rows, r)
	}
	return &sliceIter{rows: rows}, nil
}

func (f *fakeTxn) ScanIndex(table, column string, value types.DataValue) ([]types.DataValue, error) {
	return nil, nil
}

type sliceIter struct {
	rows []types.Row
	pos  int
}

func (it *sliceIter) Next() (types.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, nil
	}
	r := it.rows[it.pos]
	it.pos++
	return r, nil
}

func run(t *testing.T, txn *fakeTxn, sql string) *ResultSet {
	t.Helper()
	stmt, err := parser.Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	node, err := plan.New(txn).Plan(stmt)
	if err != nil {
		t.Fatalf("plan %q: %v", sql, err)
	}
	rs, err := Execute(node, txn)
	if err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
	return rs
}

func drain(t *testing.T, rs *ResultSet) []types.Row {
	t.Helper()
	var out []types.Row
	for {
		row, err := rs.Rows.Next()
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if row == nil {
			return out
		}
		out = append(out, row)
	}
}

func TestCreateTableInsertAndScan(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE genres (id INTEGER PRIMARY KEY, name STRING NOT NULL)`)
	rs := run(t, txn, `INSERT INTO genres VALUES (1, 'noir'), (2, 'western')`)
	if rs.Kind != ResultCreate || rs.Count != 2 {
		t.Fatalf("unexpected insert result: %+v", rs)
	}

	rs = run(t, txn, `SELECT name FROM genres WHERE id = 1`)
	rows := drain(t, rs)
	if len(rows) != 1 || rows[0][0].AsString() != "noir" {
		t.Fatalf("unexpected scan result: %+v", rows)
	}
}

func TestInsertWithColumnListAndDefault(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE t (id INTEGER PRIMARY KEY, active BOOLEAN NOT NULL DEFAULT TRUE)`)
	run(t, txn, `INSERT INTO t (id) VALUES (1)`)
	rs := run(t, txn, `SELECT active FROM t WHERE id = 1`)
	rows := drain(t, rs)
	if len(rows) != 1 || !rows[0][0].AsBoolean() {
		t.Fatalf("expected default TRUE, got %+v", rows)
	}
}

func TestInsertMissingColumnWithoutDefaultFails(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE t (id INTEGER PRIMARY KEY, name STRING NOT NULL)`)
	stmt, err := parser.Parse(`INSERT INTO t (id) VALUES (1)`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	node, err := plan.New(txn).Plan(stmt)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := Execute(node, txn); err == nil {
		t.Fatal("expected an error for missing non-default column")
	}
}

func TestUpdateSwapsValuesAgainstOriginalRow(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE t (id INTEGER PRIMARY KEY, a INTEGER NOT NULL, b INTEGER NOT NULL)`)
	run(t, txn, `INSERT INTO t VALUES (1, 10, 20)`)
	rs := run(t, txn, `UPDATE t SET a = b, b = a WHERE id = 1`)
	if rs.Kind != ResultUpdate || rs.Count != 1 {
		t.Fatalf("unexpected update result: %+v", rs)
	}
	row := txn.rows["t"][types.NewInteger(1).HashKey()]
	if row[1].AsInteger() != 20 || row[2].AsInteger() != 10 {
		t.Fatalf("expected swapped values, got %+v", row)
	}
}

func TestDeleteRemovesMatchingRows(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	run(t, txn, `INSERT INTO t VALUES (1), (2), (3)`)
	rs := run(t, txn, `DELETE FROM t WHERE id = 2`)
	if rs.Kind != ResultDelete || rs.Count != 1 {
		t.Fatalf("unexpected delete result: %+v", rs)
	}
	if len(txn.rows["t"]) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(txn.rows["t"]))
	}
}

func TestOrderByAndLimit(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	run(t, txn, `INSERT INTO t VALUES (3), (1), (2)`)
	rs := run(t, txn, `SELECT id FROM t ORDER BY id ASC LIMIT 2`)
	rows := drain(t, rs)
	if len(rows) != 2 || rows[0][0].AsInteger() != 1 || rows[1][0].AsInteger() != 2 {
		t.Fatalf("unexpected ordered result: %+v", rows)
	}
}

func TestDropTableRejectsReferencedTable(t *testing.T) {
	txn := newFakeTxn()
	run(t, txn, `CREATE TABLE parent (id INTEGER PRIMARY KEY)`)
	run(t, txn, `CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent)`)
	stmt, err := parser.Parse(`DROP TABLE parent`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	node, err := plan.New(txn).Plan(stmt)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := Execute(node, txn); err == nil {
		t.Fatal("expected drop of a referenced table to fail")
	}
}
