// Package engine wires the MVCC transactional layer (pkg/mvcc) to the SQL
// key namespace (pkg/keys) and the executor contract (pkg/sql/exec),
// maintaining schemas, rows and secondary indexes as plain Record entries.
package engine

import (
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/keys"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/sql/exec"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// Transaction adapts one *mvcc.Transaction to exec.Transaction (and hence
// plan.Catalog), giving the executor a uniform row/table/index API over the
// SQL key namespace.
type Transaction struct {
	txn *mvcc.Transaction
}

// New wraps an mvcc transaction for SQL use.
func New(txn *mvcc.Transaction) *Transaction {
	return &Transaction{txn: txn}
}

// Underlying returns the wrapped MVCC transaction. Session does not call it;
// it keeps its own handle to commit or roll back.
func (t *Transaction) Underlying() *mvcc.Transaction { return t.txn }

// GetTable reads a table's schema (plan.Catalog / exec.Transaction).
func (t *Transaction) GetTable(name string) (*types.Table, error) {
	raw, err := t.txn.Get(keys.Table(name).Encode())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.Value("table %q does not exist", name)
	}
	return decodeTable(raw)
}

// CreateTable writes a new table's schema, failing if one already exists
// under that name.
func (t *Transaction) CreateTable(table *types.Table) error {
	key := keys.Table(table.Name).Encode()
	existing, err := t.txn.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return errs.Value("table %q already exists", table.Name)
	}
	raw, err := encodeTable(table)
	if err != nil {
		return err
	}
	return t.txn.Set(key, raw)
}

// DropTable deletes a table's schema and every row and index entry
// belonging to it.
func (t *Transaction) DropTable(name string) error {
	table, err := t.GetTable(name)
	if err != nil {
		return err
	}
	rows, err := t.txn.ScanPrefix(keys.RowPrefix(name).Encode())
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := t.txn.Delete(r.Key); err != nil {
			return err
		}
	}
	for _, c := range table.Columns {
		if !c.Indexed {
			continue
		}
		entries, err := t.txn.ScanPrefix(keys.IndexPrefix(name, c.Name).Encode())
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := t.txn.Delete(e.Key); err != nil {
				return err
			}
		}
	}
	return t.txn.Delete(keys.Table(name).Encode())
}

// ListTables returns every table name in the catalog, in scan order.
func (t *Transaction) ListTables() ([]string, error) {
	entries, err := t.txn.ScanPrefix(keys.TablePrefix().Encode())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		table, err := decodeTable(e.Value)
		if err != nil {
			return nil, err
		}
		names = append(names, table.Name)
	}
	return names, nil
}

// TableReferencedBy reports whether some other table's column references
// name via REFERENCES, and if so which table, so DropTable can be refused
// (the foreign-key invariant: a referenced table cannot be dropped
// out from under its referrers).
func (t *Transaction) TableReferencedBy(name string) (string, bool, error) {
	entries, err := t.txn.ScanPrefix(keys.TablePrefix().Encode())
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		table, err := decodeTable(e.Value)
		if err != nil {
			return "", false, err
		}
		if table.Name == name {
			continue
		}
		for _, c := range table.Columns {
			if c.References == name {
				return table.Name, true, nil
			}
		}
	}
	return "", false, nil
}

// CreateRow validates row against its table's schema (type, nullability,
// string length, foreign keys, unique constraints), fails if its primary
// key already exists, writes the row, and updates every Indexed column's
// index set.
func (t *Transaction) CreateRow(tableName string, row types.Row) error {
	table, err := t.GetTable(tableName)
	if err != nil {
		return err
	}
	if err := table.ValidateRow(row, t.checkers(table)); err != nil {
		return err
	}
	pk, err := table.RowKey(row)
	if err != nil {
		return err
	}
	key := keys.Row(tableName, pk).Encode()
	existing, err := t.txn.Get(key)
	if err != nil {
		return err
	}
	if existing != nil {
		return errs.Value("duplicate primary key %s in table %q", pk, tableName)
	}
	raw, err := encodeRow(row)
	if err != nil {
		return err
	}
	if err := t.txn.Set(key, raw); err != nil {
		return err
	}
	return t.addToIndexes(table, row, pk)
}

// ReadRow reads one row by primary key.
func (t *Transaction) ReadRow(tableName string, pk types.DataValue) (types.Row, bool, error) {
	raw, err := t.txn.Get(keys.Row(tableName, pk).Encode())
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	row, err := decodeRow(raw)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// UpdateRow validates and writes a replacement row for pk, updating any
// Indexed column whose value changed. A primary-key change is implemented
// as a delete-then-insert under the new key.
func (t *Transaction) UpdateRow(tableName string, pk types.DataValue, row types.Row) error {
	table, err := t.GetTable(tableName)
	if err != nil {
		return err
	}
	oldRow, ok, err := t.ReadRow(tableName, pk)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Value("row with primary key %s does not exist in table %q", pk, tableName)
	}

	checkers := t.checkers(table)
	checkers.UniqueConflict = func(refTable, column string, value types.DataValue) (bool, error) {
		return t.uniqueConflictExcluding(refTable, column, value, pk)
	}
	if err := table.ValidateRow(row, checkers); err != nil {
		return err
	}

	newPK, err := table.RowKey(row)
	if err != nil {
		return err
	}

	if err := t.removeFromIndexes(table, oldRow, pk); err != nil {
		return err
	}

	if !newPK.Equal(pk) {
		if err := t.txn.Delete(keys.Row(tableName, pk).Encode()); err != nil {
			return err
		}
		existing, err := t.txn.Get(keys.Row(tableName, newPK).Encode())
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.Value("duplicate primary key %s in table %q", newPK, tableName)
		}
	}

	raw, err := encodeRow(row)
	if err != nil {
		return err
	}
	if err := t.txn.Set(keys.Row(tableName, newPK).Encode(), raw); err != nil {
		return err
	}
	return t.addToIndexes(table, row, newPK)
}

// DeleteRow removes a row and its index entries.
func (t *Transaction) DeleteRow(tableName string, pk types.DataValue) error {
	table, err := t.GetTable(tableName)
	if err != nil {
		return err
	}
	row, ok, err := t.ReadRow(tableName, pk)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := t.removeFromIndexes(table, row, pk); err != nil {
		return err
	}
	return t.txn.Delete(keys.Row(tableName, pk).Encode())
}

// ScanTable streams every row of a table, already materialized since the
// MVCC layer's Scan/ScanPrefix aren't themselves lazy (the streaming
// contract starts one layer up, at the executor).
func (t *Transaction) ScanTable(tableName string) (exec.RowIter, error) {
	entries, err := t.txn.ScanPrefix(keys.RowPrefix(tableName).Encode())
	if err != nil {
		return nil, err
	}
	rows := make([]types.Row, 0, len(entries))
	for _, e := range entries {
		row, err := decodeRow(e.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return &tableIter{rows: rows}, nil
}

type tableIter struct {
	rows []types.Row
	pos  int
}

func (it *tableIter) Next() (types.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}

// ScanIndex returns the primary-key values of every row whose Indexed
// column holds value.
func (t *Transaction) ScanIndex(table, column string, value types.DataValue) ([]types.DataValue, error) {
	raw, err := t.txn.Get(keys.Index(table, column, value).Encode())
	if err != nil {
		return nil, err
	}
	return decodeIndexSet(raw)
}

func (t *Transaction) checkers(table *types.Table) types.RowCheckers {
	return types.RowCheckers{
		ForeignKeyExists: func(refTable string, value types.DataValue) (bool, error) {
			_, ok, err := t.ReadRow(refTable, value)
			return ok, err
		},
		UniqueConflict: func(tableName, column string, value types.DataValue) (bool, error) {
			return t.uniqueConflict(tableName, column, value)
		},
	}
}

func (t *Transaction) uniqueConflict(table, column string, value types.DataValue) (bool, error) {
	pks, err := t.ScanIndex(table, column, value)
	if err != nil {
		return false, err
	}
	return len(pks) > 0, nil
}

// uniqueConflictExcluding is uniqueConflict but ignores a match against the
// row's own primary key, so updating a row without changing its unique
// column doesn't conflict with itself.
func (t *Transaction) uniqueConflictExcluding(table, column string, value, excludePK types.DataValue) (bool, error) {
	pks, err := t.ScanIndex(table, column, value)
	if err != nil {
		return false, err
	}
	for _, pk := range pks {
		if !pk.Equal(excludePK) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Transaction) addToIndexes(table *types.Table, row types.Row, pk types.DataValue) error {
	for i, c := range table.Columns {
		if !c.Indexed {
			continue
		}
		if err := t.addIndexEntry(table.Name, c.Name, row[i], pk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) removeFromIndexes(table *types.Table, row types.Row, pk types.DataValue) error {
	for i, c := range table.Columns {
		if !c.Indexed {
			continue
		}
		if err := t.removeIndexEntry(table.Name, c.Name, row[i], pk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) addIndexEntry(table, column string, value, pk types.DataValue) error {
	key := keys.Index(table, column, value).Encode()
	pks, err := t.ScanIndex(table, column, value)
	if err != nil {
		return err
	}
	for _, existing := range pks {
		if existing.Equal(pk) {
			return nil
		}
	}
	pks = append(pks, pk)
	raw, err := encodeIndexSet(pks)
	if err != nil {
		return err
	}
	return t.txn.Set(key, raw)
}

func (t *Transaction) removeIndexEntry(table, column string, value, pk types.DataValue) error {
	key := keys.Index(table, column, value).Encode()
	pks, err := t.ScanIndex(table, column, value)
	if err != nil {
		return err
	}
	out := pks[:0]
	for _, existing := range pks {
		if !existing.Equal(pk) {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		return t.txn.Delete(key)
	}
	raw, err := encodeIndexSet(out)
	if err != nil {
		return err
	}
	return t.txn.Set(key, raw)
}
