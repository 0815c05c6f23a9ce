package types

import (
	"fmt"

	"github.com/cuemby/kvdb/pkg/errs"
)

// Row is an ordered sequence of values aligned positionally to Table.Columns.
type Row []DataValue

// Column describes one column of a Table.
type Column struct {
	Name        string
	DataType    DataType
	PrimaryKey  bool
	Nullable    bool
	Default     *DataValue
	Unique      bool
	References  string // referenced table name, empty if none
	Indexed     bool
}

// Table is a name and an ordered list of columns.
type Table struct {
	Name    string
	Columns []Column
}

// GetColumnIndex returns the position of the named column.
func (t *Table) GetColumnIndex(name string) (int, error) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, errs.Value("column %q does not exist in table %q", name, t.Name)
}

// PrimaryKeyColumn returns the table's single primary-key column.
func (t *Table) PrimaryKeyColumn() (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].PrimaryKey {
			return &t.Columns[i], nil
		}
	}
	return nil, errs.Value("table %q has no primary key", t.Name)
}

// RowKey returns the primary-key value of row.
func (t *Table) RowKey(row Row) (DataValue, error) {
	for i, c := range t.Columns {
		if c.PrimaryKey {
			if i >= len(row) {
				return DataValue{}, errs.Value("row is missing its primary key value")
			}
			return row[i], nil
		}
	}
	return DataValue{}, errs.Value("table %q has no primary key", t.Name)
}

// Validate checks the schema-level invariants: non-empty
// columns, exactly one primary key, unique column names, and per-column
// invariants (ValidateColumn). resolve looks up a referenced table by name
// for foreign-key checks (nil tables reference themselves).
func (t *Table) Validate(resolve func(name string) (*Table, error)) error {
	if len(t.Columns) == 0 {
		return errs.Value("table %q has no columns", t.Name)
	}

	seen := map[string]bool{}
	pkCount := 0
	for _, c := range t.Columns {
		if seen[c.Name] {
			return errs.Value("duplicate column name %q in table %q", c.Name, t.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pkCount++
		}
	}
	switch pkCount {
	case 1:
	case 0:
		return errs.Value("table %q has no primary key", t.Name)
	default:
		return errs.Value("table %q has multiple primary keys", t.Name)
	}

	for _, c := range t.Columns {
		if err := c.Validate(t, resolve); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one column's invariants against its owning table.
func (c *Column) Validate(table *Table, resolve func(name string) (*Table, error)) error {
	if c.PrimaryKey && c.Nullable {
		return errs.Value("primary key column %q cannot be nullable", c.Name)
	}
	if c.PrimaryKey && !c.Unique {
		return errs.Value("primary key column %q must be unique", c.Name)
	}
	if c.PrimaryKey && !c.Indexed {
		return errs.Value("primary key column %q must be indexed", c.Name)
	}

	if c.Default != nil {
		if dt, ok := c.Default.DataType(); ok {
			if dt != c.DataType {
				return errs.Value("default value for column %q has type %s, must be %s", c.Name, dt, c.DataType)
			}
		} else if !c.Nullable {
			return errs.Value("cannot use NULL as default for non-nullable column %q", c.Name)
		}
	} else if c.Nullable {
		return errs.Value("nullable column %q must have a default value", c.Name)
	}

	if c.References != "" {
		var target *Table
		if c.References == table.Name {
			target = table
		} else {
			t, err := resolve(c.References)
			if err != nil {
				return err
			}
			if t == nil {
				return errs.Value("table %q referenced by column %q does not exist", c.References, c.Name)
			}
			target = t
		}
		pk, err := target.PrimaryKeyColumn()
		if err != nil {
			return err
		}
		if pk.DataType != c.DataType {
			return errs.Value(
				"cannot reference %s primary key of table %q from %s column %q",
				pk.DataType, target.Name, c.DataType, c.Name,
			)
		}
	}

	return nil
}

// ValidateRow validates a fully-materialized row against t: cell count,
// per-cell type/nullability, string length, and (via checkers) foreign-key
// existence and unique-constraint checks that require reading the catalog.
type RowCheckers struct {
	// ForeignKeyExists reports whether value exists as a primary key in table.
	ForeignKeyExists func(table string, value DataValue) (bool, error)
	// UniqueConflict reports whether value already exists in the named
	// unique, non-primary-key column of t.
	UniqueConflict func(table, column string, value DataValue) (bool, error)
}

func (t *Table) ValidateRow(row Row, checkers RowCheckers) error {
	if len(row) != len(t.Columns) {
		return errs.Value("table %q expects %d columns, row has %d", t.Name, len(t.Columns), len(row))
	}
	for i, c := range t.Columns {
		v := row[i]
		if v.IsNull() {
			if !c.Nullable {
				return errs.Value("column %q cannot be NULL", c.Name)
			}
			continue
		}
		dt, _ := v.DataType()
		if dt != c.DataType {
			return errs.Value("column %q has type %s, got %s", c.Name, c.DataType, dt)
		}
		if dt == String && len(v.AsString()) > MaxStringBytes {
			return errs.Value("column %q string value exceeds %d bytes", c.Name, MaxStringBytes)
		}
		if c.References != "" && checkers.ForeignKeyExists != nil {
			ok, err := checkers.ForeignKeyExists(c.References, v)
			if err != nil {
				return err
			}
			if !ok {
				return errs.Value("value %s in column %q does not reference an existing row of %q", v, c.Name, c.References)
			}
		}
		if c.Unique && !c.PrimaryKey && checkers.UniqueConflict != nil {
			conflict, err := checkers.UniqueConflict(t.Name, c.Name, v)
			if err != nil {
				return err
			}
			if conflict {
				return errs.Value("value %s already exists in unique column %q", v, c.Name)
			}
		}
	}
	return nil
}

func (c Column) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.DataType)
}
