package exec

import (
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/plan"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// execInsert materializes every value row in node.Rows and writes it as a
// new row of node.Table.
func execInsert(node *plan.Node, txn Transaction) (*ResultSet, error) {
	table, err := txn.GetTable(node.Table)
	if err != nil {
		return nil, err
	}
	count := 0
	for _, values := range node.Rows {
		row, err := makeRow(table, node.Columns, values)
		if err != nil {
			return nil, err
		}
		if err := txn.CreateRow(node.Table, row); err != nil {
			return nil, err
		}
		count++
	}
	return &ResultSet{Kind: ResultCreate, Count: count}, nil
}

// makeRow builds a fully-materialized, positionally-ordered row from a
// VALUES tuple, following the insert-materialization rules below:
//
//   - no explicit column list ("pad_row"): values fill columns left to
//     right; any column past the end of values must have a default, which
//     is used to pad the row — it is an error for a trailing column to lack
//     one.
//   - an explicit column list ("make_row"): values are first gathered into
//     a name -> value map (erroring on a duplicate column name), then the
//     row is built by taking the supplied value, falling back to the
//     column's default, and erroring if neither is available.
func makeRow(table *types.Table, columns []string, values []*expr.Expression) (types.Row, error) {
	if len(columns) == 0 {
		return padRow(table, values)
	}
	return makeRowByName(table, columns, values)
}

func padRow(table *types.Table, values []*expr.Expression) (types.Row, error) {
	if len(values) > len(table.Columns) {
		return nil, errs.Value("table %q has %d columns, %d values given", table.Name, len(table.Columns), len(values))
	}
	row := make(types.Row, len(table.Columns))
	empty := types.Row{}
	for i, c := range table.Columns {
		switch {
		case i < len(values):
			v, err := expr.Evaluate(values[i], empty)
			if err != nil {
				return nil, err
			}
			row[i] = v
		case c.Default != nil:
			row[i] = *c.Default
		default:
			return nil, errs.Value("column %q has no value and no default", c.Name)
		}
	}
	return row, nil
}

func makeRowByName(table *types.Table, columns []string, values []*expr.Expression) (types.Row, error) {
	if len(columns) != len(values) {
		return nil, errs.Value("column list has %d names, %d values given", len(columns), len(values))
	}
	empty := types.Row{}
	byName := make(map[string]types.DataValue, len(columns))
	for i, name := range columns {
		if _, exists := byName[name]; exists {
			return nil, errs.Value("column %q specified more than once", name)
		}
		v, err := expr.Evaluate(values[i], empty)
		if err != nil {
			return nil, err
		}
		byName[name] = v
	}

	row := make(types.Row, len(table.Columns))
	for i, c := range table.Columns {
		if v, ok := byName[c.Name]; ok {
			row[i] = v
			continue
		}
		if c.Default != nil {
			row[i] = *c.Default
			continue
		}
		return nil, errs.Value("column %q has no value and no default", c.Name)
	}
	return row, nil
}
