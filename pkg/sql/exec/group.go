package exec

import (
	"fmt"

	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// groupIter collapses its source to one row per distinct GROUP BY key,
// keeping the first row seen for each key. kvdb has no aggregate functions
// (this dialect's grammar has none), so GroupBy's only job is de-duplication by key.
type groupIter struct {
	rows []types.Row
	pos  int
}

func newGroupIter(src RowIter, keys []*expr.Expression) (*groupIter, error) {
	seen := map[string]bool{}
	var rows []types.Row
	for {
		row, err := src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		k, err := groupKey(keys, row)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, row)
	}
	return &groupIter{rows: rows}, nil
}

func groupKey(keys []*expr.Expression, row types.Row) (string, error) {
	key := ""
	for _, k := range keys {
		v, err := expr.Evaluate(k, row)
		if err != nil {
			return "", err
		}
		key += fmt.Sprintf("%v|%v\x00", v.HashKey(), v.IsNull())
	}
	return key, nil
}

func (it *groupIter) Next() (types.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}
