package exec

import (
	"sort"

	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/plan"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// orderIter materializes its source fully, sorts it once, and then
// streams the sorted rows — ORDER BY cannot be evaluated incrementally
// since any later row could sort before the ones already seen.
type orderIter struct {
	rows []types.Row
	pos  int
}

func newOrderIter(src RowIter, orders []plan.OrderEntry) (*orderIter, error) {
	var rows []types.Row
	for {
		row, err := src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := rowLess(rows[i], rows[j], orders)
		if err != nil {
			sortErr = err
			return false
		}
		return less
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return &orderIter{rows: rows}, nil
}

func rowLess(a, b types.Row, orders []plan.OrderEntry) (bool, error) {
	for _, o := range orders {
		va, err := expr.Evaluate(o.Expr, a)
		if err != nil {
			return false, err
		}
		vb, err := expr.Evaluate(o.Expr, b)
		if err != nil {
			return false, err
		}
		cmp := compareValues(va, vb)
		if cmp == 0 {
			continue
		}
		if o.Desc {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

// compareValues orders two values for ORDER BY. NULL sorts before every
// other value. Integer and Float compare numerically against each other;
// Boolean and String compare within their own type. Two values of
// otherwise incomparable types fall back to reporting a as greater, per
// the documented "comparisons between mismatched types default to
// Greater" peculiarity — this keeps sort total instead of
// panicking on a mixed-type column.
func compareValues(a, b types.DataValue) int {
	if a.IsNull() && b.IsNull() {
		return 0
	}
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}
	at, _ := a.DataType()
	bt, _ := b.DataType()

	numeric := func(v types.DataValue, t types.DataType) (float64, bool) {
		switch t {
		case types.Integer:
			return float64(v.AsInteger()), true
		case types.Float:
			return v.AsFloat(), true
		default:
			return 0, false
		}
	}
	if af, aok := numeric(a, at); aok {
		if bf, bok := numeric(b, bt); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
		return 1
	}

	switch {
	case at == types.Boolean && bt == types.Boolean:
		switch {
		case a.AsBoolean() == b.AsBoolean():
			return 0
		case !a.AsBoolean():
			return -1
		default:
			return 1
		}
	case at == types.String && bt == types.String:
		switch {
		case a.AsString() < b.AsString():
			return -1
		case a.AsString() > b.AsString():
			return 1
		default:
			return 0
		}
	default:
		return 1
	}
}

func (it *orderIter) Next() (types.Row, error) {
	if it.pos >= len(it.rows) {
		return nil, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, nil
}
