package exec

import (
	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/plan"
)

// execUpdate streams node.Source (a Scan with node's Filter already applied)
// and, for each matching row, evaluates every assignment against the
// original row before writing the new row back — so "SET a = b, b = a"
// swaps rather than chasing its own write.
func execUpdate(node *plan.Node, txn Transaction) (*ResultSet, error) {
	table, err := txn.GetTable(node.Table)
	if err != nil {
		return nil, err
	}
	src, _, err := buildIter(node.Source, txn)
	if err != nil {
		return nil, err
	}

	seen := map[any]struct{}{}
	count := 0
	for {
		row, err := src.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		pk, err := table.RowKey(row)
		if err != nil {
			return nil, err
		}
		key := pk.HashKey()
		if _, already := seen[key]; already {
			continue
		}
		seen[key] = struct{}{}

		newRow := append(row[:0:0], row...)
		for _, a := range node.Assignments {
			v, err := expr.Evaluate(a.Expr, row)
			if err != nil {
				return nil, err
			}
			newRow[a.ColumnIndex] = v
		}
		if err := txn.UpdateRow(node.Table, pk, newRow); err != nil {
			return nil, err
		}
		count++
	}
	return &ResultSet{Kind: ResultUpdate, Count: count}, nil
}
