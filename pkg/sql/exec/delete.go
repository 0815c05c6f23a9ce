package exec

import "github.com/cuemby/kvdb/pkg/sql/plan"

// execDelete streams node.Source (a Scan with node's Filter already
// applied) and deletes each matching row by primary key.
func execDelete(node *plan.Node, txn Transaction) (*ResultSet, error) {
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
		if err := txn.DeleteRow(node.Table, pk); err != nil {
			return nil, err
		}
		count++
	}
	return &ResultSet{Kind: ResultDelete, Count: count}, nil
}
