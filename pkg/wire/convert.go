package wire

import (
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/sql/exec"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// TableInfoFrom converts a catalog schema to its wire representation.
func TableInfoFrom(t *types.Table) *TableInfo {
	cols := make([]ColumnInfo, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = ColumnInfo{
			Name:       c.Name,
			DataType:   c.DataType.String(),
			PrimaryKey: c.PrimaryKey,
			Nullable:   c.Nullable,
			Unique:     c.Unique,
			Indexed:    c.Indexed,
			References: c.References,
		}
	}
	return &TableInfo{Name: t.Name, Columns: cols}
}

// StatusInfoFrom converts an mvcc.Status to its wire representation.
func StatusInfoFrom(s mvcc.Status) *StatusInfo {
	return &StatusInfo{
		StorageName:  s.StorageName,
		LastTxnID:    s.LastTxnID,
		ActiveTxnIDs: s.ActiveTxnIDs,
	}
}

// ExecuteSummaryFrom converts a ResultSet to its wire summary, excluding its
// live row iterator (the caller streams Row frames separately for a query).
func ExecuteSummaryFrom(rs *exec.ResultSet) *ExecuteSummary {
	summary := &ExecuteSummary{
		Kind:    rs.Kind.String(),
		Count:   rs.Count,
		Name:    rs.Name,
		Columns: rs.Columns,
	}
	if rs.Kind == exec.ResultExplain && rs.Explain != nil {
		summary.Explain = rs.Explain.Describe()
	}
	return summary
}
