package plan

import (
	"fmt"
	"strings"
)

// Describe renders a Node tree as an indented, human-readable plan, used by
// the EXPLAIN result and the wire protocol's Execute(ResultSet) response
// (plan.Node itself carries unexported Scope internals not worth shipping
// over the wire).
func (n *Node) Describe() string {
	var b strings.Builder
	n.describe(&b, 0)
	return b.String()
}

func (n *Node) describe(b *strings.Builder, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s", indent, n.Kind)
	if n.Table != "" {
		fmt.Fprintf(b, " table=%s", n.Table)
	}
	if n.Alias != "" && n.Alias != n.Table {
		fmt.Fprintf(b, " alias=%s", n.Alias)
	}
	if n.Filter != nil {
		fmt.Fprintf(b, " filter=%s", n.Filter)
	}
	if len(n.Projections) > 0 {
		names := make([]string, len(n.Projections))
		for i, p := range n.Projections {
			names[i] = p.Alias
		}
		fmt.Fprintf(b, " columns=[%s]", strings.Join(names, ", "))
	}
	if len(n.Orders) > 0 {
		fmt.Fprintf(b, " order_by=%d", len(n.Orders))
	}
	if n.Limit != nil {
		fmt.Fprintf(b, " limit=%d offset=%d", *n.Limit, n.Offset)
	} else if n.Offset > 0 {
		fmt.Fprintf(b, " offset=%d", n.Offset)
	}
	if len(n.Assignments) > 0 {
		fmt.Fprintf(b, " assignments=%d", len(n.Assignments))
	}
	if len(n.Rows) > 0 {
		fmt.Fprintf(b, " rows=%d", len(n.Rows))
	}
	b.WriteByte('\n')
	if n.Source != nil {
		n.Source.describe(b, depth+1)
	}
}

func (k Kind) String() string {
	switch k {
	case KindCreateTable:
		return "CreateTable"
	case KindDropTable:
		return "DropTable"
	case KindInsert:
		return "Insert"
	case KindScan:
		return "Scan"
	case KindFilter:
		return "Filter"
	case KindProjection:
		return "Projection"
	case KindOrderBy:
		return "OrderBy"
	case KindLimit:
		return "Limit"
	case KindGroupBy:
		return "GroupBy"
	case KindUpdate:
		return "Update"
	case KindDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}
