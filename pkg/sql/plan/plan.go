// Package plan compiles parsed statements (pkg/sql/ast) into a tree of
// Node, resolving every column reference to a row index via Scope.
// It is purely a compiler: Node carries no behavior, only data for
// pkg/sql/exec to execute.
package plan

import (
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/ast"
	"github.com/cuemby/kvdb/pkg/sql/expr"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// Catalog is the subset of the transaction interface the planner needs:
// schema lookup by name.
type Catalog interface {
	GetTable(name string) (*types.Table, error)
}

// Kind discriminates Node's variants.
type Kind int

const (
	KindNothing Kind = iota
	KindCreateTable
	KindDropTable
	KindScan
	KindFilter
	KindProjection
	KindOrderBy
	KindLimit
	KindGroupBy
	KindInsert
	KindUpdate
	KindDelete
)

// ProjectionItem is one projected output column: the compiled expression,
// its alias (if any), and — for a bare column reference — the (table,
// name) the output column inherits for further unqualified resolution.
type ProjectionItem struct {
	Expr        *expr.Expression
	Alias       string
	SourceTable string
	SourceName  string
}

// OrderEntry is one ORDER BY key.
type OrderEntry struct {
	Expr *expr.Expression
	Desc bool
}

// Assignment is one UPDATE SET target: the column's row index and its
// replacement expression, evaluated against the pre-update row.
type Assignment struct {
	ColumnIndex int
	Expr        *expr.Expression
}

// Node is the planner's tagged output tree. Exactly the fields
// relevant to Kind are populated.
type Node struct {
	Kind Kind

	Source *Node

	// CreateTable
	Schema *types.Table

	// DropTable / Scan / Insert / Update / Delete
	Table string

	// Scan
	Alias  string
	Filter *expr.Expression

	// Projection
	Projections []ProjectionItem

	// OrderBy
	Orders []OrderEntry

	// Limit
	Offset int64
	Limit  *int64

	// GroupBy
	GroupBy []*expr.Expression

	// Insert
	Columns []string
	Rows    [][]*expr.Expression

	// Update
	Assignments []Assignment

	// OutputScope is the resolved column scope the node produces, used by
	// ResultSet to build column headers and by an enclosing node to
	// resolve further references.
	OutputScope *Scope
}

// Planner compiles ast.Statement trees against a Catalog.
type Planner struct {
	catalog Catalog
}

// New creates a Planner backed by catalog.
func New(catalog Catalog) *Planner {
	return &Planner{catalog: catalog}
}

// Plan compiles one statement into a Node tree.
func (p *Planner) Plan(stmt ast.Statement) (*Node, error) {
	switch s := stmt.(type) {
	case ast.CreateTable:
		return p.planCreateTable(s)
	case ast.DropTable:
		return &Node{Kind: KindDropTable, Table: s.Name}, nil
	case ast.Insert:
		return p.planInsert(s)
	case ast.Select:
		return p.planSelect(s)
	case ast.Update:
		return p.planUpdate(s)
	case ast.Delete:
		return p.planDelete(s)
	default:
		return nil, errs.Internal("plan: unknown statement type %T", stmt)
	}
}

func (p *Planner) planCreateTable(s ast.CreateTable) (*Node, error) {
	table := &types.Table{Name: s.Name}
	constScope := NewConstantScope()
	for _, c := range s.Columns {
		col := types.Column{
			Name:       c.Name,
			DataType:   c.DataType,
			PrimaryKey: c.PrimaryKey,
			Nullable:   c.Nullable,
			Unique:     c.Unique || c.PrimaryKey,
			Indexed:    c.Indexed || c.PrimaryKey,
			References: c.References,
		}
		if c.Default != nil {
			e, err := p.compileExpr(c.Default, constScope)
			if err != nil {
				return nil, err
			}
			v, err := expr.Evaluate(e, nil)
			if err != nil {
				return nil, err
			}
			col.Default = &v
		}
		table.Columns = append(table.Columns, col)
	}
	if err := table.Validate(p.catalog.GetTable); err != nil {
		return nil, err
	}
	return &Node{Kind: KindCreateTable, Schema: table}, nil
}

func (p *Planner) planInsert(s ast.Insert) (*Node, error) {
	table, err := p.catalog.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	constScope := NewConstantScope()

	node := &Node{Kind: KindInsert, Table: s.Table, Columns: s.Columns}
	for _, row := range s.Values {
		var compiled []*expr.Expression
		for _, e := range row {
			ce, err := p.compileExpr(e, constScope)
			if err != nil {
				return nil, err
			}
			compiled = append(compiled, ce)
		}
		node.Rows = append(node.Rows, compiled)
	}
	node.OutputScope = FromTable(table, "")
	return node, nil
}

func (p *Planner) planSelect(s ast.Select) (*Node, error) {
	var node *Node
	scope := NewConstantScope()

	if s.From != "" {
		table, err := p.catalog.GetTable(s.From)
		if err != nil {
			return nil, err
		}
		scope = FromTable(table, s.Alias)
		node = &Node{Kind: KindScan, Table: s.From, Alias: s.Alias, OutputScope: scope}

		if s.Where != nil {
			pred, err := p.compileExpr(s.Where, scope)
			if err != nil {
				return nil, err
			}
			node.Filter = pred
		}
	} else if s.Where != nil {
		return nil, errs.Value("WHERE requires a FROM clause")
	}

	items, outScope, err := p.compileProjection(s.Items, scope)
	if err != nil {
		return nil, err
	}
	node = &Node{Kind: KindProjection, Source: node, Projections: items, OutputScope: outScope}

	if len(s.GroupBy) > 0 {
		var exprs []*expr.Expression
		for _, g := range s.GroupBy {
			ce, err := p.compileExpr(g, scope)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, ce)
		}
		node = &Node{Kind: KindGroupBy, Source: node, GroupBy: exprs, OutputScope: outScope}
	}

	if len(s.OrderBy) > 0 {
		var orders []OrderEntry
		for _, o := range s.OrderBy {
			ce, err := p.compileExpr(o.Expr, outScope)
			if err != nil {
				// ORDER BY may reference pre-projection columns too.
				ce, err = p.compileExpr(o.Expr, scope)
				if err != nil {
					return nil, err
				}
			}
			orders = append(orders, OrderEntry{Expr: ce, Desc: o.Desc})
		}
		node = &Node{Kind: KindOrderBy, Source: node, Orders: orders, OutputScope: outScope}
	}

	if s.Limit != nil || s.Offset != nil {
		limitNode := &Node{Kind: KindLimit, Source: node, OutputScope: outScope}
		if s.Offset != nil {
			off, err := p.constantInt(s.Offset)
			if err != nil {
				return nil, err
			}
			limitNode.Offset = off
		}
		if s.Limit != nil {
			lim, err := p.constantInt(s.Limit)
			if err != nil {
				return nil, err
			}
			limitNode.Limit = &lim
		}
		node = limitNode
	}

	return node, nil
}

func (p *Planner) constantInt(e ast.Expr) (int64, error) {
	ce, err := p.compileExpr(e, NewConstantScope())
	if err != nil {
		return 0, err
	}
	v, err := expr.Evaluate(ce, nil)
	if err != nil {
		return 0, err
	}
	dt, ok := v.DataType()
	if !ok || dt != types.Integer {
		return 0, errs.Value("LIMIT/OFFSET requires an INTEGER")
	}
	return v.AsInteger(), nil
}

func (p *Planner) compileProjection(items []ast.SelectItem, scope *Scope) ([]ProjectionItem, *Scope, error) {
	var out []ProjectionItem
	for _, it := range items {
		if _, ok := it.Expr.(ast.Star); ok {
			for i := 0; i < scope.Len(); i++ {
				name := scope.columns[i].name
				table := scope.columns[i].table
				out = append(out, ProjectionItem{
					Expr:        expr.Field(i, table, name),
					SourceTable: table,
					SourceName:  name,
				})
			}
			continue
		}
		ce, err := p.compileExpr(it.Expr, scope)
		if err != nil {
			return nil, nil, err
		}
		pi := ProjectionItem{Expr: ce, Alias: it.Alias}
		if col, ok := it.Expr.(ast.Column); ok && it.Alias == "" {
			pi.SourceTable = col.Table
			pi.SourceName = col.Name
		}
		out = append(out, pi)
	}
	outScope := scope.Project(out)
	return out, outScope, nil
}

func (p *Planner) planUpdate(s ast.Update) (*Node, error) {
	table, err := p.catalog.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	scope := FromTable(table, "")

	scan := &Node{Kind: KindScan, Table: s.Table, OutputScope: scope}
	if s.Where != nil {
		pred, err := p.compileExpr(s.Where, scope)
		if err != nil {
			return nil, err
		}
		scan.Filter = pred
	}

	var assigns []Assignment
	for _, a := range s.Assignments {
		idx, err := table.GetColumnIndex(a.Column)
		if err != nil {
			return nil, err
		}
		ce, err := p.compileExpr(a.Value, scope)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{ColumnIndex: idx, Expr: ce})
	}

	return &Node{Kind: KindUpdate, Table: s.Table, Source: scan, Assignments: assigns, OutputScope: scope}, nil
}

func (p *Planner) planDelete(s ast.Delete) (*Node, error) {
	table, err := p.catalog.GetTable(s.Table)
	if err != nil {
		return nil, err
	}
	scope := FromTable(table, "")

	scan := &Node{Kind: KindScan, Table: s.Table, OutputScope: scope}
	if s.Where != nil {
		pred, err := p.compileExpr(s.Where, scope)
		if err != nil {
			return nil, err
		}
		scan.Filter = pred
	}
	return &Node{Kind: KindDelete, Table: s.Table, Source: scan, OutputScope: scope}, nil
}

// compileExpr compiles an ast.Expr into an expr.Expression, resolving
// column references through scope.
func (p *Planner) compileExpr(e ast.Expr, scope *Scope) (*expr.Expression, error) {
	switch v := e.(type) {
	case ast.Literal:
		return expr.Constant(v.Value), nil
	case ast.Star:
		return expr.Wildcard(), nil
	case ast.Column:
		idx, err := scope.Resolve(v.Table, v.Name)
		if err != nil {
			return nil, err
		}
		return expr.Field(idx, v.Table, v.Name), nil
	case ast.Unary:
		inner, err := p.compileExpr(v.Expr, scope)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case ast.UnaryNeg:
			return expr.Neg(inner), nil
		case ast.UnaryNot:
			return expr.Not(inner), nil
		case ast.UnaryFactorial:
			return expr.Factorial(inner), nil
		}
		return nil, errs.Internal("plan: unknown unary operator %d", v.Op)
	case ast.Binary:
		l, err := p.compileExpr(v.Left, scope)
		if err != nil {
			return nil, err
		}
		r, err := p.compileExpr(v.Right, scope)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case ast.BinAnd:
			return expr.And(l, r), nil
		case ast.BinOr:
			return expr.Or(l, r), nil
		case ast.BinEq:
			return expr.Eq(l, r), nil
		case ast.BinNeq:
			return expr.NotEq(l, r), nil
		case ast.BinLt:
			return expr.Lt(l, r), nil
		case ast.BinLte:
			return expr.LTE(l, r), nil
		case ast.BinGt:
			return expr.Gt(l, r), nil
		case ast.BinGte:
			return expr.GTE(l, r), nil
		case ast.BinAdd:
			return expr.Add(l, r), nil
		case ast.BinSub:
			return expr.Sub(l, r), nil
		case ast.BinMul:
			return expr.Mul(l, r), nil
		case ast.BinDiv:
			return expr.Div(l, r), nil
		case ast.BinMod:
			return expr.Mod(l, r), nil
		case ast.BinExp:
			return expr.Exp(l, r), nil
		}
		return nil, errs.Internal("plan: unknown binary operator %d", v.Op)
	case ast.IsNull:
		inner, err := p.compileExpr(v.Expr, scope)
		if err != nil {
			return nil, err
		}
		isNull := expr.IsNull(inner)
		if v.Not {
			return expr.Not(isNull), nil
		}
		return isNull, nil
	case ast.Like:
		l, err := p.compileExpr(v.Expr, scope)
		if err != nil {
			return nil, err
		}
		r, err := p.compileExpr(v.Pattern, scope)
		if err != nil {
			return nil, err
		}
		like := expr.Like(l, r)
		if v.Not {
			return expr.Not(like), nil
		}
		return like, nil
	default:
		return nil, errs.Internal("plan: unknown expression type %T", e)
	}
}
