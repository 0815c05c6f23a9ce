// Package ast defines the parse tree the parser produces: statements and
// unresolved expressions, named (table, column) pairs rather than the
// resolved field indices pkg/sql/plan's Scope compiles them to.
package ast

import "github.com/cuemby/kvdb/pkg/sql/types"

// Statement is the sum type of top-level statements the parser accepts.
type Statement interface{ isStatement() }

type CreateTable struct {
	Name    string
	Columns []ColumnDef
}

type ColumnDef struct {
	Name       string
	DataType   types.DataType
	PrimaryKey bool
	Nullable   bool
	NullableSet bool // true once NOT NULL or NULL was seen explicitly
	Default    Expr
	Unique     bool
	Indexed    bool
	References string
}

type DropTable struct {
	Name string
}

type Insert struct {
	Table   string
	Columns []string // nil if no column list given
	Values  [][]Expr
}

type SelectItem struct {
	Expr  Expr
	Alias string
}

type OrderItem struct {
	Expr Expr
	Desc bool
}

type Select struct {
	Items   []SelectItem
	From    string // empty if there is no FROM clause
	Alias   string
	Where   Expr
	GroupBy []Expr
	OrderBy []OrderItem
	Limit   Expr
	Offset  Expr
}

type Assignment struct {
	Column string
	Value  Expr
}

type Update struct {
	Table       string
	Assignments []Assignment
	Where       Expr
}

type Delete struct {
	Table string
	Where Expr
}

func (CreateTable) isStatement() {}
func (DropTable) isStatement()   {}
func (Insert) isStatement()      {}
func (Select) isStatement()      {}
func (Update) isStatement()      {}
func (Delete) isStatement()      {}

// Expr is the parser's unresolved expression tree.
type Expr interface{ isExpr() }

type Literal struct{ Value types.DataValue }

type Column struct {
	Table string // empty if unqualified
	Name  string
}

type Star struct{}

type UnaryOp int

const (
	UnaryNeg UnaryOp = iota
	UnaryNot
	UnaryFactorial // postfix
)

type Unary struct {
	Op   UnaryOp
	Expr Expr
}

type BinaryOp int

const (
	BinAnd BinaryOp = iota
	BinOr
	BinEq
	BinNeq
	BinLt
	BinLte
	BinGt
	BinGte
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
	BinExp
)

type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

type IsNull struct {
	Expr Expr
	Not  bool // IS NOT NULL
}

type Like struct {
	Expr    Expr
	Pattern Expr
	Not     bool
}

func (Literal) isExpr() {}
func (Column) isExpr()  {}
func (Star) isExpr()    {}
func (Unary) isExpr()   {}
func (Binary) isExpr()  {}
func (IsNull) isExpr()  {}
func (Like) isExpr()    {}
