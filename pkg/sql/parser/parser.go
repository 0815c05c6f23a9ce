// Package parser implements a recursive-descent parser over pkg/sql/lexer's
// token stream, producing pkg/sql/ast statements. Grounded on the
// token-stream/precedence-climbing shape of a full T-SQL parser, pared down
// to the restricted grammar this engine accepts: CREATE TABLE,
// DROP TABLE, INSERT, SELECT, UPDATE, DELETE.
package parser

import (
	"strconv"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/ast"
	"github.com/cuemby/kvdb/pkg/sql/lexer"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// Parser holds a two-token lookahead buffer over a Lexer.
type Parser struct {
	l         *lexer.Lexer
	cur, peek lexer.Token
}

// New creates a Parser over source.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.next()
	p.next()
	return p
}

// Parse parses one statement, consuming an optional trailing semicolon.
func Parse(source string) (ast.Statement, error) {
	p := New(source)
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.SEMICOLON {
		p.next()
	}
	if p.cur.Type != lexer.EOF {
		return nil, errs.Parse("unexpected token %q after statement", p.cur.Literal)
	}
	return stmt, nil
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.Next()
}

func (p *Parser) expect(t lexer.Type, what string) (lexer.Token, error) {
	if p.cur.Type != t {
		return lexer.Token{}, errs.Parse("expected %s, got %q at line %d", what, p.cur.Literal, p.cur.Line)
	}
	tok := p.cur
	p.next()
	return tok, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Type {
	case lexer.CREATE:
		return p.parseCreateTable()
	case lexer.DROP:
		return p.parseDropTable()
	case lexer.INSERT:
		return p.parseInsert()
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.UPDATE:
		return p.parseUpdate()
	case lexer.DELETE:
		return p.parseDelete()
	default:
		return nil, errs.Parse("unexpected token %q at start of statement (line %d)", p.cur.Literal, p.cur.Line)
	}
}

// --- CREATE TABLE ---

func (p *Parser) parseCreateTable() (ast.Statement, error) {
	p.next() // CREATE
	if _, err := p.expect(lexer.TABLE, "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LPAREN, "("); err != nil {
		return nil, err
	}

	var cols []ast.ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.cur.Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
		return nil, err
	}
	return ast.CreateTable{Name: name, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ast.ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ast.ColumnDef{}, err
	}

	var dt types.DataType
	switch p.cur.Type {
	case lexer.BOOLEAN:
		dt = types.Boolean
	case lexer.INTEGER:
		dt = types.Integer
	case lexer.FLOAT_:
		dt = types.Float
	case lexer.STRING_:
		dt = types.String
	default:
		return ast.ColumnDef{}, errs.Parse("expected a data type for column %q, got %q", name, p.cur.Literal)
	}
	p.next()

	col := ast.ColumnDef{Name: name, DataType: dt, Nullable: true}

	for {
		switch p.cur.Type {
		case lexer.PRIMARY:
			p.next()
			if _, err := p.expect(lexer.KEY, "KEY"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.PrimaryKey = true
			col.Nullable = false
			col.NullableSet = true
		case lexer.NOT:
			p.next()
			if _, err := p.expect(lexer.NULL_, "NULL"); err != nil {
				return ast.ColumnDef{}, err
			}
			col.Nullable = false
			col.NullableSet = true
		case lexer.NULL_:
			p.next()
			col.Nullable = true
			col.NullableSet = true
		case lexer.UNIQUE:
			p.next()
			col.Unique = true
		case lexer.INDEX:
			p.next()
			col.Indexed = true
		case lexer.DEFAULT:
			p.next()
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return ast.ColumnDef{}, err
			}
			col.Default = e
		case lexer.REFERENCES:
			p.next()
			ref, err := p.expectIdent()
			if err != nil {
				return ast.ColumnDef{}, err
			}
			col.References = ref
		default:
			return col, nil
		}
	}
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Type != lexer.IDENT {
		return "", errs.Parse("expected identifier, got %q at line %d", p.cur.Literal, p.cur.Line)
	}
	lit := p.cur.Literal
	p.next()
	return lit, nil
}

// --- DROP TABLE ---

func (p *Parser) parseDropTable() (ast.Statement, error) {
	p.next() // DROP
	if _, err := p.expect(lexer.TABLE, "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return ast.DropTable{Name: name}, nil
}

// --- INSERT ---

func (p *Parser) parseInsert() (ast.Statement, error) {
	p.next() // INSERT
	if _, err := p.expect(lexer.INTO, "INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.cur.Type == lexer.LPAREN {
		p.next()
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, c)
			if p.cur.Type == lexer.COMMA {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(lexer.VALUES, "VALUES"); err != nil {
		return nil, err
	}

	var rows [][]ast.Expr
	for {
		if _, err := p.expect(lexer.LPAREN, "("); err != nil {
			return nil, err
		}
		var row []ast.Expr
		for {
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.cur.Type == lexer.COMMA {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if p.cur.Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}

	return ast.Insert{Table: table, Columns: columns, Values: rows}, nil
}

// --- SELECT ---

func (p *Parser) parseSelect() (ast.Statement, error) {
	p.next() // SELECT
	sel := ast.Select{}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		sel.Items = append(sel.Items, item)
		if p.cur.Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}

	if p.cur.Type == lexer.FROM {
		p.next()
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		sel.From = table
		if p.cur.Type == lexer.AS {
			p.next()
			alias, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			sel.Alias = alias
		} else if p.cur.Type == lexer.IDENT {
			sel.Alias = p.cur.Literal
			p.next()
		}
	}

	if p.cur.Type == lexer.WHERE {
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		sel.Where = e
	}

	if p.cur.Type == lexer.GROUP {
		p.next()
		if _, err := p.expect(lexer.BY, "BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
			if p.cur.Type == lexer.COMMA {
				p.next()
				continue
			}
			break
		}
	}

	if p.cur.Type == lexer.ORDER {
		p.next()
		if _, err := p.expect(lexer.BY, "BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			desc := false
			if p.cur.Type == lexer.ASC {
				p.next()
			} else if p.cur.Type == lexer.DESC {
				desc = true
				p.next()
			}
			sel.OrderBy = append(sel.OrderBy, ast.OrderItem{Expr: e, Desc: desc})
			if p.cur.Type == lexer.COMMA {
				p.next()
				continue
			}
			break
		}
	}

	if p.cur.Type == lexer.LIMIT {
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		sel.Limit = e
	}

	if p.cur.Type == lexer.OFFSET {
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		sel.Offset = e
	}

	return sel, nil
}

func (p *Parser) parseSelectItem() (ast.SelectItem, error) {
	if p.cur.Type == lexer.STAR {
		p.next()
		return ast.SelectItem{Expr: ast.Star{}}, nil
	}
	e, err := p.parseExpr(precLowest)
	if err != nil {
		return ast.SelectItem{}, err
	}
	item := ast.SelectItem{Expr: e}
	if p.cur.Type == lexer.AS {
		p.next()
		alias, err := p.expectIdent()
		if err != nil {
			return ast.SelectItem{}, err
		}
		item.Alias = alias
	} else if p.cur.Type == lexer.IDENT {
		item.Alias = p.cur.Literal
		p.next()
	}
	return item, nil
}

// --- UPDATE ---

func (p *Parser) parseUpdate() (ast.Statement, error) {
	p.next() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.SET, "SET"); err != nil {
		return nil, err
	}

	var assigns []ast.Assignment
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.EQ, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, ast.Assignment{Column: col, Value: val})
		if p.cur.Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}

	upd := ast.Update{Table: table, Assignments: assigns}
	if p.cur.Type == lexer.WHERE {
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		upd.Where = e
	}
	return upd, nil
}

// --- DELETE ---

func (p *Parser) parseDelete() (ast.Statement, error) {
	p.next() // DELETE
	if _, err := p.expect(lexer.FROM, "FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	del := ast.Delete{Table: table}
	if p.cur.Type == lexer.WHERE {
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		del.Where = e
	}
	return del, nil
}

// --- Expressions (precedence climbing) ---

type precedence int

const (
	precLowest precedence = iota
	precOr
	precAnd
	precNot
	precCompare
	precAdd
	precMul
	precExp
	precUnary
	precPostfix
)

func (p *Parser) tokenPrecedence(t lexer.Type) precedence {
	switch t {
	case lexer.OR:
		return precOr
	case lexer.AND:
		return precAnd
	case lexer.EQ, lexer.NEQ, lexer.LT, lexer.LTE, lexer.GT, lexer.GTE, lexer.LIKE, lexer.IS, lexer.NOT:
		return precCompare
	case lexer.PLUS, lexer.MINUS:
		return precAdd
	case lexer.STAR, lexer.SLASH, lexer.PERCENT:
		return precMul
	case lexer.CARET:
		return precExp
	case lexer.BANG:
		return precPostfix
	default:
		return precLowest
	}
}

func (p *Parser) parseExpr(min precedence) (ast.Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		if p.cur.Type == lexer.BANG && precPostfix > min {
			p.next()
			left = ast.Unary{Op: ast.UnaryFactorial, Expr: left}
			continue
		}
		prec := p.tokenPrecedence(p.cur.Type)
		if prec <= min {
			break
		}
		left, err = p.parseInfix(left, prec)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	switch p.cur.Type {
	case lexer.MINUS:
		p.next()
		e, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: ast.UnaryNeg, Expr: e}, nil
	case lexer.NOT:
		p.next()
		e, err := p.parseExpr(precNot)
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: ast.UnaryNot, Expr: e}, nil
	case lexer.LPAREN:
		p.next()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.INT:
		lit := p.cur.Literal
		p.next()
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, errs.Parse("invalid integer literal %q", lit)
		}
		return ast.Literal{Value: types.NewInteger(n)}, nil
	case lexer.FLOAT:
		lit := p.cur.Literal
		p.next()
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, errs.Parse("invalid float literal %q", lit)
		}
		return ast.Literal{Value: types.NewFloat(f)}, nil
	case lexer.STRING:
		lit := p.cur.Literal
		p.next()
		return ast.Literal{Value: types.NewString(lit)}, nil
	case lexer.TRUE_:
		p.next()
		return ast.Literal{Value: types.NewBoolean(true)}, nil
	case lexer.FALSE_:
		p.next()
		return ast.Literal{Value: types.NewBoolean(false)}, nil
	case lexer.NULL_:
		p.next()
		return ast.Literal{Value: types.Null()}, nil
	case lexer.STAR:
		p.next()
		return ast.Star{}, nil
	case lexer.IDENT:
		name := p.cur.Literal
		p.next()
		if p.cur.Type == lexer.DOT {
			p.next()
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return ast.Column{Table: name, Name: col}, nil
		}
		return ast.Column{Name: name}, nil
	default:
		return nil, errs.Parse("unexpected token %q in expression (line %d)", p.cur.Literal, p.cur.Line)
	}
}

func (p *Parser) parseInfix(left ast.Expr, prec precedence) (ast.Expr, error) {
	switch p.cur.Type {
	case lexer.IS:
		p.next()
		not := false
		if p.cur.Type == lexer.NOT {
			not = true
			p.next()
		}
		if _, err := p.expect(lexer.NULL_, "NULL"); err != nil {
			return nil, err
		}
		return ast.IsNull{Expr: left, Not: not}, nil
	case lexer.LIKE:
		p.next()
		rhs, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		return ast.Like{Expr: left, Pattern: rhs}, nil
	case lexer.NOT:
		p.next()
		if _, err := p.expect(lexer.LIKE, "LIKE"); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		return ast.Like{Expr: left, Pattern: rhs, Not: true}, nil
	}

	op, ok := binOpFor(p.cur.Type)
	if !ok {
		return nil, errs.Parse("unexpected operator %q (line %d)", p.cur.Literal, p.cur.Line)
	}
	p.next()
	right, err := p.parseExpr(prec)
	if err != nil {
		return nil, err
	}
	return ast.Binary{Op: op, Left: left, Right: right}, nil
}

func binOpFor(t lexer.Type) (ast.BinaryOp, bool) {
	switch t {
	case lexer.AND:
		return ast.BinAnd, true
	case lexer.OR:
		return ast.BinOr, true
	case lexer.EQ:
		return ast.BinEq, true
	case lexer.NEQ:
		return ast.BinNeq, true
	case lexer.LT:
		return ast.BinLt, true
	case lexer.LTE:
		return ast.BinLte, true
	case lexer.GT:
		return ast.BinGt, true
	case lexer.GTE:
		return ast.BinGte, true
	case lexer.PLUS:
		return ast.BinAdd, true
	case lexer.MINUS:
		return ast.BinSub, true
	case lexer.STAR:
		return ast.BinMul, true
	case lexer.SLASH:
		return ast.BinDiv, true
	case lexer.PERCENT:
		return ast.BinMod, true
	case lexer.CARET:
		return ast.BinExp, true
	default:
		return 0, false
	}
}
