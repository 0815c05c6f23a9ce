package parser

import (
	"testing"

	"github.com/cuemby/kvdb/pkg/sql/ast"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE countries (id STRING PRIMARY KEY, name STRING NOT NULL)`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ct, ok := stmt.(ast.CreateTable)
	if !ok {
		t.Fatalf("expected CreateTable, got %T", stmt)
	}
	if ct.Name != "countries" || len(ct.Columns) != 2 {
		t.Fatalf("unexpected result: %+v", ct)
	}
	if !ct.Columns[0].PrimaryKey {
		t.Fatalf("expected id to be primary key")
	}
	if ct.Columns[1].Nullable {
		t.Fatalf("expected name to be NOT NULL")
	}
}

func TestParseInsertMultipleRows(t *testing.T) {
	stmt, err := Parse(`INSERT INTO countries VALUES ('fr','France'),('ru','Russia')`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ins, ok := stmt.(ast.Insert)
	if !ok {
		t.Fatalf("expected Insert, got %T", stmt)
	}
	if len(ins.Values) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ins.Values))
	}
}

func TestParseSelectWhereOrderLimit(t *testing.T) {
	stmt, err := Parse(`SELECT name FROM genres WHERE id > 1 ORDER BY name ASC LIMIT 1`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, ok := stmt.(ast.Select)
	if !ok {
		t.Fatalf("expected Select, got %T", stmt)
	}
	if sel.From != "genres" || sel.Where == nil || len(sel.OrderBy) != 1 || sel.Limit == nil {
		t.Fatalf("unexpected select: %+v", sel)
	}
}

func TestParseSelectLiteralLike(t *testing.T) {
	stmt, err := Parse(`SELECT 'abc' LIKE 'a_c'`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel, ok := stmt.(ast.Select)
	if !ok || len(sel.Items) != 1 {
		t.Fatalf("unexpected result: %+v", stmt)
	}
	if _, ok := sel.Items[0].Expr.(ast.Like); !ok {
		t.Fatalf("expected Like expression, got %T", sel.Items[0].Expr)
	}
}

func TestParseUpdate(t *testing.T) {
	stmt, err := Parse(`UPDATE t SET a = 1, b = 2 WHERE id = 3`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	upd, ok := stmt.(ast.Update)
	if !ok || len(upd.Assignments) != 2 {
		t.Fatalf("unexpected result: %+v", stmt)
	}
}

func TestParseDelete(t *testing.T) {
	stmt, err := Parse(`DELETE FROM t WHERE id = 1`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := stmt.(ast.Delete); !ok {
		t.Fatalf("expected Delete, got %T", stmt)
	}
}

func TestParseDropTable(t *testing.T) {
	stmt, err := Parse(`DROP TABLE t`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := stmt.(ast.DropTable); !ok {
		t.Fatalf("expected DropTable, got %T", stmt)
	}
}

func TestParseErrorOnMalformedStatement(t *testing.T) {
	_, err := Parse(`CREATE TABLE`)
	if err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestOperatorPrecedenceIsLeftAssociative(t *testing.T) {
	stmt, err := Parse(`SELECT 1 - 2 - 3`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel := stmt.(ast.Select)
	bin, ok := sel.Items[0].Expr.(ast.Binary)
	if !ok || bin.Op != ast.BinSub {
		t.Fatalf("expected outer Sub, got %+v", sel.Items[0].Expr)
	}
	// Left-associative: (1 - 2) - 3, so the left child is itself a Sub.
	if _, ok := bin.Left.(ast.Binary); !ok {
		t.Fatalf("expected left-associative parse, got %+v", bin)
	}
	if _, ok := bin.Right.(ast.Literal); !ok {
		t.Fatalf("expected right side to be the literal 3, got %+v", bin.Right)
	}
}
