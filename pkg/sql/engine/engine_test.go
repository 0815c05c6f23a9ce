package engine

import (
	"testing"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/kv"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/sql/exec"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store := kv.NewMemoryStore()
	return NewSession(mvcc.New(store, "test"))
}

func drainQuery(t *testing.T, rs *exec.ResultSet) [][]string {
	t.Helper()
	var out [][]string
	for {
		row, err := rs.Rows.Next()
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if row == nil {
			return out
		}
		vals := make([]string, len(row))
		for i, v := range row {
			vals[i] = v.String()
		}
		out = append(out, vals)
	}
}

func TestSessionCreateInsertSelect(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE genres (id INTEGER PRIMARY KEY, name STRING NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO genres VALUES (1, 'noir'), (2, 'western')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rs, err := s.Execute(`SELECT name FROM genres WHERE id = 1`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	rows := drainQuery(t, rs)
	if len(rows) != 1 || rows[0][0] != "noir" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSessionUniqueConstraintRejectsDuplicate(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE t (id INTEGER PRIMARY KEY, email STRING NOT NULL UNIQUE INDEX)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO t VALUES (1, 'a@example.com')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := s.Execute(`INSERT INTO t VALUES (2, 'a@example.com')`)
	if err == nil {
		t.Fatal("expected a unique constraint violation")
	}
	if errs.KindOf(err) != errs.KindValue {
		t.Fatalf("expected a Value error, got %v", err)
	}
}

func TestSessionUpdateKeepingUniqueValueDoesNotConflict(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE t (id INTEGER PRIMARY KEY, email STRING NOT NULL UNIQUE INDEX)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO t VALUES (1, 'a@example.com')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Execute(`UPDATE t SET email = 'a@example.com' WHERE id = 1`); err != nil {
		t.Fatalf("update to the same unique value should not conflict: %v", err)
	}
}

func TestSessionForeignKeyRejectsMissingReference(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE parent (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := s.Execute(`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent)`); err != nil {
		t.Fatalf("create child: %v", err)
	}
	_, err := s.Execute(`INSERT INTO child VALUES (1, 99)`)
	if err == nil {
		t.Fatal("expected a foreign key violation")
	}
}

func TestSessionDropReferencedTableFails(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE parent (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := s.Execute(`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parent)`); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := s.Execute(`DROP TABLE parent`); err == nil {
		t.Fatal("expected drop of a referenced table to fail")
	}
}

func TestSessionDeleteRemovesIndexEntry(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE t (id INTEGER PRIMARY KEY, email STRING NOT NULL UNIQUE INDEX)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO t VALUES (1, 'a@example.com')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Execute(`DELETE FROM t WHERE id = 1`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO t VALUES (2, 'a@example.com')`); err != nil {
		t.Fatalf("reinsert of the freed unique value should succeed: %v", err)
	}
}

func TestSessionRollsBackOnPlanError(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Execute(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Execute(`INSERT INTO nonexistent VALUES (1)`); err == nil {
		t.Fatal("expected an error for a nonexistent table")
	}
	status, err := s.mv.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.ActiveTxnIDs) != 0 {
		t.Fatalf("expected no dangling active transactions, got %+v", status.ActiveTxnIDs)
	}
}
