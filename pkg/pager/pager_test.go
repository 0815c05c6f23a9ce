package pager

import (
	"bytes"
	"path/filepath"
	"testing"
)

func dbPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestOpenCreatesEmptyDatabase(t *testing.T) {
	p, err := Open(dbPath(t), Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if got := p.PageCount(); got != 0 {
		t.Fatalf("expected an empty database, got %d pages", got)
	}
	if got := p.LockState(); got != Unlock {
		t.Fatalf("expected Unlock before any access, got %v", got)
	}
}

func TestGetPageBeyondSizeIsZeroed(t *testing.T) {
	p, err := Open(dbPath(t), Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	page, err := p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	defer page.Release()
	if !bytes.Equal(page.Data(), make([]byte, PageSize)) {
		t.Fatalf("expected a fresh page to be zeroed")
	}
	if got := p.LockState(); got != ReadLock {
		t.Fatalf("expected READLOCK after first access, got %v", got)
	}
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	path := dbPath(t)

	p, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	page, err := p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	copy(page.Data(), []byte("hello, pager"))
	page.Release()
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	page2, err := p2.GetPage(1)
	if err != nil {
		t.Fatalf("get page after reopen: %v", err)
	}
	defer page2.Release()
	if !bytes.HasPrefix(page2.Data(), []byte("hello, pager")) {
		t.Fatalf("expected committed bytes to survive reopen, got %q", page2.Data()[:12])
	}
}

func TestRollbackDiscardsChanges(t *testing.T) {
	path := dbPath(t)

	p, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	page, err := p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	copy(page.Data(), []byte("committed"))
	page.Release()
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	page, err = p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	copy(page.Data(), []byte("uncommitted"))
	page.Release()
	if err := p.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	page, err = p.GetPage(1)
	if err != nil {
		t.Fatalf("get page after rollback: %v", err)
	}
	defer page.Release()
	if !bytes.HasPrefix(page.Data(), []byte("committed")) {
		t.Fatalf("expected rollback to restore the pre-transaction bytes, got %q", page.Data()[:11])
	}
}

func TestCrashBetweenMarkDirtyAndCommitIsReplayedOnOpen(t *testing.T) {
	path := dbPath(t)

	p, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	page, err := p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	copy(page.Data(), []byte("base"))
	page.Release()
	if err := p.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Simulate a crash mid-transaction: mark a page dirty (opening the
	// journal) but never Commit or Rollback before Close.
	page, err = p.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	copy(page.Data(), []byte("torn-write"))
	page.Release()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer p2.Close()
	page2, err := p2.GetPage(1)
	if err != nil {
		t.Fatalf("get page after replay: %v", err)
	}
	defer page2.Release()
	if !bytes.HasPrefix(page2.Data(), []byte("base")) {
		t.Fatalf("expected journal replay to restore the last committed bytes, got %q", page2.Data()[:4])
	}
}

func TestSecondOpenOnSameFileIsBusy(t *testing.T) {
	path := dbPath(t)

	p1, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p1.Close()

	page, err := p1.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if err := page.MarkDirty(); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	page.Release()

	p2, err := Open(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open second pager: %v", err)
	}
	defer p2.Close()

	if _, err := p2.GetPage(1); err == nil {
		t.Fatalf("expected BUSY acquiring the write-locked database from a second pager")
	}
}

func TestCacheEvictsToMaxPages(t *testing.T) {
	p, err := Open(dbPath(t), Config{NoSync: true, MaxPages: MinMaxPages})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	for pgno := uint32(1); pgno <= MinMaxPages+5; pgno++ {
		page, err := p.GetPage(pgno)
		if err != nil {
			t.Fatalf("get page %d: %v", pgno, err)
		}
		page.Release()
	}
	if got := p.CacheSize(); got > p.MaxPages() {
		t.Fatalf("expected cache size to stay within MaxPages, got %d > %d", got, p.MaxPages())
	}
}
