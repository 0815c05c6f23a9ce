package pager

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cuemby/kvdb/pkg/kv"
)

func TestFileStoreSetGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer fs.Close()

	if err := fs.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := fs.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("1")) {
		t.Fatalf("expected %q, got %q", "1", got)
	}

	if err := fs.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = fs.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected a deleted key to read nil, got %q", got)
	}
}

func TestFileStoreScanIsOrdered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer fs.Close()

	for _, k := range []string{"c", "a", "b"} {
		if err := fs.Set([]byte(k), []byte(k)); err != nil {
			t.Fatalf("set %q: %v", k, err)
		}
	}

	it, err := fs.Scan(kv.RangeAll())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()

	var keys []string
	for {
		pair, ok, err := it.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		keys = append(keys, string(pair.Key))
	}
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestFileStoreSurvivesReopenAfterFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	if err := fs.Set([]byte("durable"), []byte("value")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := fs.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fs2, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	defer fs2.Close()
	got, err := fs2.Get([]byte("durable"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte("value")) {
		t.Fatalf("expected the flushed value to survive reopen, got %q", got)
	}
}

func TestFileStoreLosesUnflushedWritesOnCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	if err := fs.Set([]byte("flushed"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := fs.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	// Simulate a crash: a second write never reaches Flush before Close.
	if err := fs.Set([]byte("lost"), []byte("2")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fs2, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	defer fs2.Close()

	got, err := fs2.Get([]byte("flushed"))
	if err != nil {
		t.Fatalf("get flushed key: %v", err)
	}
	if !bytes.Equal(got, []byte("1")) {
		t.Fatalf("expected the flushed key to survive, got %q", got)
	}
	got, err = fs2.Get([]byte("lost"))
	if err != nil {
		t.Fatalf("get lost key: %v", err)
	}
	if got != nil {
		t.Fatalf("expected the unflushed key to not survive a crash, got %q", got)
	}
}

func TestFileStoreRejectsOversizedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer fs.Close()

	huge := make([]byte, PageSize)
	if err := fs.Set([]byte("k"), huge); err == nil {
		t.Fatalf("expected an oversized record to be rejected")
	}
}

func TestFileStoreSpansMultiplePages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	fs, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer fs.Close()

	value := bytes.Repeat([]byte("x"), 200)
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		if err := fs.Set(k, value); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	if err := fs.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fs.tailPgno <= firstDataPgno {
		t.Fatalf("expected the log to span more than one data page, tailPgno=%d", fs.tailPgno)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	fs2, err := OpenFileStore(path, Config{NoSync: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fs2.Close()
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		got, err := fs2.Get(k)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if !bytes.Equal(got, value) {
			t.Fatalf("record %d did not survive a multi-page replay", i)
		}
	}
}
