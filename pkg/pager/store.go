package pager

import (
	"encoding/binary"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/kv"
)

// storeSuperblockPgno is the fixed page holding the append log's allocation
// state; firstDataPgno is the first page available to the log itself.
const (
	storeSuperblockPgno = 1
	firstDataPgno       = 2
)

// storeMagic identifies a page-file already initialized as a FileStore log,
// distinguishing it from a freshly created, all-zero database file.
var storeMagic = [8]byte{'k', 'v', 'd', 'b', 'f', 's', 't', 'r'}

// pageEndMarker is a 4-byte keyLen sentinel meaning "no more records fit in
// this page, the log continues on the next one".
const pageEndMarker = 0xFFFFFFFF

// tombstoneMarker is the valLen a deleted key's record carries in place of
// a real length.
const tombstoneMarker = 0xFFFFFFFF

// recordHeaderSize is the fixed keyLen+valLen prefix of every log record.
const recordHeaderSize = 8

// FileStore is a kv.Store backed by a Pager: every Set/Delete encodes a
// record and appends it to a durable write-ahead log of fixed-size pages,
// while an in-memory ordered index (the same B-tree structure
// kv.MemoryStore uses) serves Get and Scan directly, without touching the
// page cache. Flush commits the pager's dirty pages and journal, making the
// appended records durable; a crash before Flush loses the pending writes
// exactly like an uncommitted pager transaction, which Open's journal
// replay then undoes.
//
// A FileStore is not safe for concurrent use beyond what kv.Store already
// documents: callers (pkg/mvcc) serialize writers themselves.
type FileStore struct {
	pager *Pager
	live  *kv.MemoryStore

	nextFreePgno uint32
	tailPgno     uint32 // 0 until the first record is appended
	tailOffset   uint32
}

// OpenFileStore opens (or creates) a file-backed Store at dbPath, replaying
// its log into an in-memory index before returning.
func OpenFileStore(dbPath string, cfg Config) (*FileStore, error) {
	p, err := Open(dbPath, cfg)
	if err != nil {
		return nil, err
	}
	fs := &FileStore{pager: p, live: kv.NewMemoryStore()}
	if err := fs.loadSuperblock(); err != nil {
		p.Close()
		return nil, err
	}
	if err := fs.replay(); err != nil {
		p.Close()
		return nil, err
	}
	return fs, nil
}

// loadSuperblock reads the log's allocation state from page 1, initializing
// and durably committing it first if this is a freshly created file.
func (fs *FileStore) loadSuperblock() error {
	page, err := fs.pager.GetPage(storeSuperblockPgno)
	if err != nil {
		return err
	}
	buf := page.Data()
	if string(buf[0:8]) != string(storeMagic[:]) {
		if err := page.MarkDirty(); err != nil {
			page.Release()
			return err
		}
		copy(buf[0:8], storeMagic[:])
		binary.BigEndian.PutUint32(buf[8:12], firstDataPgno)
		binary.BigEndian.PutUint32(buf[12:16], 0)
		binary.BigEndian.PutUint32(buf[16:20], 0)
		fs.nextFreePgno = firstDataPgno
		fs.tailPgno = 0
		fs.tailOffset = 0
		page.Release()
		return fs.pager.Commit()
	}
	fs.nextFreePgno = binary.BigEndian.Uint32(buf[8:12])
	fs.tailPgno = binary.BigEndian.Uint32(buf[12:16])
	fs.tailOffset = binary.BigEndian.Uint32(buf[16:20])
	page.Release()
	return nil
}

// saveSuperblock persists the log's current allocation state into page 1.
func (fs *FileStore) saveSuperblock() error {
	page, err := fs.pager.GetPage(storeSuperblockPgno)
	if err != nil {
		return err
	}
	defer page.Release()
	if err := page.MarkDirty(); err != nil {
		return err
	}
	buf := page.Data()
	copy(buf[0:8], storeMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], fs.nextFreePgno)
	binary.BigEndian.PutUint32(buf[12:16], fs.tailPgno)
	binary.BigEndian.PutUint32(buf[16:20], fs.tailOffset)
	return nil
}

// replay reconstructs the in-memory index by reading every record the log
// holds, in the order they were written: pages 2..tailPgno in ascending
// order, each read in full except the tail page, which is read only up to
// tailOffset (bytes beyond it were never written).
func (fs *FileStore) replay() error {
	for pgno := uint32(firstDataPgno); fs.tailPgno != 0 && pgno <= fs.tailPgno; pgno++ {
		limit := uint32(PageSize)
		if pgno == fs.tailPgno {
			limit = fs.tailOffset
		}
		page, err := fs.pager.GetPage(pgno)
		if err != nil {
			return err
		}
		data := page.Data()
		var offset uint32
		for offset+recordHeaderSize <= limit {
			keyLen := binary.BigEndian.Uint32(data[offset : offset+4])
			if keyLen == pageEndMarker {
				break
			}
			valLen := binary.BigEndian.Uint32(data[offset+4 : offset+8])
			keyStart := offset + recordHeaderSize
			keyEnd := keyStart + keyLen
			if valLen == tombstoneMarker {
				if keyEnd > limit {
					break
				}
				key := append([]byte(nil), data[keyStart:keyEnd]...)
				_ = fs.live.Delete(key)
				offset = keyEnd
				continue
			}
			valStart := keyEnd
			valEnd := valStart + valLen
			if valEnd > limit {
				break
			}
			key := append([]byte(nil), data[keyStart:keyEnd]...)
			value := append([]byte(nil), data[valStart:valEnd]...)
			_ = fs.live.Set(key, value)
			offset = valEnd
		}
		page.Release()
	}
	return nil
}

// encodeRecord serializes key/value (or a tombstone, when tombstone is
// true) into one log record: a 4-byte keyLen, a 4-byte valLen (or
// tombstoneMarker), the key bytes, and the value bytes.
func encodeRecord(key, value []byte, tombstone bool) ([]byte, error) {
	total := recordHeaderSize + len(key)
	valLen := uint32(len(value))
	if tombstone {
		valLen = tombstoneMarker
	} else {
		total += len(value)
	}
	if total > PageSize {
		return nil, errs.Value("pager: record of %d bytes exceeds the file store's %d-byte page size", total, PageSize)
	}
	rec := make([]byte, total)
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(rec[4:8], valLen)
	copy(rec[recordHeaderSize:recordHeaderSize+len(key)], key)
	if !tombstone {
		copy(rec[recordHeaderSize+len(key):], value)
	}
	return rec, nil
}

// appendRecord writes rec to the log's tail page, allocating a new tail
// page (and marking the old one's remainder with pageEndMarker, if there is
// room for the sentinel) whenever rec no longer fits.
func (fs *FileStore) appendRecord(rec []byte) error {
	if fs.tailPgno == 0 {
		fs.tailPgno = fs.nextFreePgno
		fs.nextFreePgno++
		fs.tailOffset = 0
	}
	for {
		page, err := fs.pager.GetPage(fs.tailPgno)
		if err != nil {
			return err
		}
		remaining := PageSize - int(fs.tailOffset)
		if len(rec) <= remaining {
			if err := page.MarkDirty(); err != nil {
				page.Release()
				return err
			}
			copy(page.Data()[fs.tailOffset:], rec)
			fs.tailOffset += uint32(len(rec))
			page.Release()
			break
		}
		if remaining >= 4 {
			if err := page.MarkDirty(); err != nil {
				page.Release()
				return err
			}
			binary.BigEndian.PutUint32(page.Data()[fs.tailOffset:], pageEndMarker)
		}
		page.Release()
		fs.tailPgno = fs.nextFreePgno
		fs.nextFreePgno++
		fs.tailOffset = 0
	}
	return fs.saveSuperblock()
}

// Get returns key's current value from the in-memory index.
func (fs *FileStore) Get(key []byte) ([]byte, error) {
	return fs.live.Get(key)
}

// Set appends a record to the log and updates the in-memory index.
func (fs *FileStore) Set(key, value []byte) error {
	rec, err := encodeRecord(key, value, false)
	if err != nil {
		return err
	}
	if err := fs.appendRecord(rec); err != nil {
		return err
	}
	return fs.live.Set(key, value)
}

// Delete appends a tombstone record to the log and removes key from the
// in-memory index.
func (fs *FileStore) Delete(key []byte) error {
	rec, err := encodeRecord(key, nil, true)
	if err != nil {
		return err
	}
	if err := fs.appendRecord(rec); err != nil {
		return err
	}
	return fs.live.Delete(key)
}

// Scan delegates to the in-memory index, which is always caught up with
// every Set/Delete this FileStore has applied (Flush'd or not).
func (fs *FileStore) Scan(r kv.Range) (kv.Iterator, error) {
	return fs.live.Scan(r)
}

// Flush commits the pager's dirty pages and journal, making every Set/
// Delete appended since the last Flush durable.
func (fs *FileStore) Flush() error {
	return fs.pager.Commit()
}

// Close releases the underlying pager's file handles and advisory lock.
// Any record appended but not yet Flush'd is discarded, not corrupted: the
// journal is left on disk, and the next open's journal replay restores the
// pages it touched.
func (fs *FileStore) Close() error {
	return fs.pager.Close()
}

// CacheSize reports the number of pages currently resident in the
// underlying pager, for metrics.Collector.
func (fs *FileStore) CacheSize() int { return fs.pager.CacheSize() }

// MaxPages reports the underlying pager's page-cache capacity, for
// metrics.Collector.
func (fs *FileStore) MaxPages() int { return fs.pager.MaxPages() }
