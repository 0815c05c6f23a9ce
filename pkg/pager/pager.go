// Package pager implements the paged file store with journal recovery: a
// bounded in-memory page cache backing a single database file, coupled to
// a write-ahead rollback journal that gives crash-atomic commit and
// rollback of page-level changes. FileStore (store.go) adapts a Pager to
// kv.Store, for callers that want pkg/mvcc's ordered byte-keyed contract
// backed by this durable page log instead of an in-memory B-tree.
//
// The page cache is the textbook case of a cyclic data structure — each
// page sits in an all-pages list, a free-list (once its refcount drops to
// zero) and a hash bucket chain, and would naturally carry a back-pointer
// to its owning Pager in a language with manual pointers. Instead we
// arena-allocate pages in a slice and track membership in the three lists/maps as
// indices into that arena, never as pointers.
package pager

import (
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/log"
)

// PageSize is the fixed page size in bytes.
const PageSize = 1024

// DefaultMaxPages is the default page-cache capacity.
const DefaultMaxPages = 10

const MinMaxPages = 10

// errBit is one bit of the pager's sticky error mask.
type errBit uint32

const (
	errMem errBit = 1 << iota
	errFull
	errIOErr
	errCorrupt
)

// pageHeader is one arena slot: a page image plus its cache bookkeeping.
// hashNext/freeNext/freePrev/allNext/allPrev are arena indices, -1 meaning
// "no link", per the design note above.
type pageHeader struct {
	pgno      uint32
	data      [PageSize]byte
	dirty     bool
	inJournal bool
	refCount  int
	valid     bool // false = free arena slot, not bound to a page number

	hashNext int
	freeNext int
	freePrev int
	allNext  int
	allPrev  int
}

// Pager owns the page cache, the database file and the journal file for one
// database. It implements the UNLOCK/READLOCK/WRITELOCK state machine
// using an OS advisory lock (flock) so a second process opening
// the same data directory observes BUSY instead of corrupting the file.
type Pager struct {
	mu sync.Mutex

	dbPath      string
	journalPath string
	db          *os.File
	journal     *os.File
	flock       *flock.Flock
	noSync      bool

	dbPageCount uint32 // current size of the database file, in pages
	origDBSize  uint32 // size recorded in the journal header for this txn

	maxPages int
	arena    []pageHeader
	free     []int // arena indices with refCount==0, available for reuse
	byPgno   map[uint32]int
	allHead  int
	allTail  int

	journalOpen bool
	needSync    bool
	aInJournal  []byte // bit i set => page i+1 already journaled this txn

	lockState LockState
	errMask   errBit

	log log.Config
}

// LockState is the pager's file-locking state machine.
type LockState int

const (
	Unlock LockState = iota
	ReadLock
	WriteLock
)

func (s LockState) String() string {
	switch s {
	case Unlock:
		return "UNLOCK"
	case ReadLock:
		return "READLOCK"
	case WriteLock:
		return "WRITELOCK"
	default:
		return "INVALID"
	}
}

// Config configures a Pager.
type Config struct {
	MaxPages int  // cache capacity; floored at MinMaxPages
	NoSync   bool // skip fsync on commit and rollback (breaks the durability contract)
}

// Open opens or creates the database file at dbPath, with its journal at
// the conventional sibling path. If a journal
// file is already present (a prior process crashed mid-commit), it is
// replayed before Open returns.
func Open(dbPath string, cfg Config) (*Pager, error) {
	maxPages := cfg.MaxPages
	if maxPages < MinMaxPages {
		maxPages = DefaultMaxPages
	}

	db, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errs.Internal("pager: open database file: %v", err)
	}
	info, err := db.Stat()
	if err != nil {
		db.Close()
		return nil, errs.Internal("pager: stat database file: %v", err)
	}

	p := &Pager{
		dbPath:      dbPath,
		journalPath: journalPathFor(dbPath),
		db:          db,
		noSync:      cfg.NoSync,
		dbPageCount: uint32(info.Size() / PageSize),
		maxPages:    maxPages,
		byPgno:      make(map[uint32]int, maxPages),
		allHead:     -1,
		allTail:     -1,
		flock:       flock.New(lockPathFor(dbPath)),
		lockState:   Unlock,
	}

	if _, err := os.Stat(p.journalPath); err == nil {
		// A journal whose database is locked by another pager belongs to a
		// live writer, not a crashed one; replay only when no one holds it.
		if locked, lerr := p.flock.TryLock(); lerr == nil && locked {
			err := p.replayJournalOnOpen()
			_ = p.flock.Unlock()
			if err != nil {
				db.Close()
				return nil, err
			}
		}
	}

	return p, nil
}

func journalPathFor(dbPath string) string {
	return dbPath + ".journal"
}

func lockPathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Close releases all locks and closes the underlying files. A Pager with
// dirty pages must be committed or rolled back before Close.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lockState != Unlock {
		_ = p.flock.Unlock()
		p.lockState = Unlock
	}
	if p.journal != nil {
		p.journal.Close()
		p.journal = nil
	}
	return p.db.Close()
}

// checkErrMask returns the sticky error, if any, for the given operation
// class before the operation proceeds.
func (p *Pager) checkErrMask() error {
	switch {
	case p.errMask&errCorrupt != 0:
		return errs.Internal("pager: database is corrupt")
	case p.errMask&errFull != 0:
		return errs.Internal("pager: database or disk is full")
	case p.errMask&errIOErr != 0:
		return errs.Internal("pager: I/O error")
	case p.errMask&errMem != 0:
		return errs.Internal("pager: out of memory")
	default:
		return nil
	}
}

// PageCount returns the current database size in pages.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dbPageCount
}

// LockState reports the pager's current lock state.
func (p *Pager) LockState() LockState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lockState
}
