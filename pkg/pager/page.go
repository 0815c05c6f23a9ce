package pager

import (
	"io"

	"github.com/cuemby/kvdb/pkg/errs"
)

// Page is a caller-held handle into the pager's arena: an (arena, index)
// pair per the design note, never a raw pointer into pageHeader.
type Page struct {
	pager *Pager
	idx   int
}

// Pgno is the page's 1-based page number.
func (pg *Page) Pgno() uint32 {
	pg.pager.mu.Lock()
	defer pg.pager.mu.Unlock()
	return pg.pager.arena[pg.idx].pgno
}

// Data returns the page's mutable 1024-byte buffer. Call MarkDirty before
// writing to it so the pager can journal the original bytes first.
func (pg *Page) Data() []byte {
	pg.pager.mu.Lock()
	defer pg.pager.mu.Unlock()
	return pg.pager.arena[pg.idx].data[:]
}

// MarkDirty runs the journal-write routine for this page: opens the
// journal on the transaction's first write,
// journals this page's current bytes if not already journaled this
// transaction, and marks the page dirty.
func (pg *Page) MarkDirty() error {
	return pg.pager.markDirty(pg.idx)
}

// Release drops the caller's reference to the page. Once refCount reaches
// zero the page becomes eligible for eviction (subject to the free-list
// invariant: only clean, non-dirty pages may be evicted without a sync).
func (pg *Page) Release() {
	pg.pager.mu.Lock()
	defer pg.pager.mu.Unlock()
	h := &pg.pager.arena[pg.idx]
	if h.refCount > 0 {
		h.refCount--
	}
	if h.refCount == 0 {
		pg.pager.pushFree(pg.idx)
	}
}

// GetPage returns the page numbered pgno, acquiring READLOCK if this is the
// pager's first access. If pgno exceeds the current database size the
// returned page is zeroed (it will extend the file on commit).
func (p *Pager) GetPage(pgno uint32) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkErrMask(); err != nil {
		return nil, err
	}
	if pgno == 0 {
		return nil, errs.Internal("pager: page numbers are 1-based")
	}

	if err := p.ensureReadLockLocked(); err != nil {
		return nil, err
	}

	if idx, ok := p.byPgno[pgno]; ok {
		h := &p.arena[idx]
		if h.refCount == 0 {
			p.removeFree(idx)
		}
		h.refCount++
		return &Page{pager: p, idx: idx}, nil
	}

	idx, err := p.acquireSlotLocked()
	if err != nil {
		return nil, err
	}
	h := &p.arena[idx]
	h.pgno = pgno
	h.dirty = false
	h.inJournal = false
	h.refCount = 1
	h.valid = true
	for i := range h.data {
		h.data[i] = 0
	}
	p.byPgno[pgno] = idx
	p.pushHashAllLocked(idx)

	if pgno <= p.dbPageCount {
		off := int64(pgno-1) * PageSize
		if _, err := p.db.ReadAt(h.data[:], off); err != nil && err != io.EOF {
			p.setErr(errIOErr)
			return nil, errs.Internal("pager: read page %d: %v", pgno, err)
		}
	}

	return &Page{pager: p, idx: idx}, nil
}

// acquireSlotLocked returns an arena index ready to be bound to a new page
// number: a fresh slot while the cache has room, otherwise the LRU victim
// from the free-list. When the cache is full and every page is still
// referenced (the free-list is empty), a fresh slot is allocated past
// MaxPages.
func (p *Pager) acquireSlotLocked() (int, error) {
	if len(p.arena) < p.maxPages || len(p.free) == 0 {
		h := pageHeader{hashNext: -1, freeNext: -1, freePrev: -1, allNext: -1, allPrev: -1}
		p.arena = append(p.arena, h)
		return len(p.arena) - 1, nil
	}

	victim := p.free[0]
	h := &p.arena[victim]
	if h.dirty {
		// Evicting a dirty page requires the journal to be durable and the
		// page written back first.
		if err := p.syncAllLocked(); err != nil {
			return 0, err
		}
	}
	p.removeFree(victim)
	delete(p.byPgno, h.pgno)
	p.removeAllLocked(victim)
	h.valid = false
	return victim, nil
}

// syncAllLocked writes every dirty page back to the database file after
// fsyncing the journal, used when the cache must evict a dirty victim
// before its owning transaction has committed.
func (p *Pager) syncAllLocked() error {
	if p.needSync && p.journal != nil {
		if !p.noSync {
			if err := p.journal.Sync(); err != nil {
				p.setErr(errIOErr)
				return errs.Internal("pager: fsync journal: %v", err)
			}
		}
		p.needSync = false
	}
	for i := range p.arena {
		h := &p.arena[i]
		if !h.valid || !h.dirty {
			continue
		}
		if err := p.writePageLocked(h); err != nil {
			return err
		}
	}
	if !p.noSync {
		if err := p.db.Sync(); err != nil {
			p.setErr(errIOErr)
			return errs.Internal("pager: fsync database: %v", err)
		}
	}
	return nil
}

func (p *Pager) writePageLocked(h *pageHeader) error {
	off := int64(h.pgno-1) * PageSize
	if _, err := p.db.WriteAt(h.data[:], off); err != nil {
		p.setErr(errFull)
		return errs.Internal("pager: write page %d: %v", h.pgno, err)
	}
	if uint32(h.pgno) > p.dbPageCount {
		p.dbPageCount = h.pgno
	}
	return nil
}

func (p *Pager) setErr(b errBit) { p.errMask |= b }

// --- arena list helpers (free-list, all-pages list) ---

func (p *Pager) pushFree(idx int) {
	p.free = append(p.free, idx)
}

func (p *Pager) removeFree(idx int) {
	for i, v := range p.free {
		if v == idx {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return
		}
	}
}

func (p *Pager) pushHashAllLocked(idx int) {
	h := &p.arena[idx]
	h.allNext = p.allHead
	h.allPrev = -1
	if p.allHead != -1 {
		p.arena[p.allHead].allPrev = idx
	}
	p.allHead = idx
	if p.allTail == -1 {
		p.allTail = idx
	}
}

func (p *Pager) removeAllLocked(idx int) {
	h := &p.arena[idx]
	if h.allPrev != -1 {
		p.arena[h.allPrev].allNext = h.allNext
	} else {
		p.allHead = h.allNext
	}
	if h.allNext != -1 {
		p.arena[h.allNext].allPrev = h.allPrev
	} else {
		p.allTail = h.allPrev
	}
	h.allNext, h.allPrev = -1, -1
}

// CacheSize reports the number of pages currently resident, for metrics.
func (p *Pager) CacheSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byPgno)
}

// MaxPages reports the page-cache capacity, for metrics.
func (p *Pager) MaxPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxPages
}
