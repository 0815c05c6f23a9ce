package pager

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/metrics"
)

// journalMagic is the fixed 8-byte header constant opening every journal
// file.
var journalMagic = [8]byte{'k', 'v', 'd', 'b', 'j', 'r', 'n', 'l'}

// markDirty is the journal-write routine: on the
// transaction's first write it opens the journal (page_begin); it then
// journals this page's pre-image if not already journaled this
// transaction, and marks the page dirty.
func (p *Pager) markDirty(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkErrMask(); err != nil {
		return err
	}
	if err := p.ensureWriteLockLocked(); err != nil {
		return err
	}
	if !p.journalOpen {
		if err := p.pageBeginLocked(); err != nil {
			return err
		}
	}

	h := &p.arena[idx]
	// The bitmap outlives the slot's inJournal flag, which GetPage resets
	// when an evicted page is read back in.
	bit := h.pgno - 1
	if int(bit/8) < len(p.aInJournal) && p.aInJournal[bit/8]&(1<<(bit%8)) != 0 {
		h.inJournal = true
	}
	if h.pgno <= p.origDBSize && !h.inJournal {
		if err := p.journalPageLocked(h); err != nil {
			return err
		}
		h.inJournal = true
		p.needSync = true
	}
	h.dirty = true
	return nil
}

// pageBeginLocked opens the journal file and writes its header: the magic
// constant followed by the database's page count before this transaction's
// first write.
func (p *Pager) pageBeginLocked() error {
	f, err := os.OpenFile(p.journalPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		p.setErr(errIOErr)
		return errs.Internal("pager: open journal: %v", err)
	}

	var header [12]byte
	copy(header[0:8], journalMagic[:])
	binary.BigEndian.PutUint32(header[8:12], p.dbPageCount)
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		p.setErr(errIOErr)
		return errs.Internal("pager: write journal header: %v", err)
	}

	p.journal = f
	p.journalOpen = true
	p.origDBSize = p.dbPageCount
	p.aInJournal = make([]byte, (p.origDBSize/8)+1)
	p.needSync = false
	return nil
}

// journalPageLocked appends one journal record: the page number (4-byte
// big-endian) followed by that page's pre-modification bytes.
func (p *Pager) journalPageLocked(h *pageHeader) error {
	var rec [4 + PageSize]byte
	binary.BigEndian.PutUint32(rec[0:4], h.pgno)
	copy(rec[4:], h.data[:])
	if _, err := p.journal.Write(rec[:]); err != nil {
		p.setErr(errIOErr)
		return errs.Internal("pager: write journal record for page %d: %v", h.pgno, err)
	}
	bit := h.pgno - 1
	if int(bit/8) >= len(p.aInJournal) {
		grown := make([]byte, bit/8+1)
		copy(grown, p.aInJournal)
		p.aInJournal = grown
	}
	p.aInJournal[bit/8] |= 1 << (bit % 8)
	metrics.JournalWritesTotal.Inc()
	return nil
}

// Commit applies every dirty page to the database file and deletes the
// journal. If nothing is dirty it just releases the
// write lock.
func (p *Pager) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkErrMask(); err != nil {
		return err
	}
	if p.lockState != WriteLock {
		return nil
	}

	anyDirty := false
	for i := range p.arena {
		if p.arena[i].valid && p.arena[i].dirty {
			anyDirty = true
			break
		}
	}
	if !anyDirty {
		p.closeJournalLocked()
		p.downgradeToReadLockLocked()
		return nil
	}

	if p.needSync {
		if !p.noSync {
			if err := p.journal.Sync(); err != nil {
				p.setErr(errIOErr)
				_ = p.rollbackLocked()
				return errs.Internal("pager: fsync journal before commit: %v", err)
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
			_ = p.rollbackLocked()
			return err
		}
	}
	if !p.noSync {
		if err := p.db.Sync(); err != nil {
			p.setErr(errIOErr)
			_ = p.rollbackLocked()
			return errs.Internal("pager: fsync database on commit: %v", err)
		}
	}

	for i := range p.arena {
		p.arena[i].dirty = false
		p.arena[i].inJournal = false
	}
	p.closeJournalLocked()
	p.downgradeToReadLockLocked()
	return nil
}

// Rollback undoes every change made since the last commit, using the
// journal to restore each touched page's pre-image and truncating the
// database file back to its pre-transaction size.
func (p *Pager) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollbackLocked()
}

func (p *Pager) rollbackLocked() error {
	if p.lockState != WriteLock || !p.journalOpen {
		return nil
	}

	if _, err := p.journal.Seek(12, io.SeekStart); err != nil {
		p.setErr(errCorrupt)
		return errs.Internal("pager: seek journal: %v", err)
	}
	var rec [4 + PageSize]byte
	for {
		_, err := io.ReadFull(p.journal, rec[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			p.setErr(errCorrupt)
			return errs.Internal("pager: read journal record: %v", err)
		}
		pgno := binary.BigEndian.Uint32(rec[0:4])
		if idx, ok := p.byPgno[pgno]; ok {
			copy(p.arena[idx].data[:], rec[4:])
		}
	}

	if err := p.db.Truncate(int64(p.origDBSize) * PageSize); err != nil {
		p.setErr(errIOErr)
		return errs.Internal("pager: truncate database: %v", err)
	}
	if !p.noSync {
		if err := p.db.Sync(); err != nil {
			p.setErr(errIOErr)
			return errs.Internal("pager: fsync database after rollback: %v", err)
		}
	}
	p.dbPageCount = p.origDBSize

	for i := range p.arena {
		p.arena[i].dirty = false
		p.arena[i].inJournal = false
	}
	p.closeJournalLocked()
	p.downgradeToReadLockLocked()
	p.errMask &^= errFull // only rollback clears FULL
	return nil
}

func (p *Pager) closeJournalLocked() {
	if p.journal != nil {
		p.journal.Close()
		p.journal = nil
	}
	os.Remove(p.journalPath)
	p.journalOpen = false
	p.needSync = false
	p.aInJournal = nil
}

// replayJournalOnOpen replays a journal left behind by a process that
// crashed between the journal fsync and the database write. It restores
// pre-image
// bytes directly into the database file (there is no live page cache yet)
// and then deletes the journal.
func (p *Pager) replayJournalOnOpen() error {
	jf, err := os.Open(p.journalPath)
	if err != nil {
		return errs.Internal("pager: open journal for replay: %v", err)
	}
	defer jf.Close()

	var header [12]byte
	if _, err := io.ReadFull(jf, header[:]); err != nil {
		// A short/corrupt journal from a crash mid-write to the header
		// itself carries no recoverable pre-images; drop it.
		os.Remove(p.journalPath)
		return nil
	}
	if string(header[0:8]) != string(journalMagic[:]) {
		os.Remove(p.journalPath)
		return nil
	}
	origSize := binary.BigEndian.Uint32(header[8:12])

	var rec [4 + PageSize]byte
	for {
		_, err := io.ReadFull(jf, rec[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			break // partial trailing record from a mid-write crash; stop replay here
		}
		pgno := binary.BigEndian.Uint32(rec[0:4])
		off := int64(pgno-1) * PageSize
		if _, err := p.db.WriteAt(rec[4:], off); err != nil {
			return errs.Internal("pager: replay page %d: %v", pgno, err)
		}
		metrics.JournalReplaysTotal.Inc()
	}

	if err := p.db.Truncate(int64(origSize) * PageSize); err != nil {
		return errs.Internal("pager: truncate database during replay: %v", err)
	}
	if err := p.db.Sync(); err != nil {
		return errs.Internal("pager: fsync database after replay: %v", err)
	}
	p.dbPageCount = origSize

	jf.Close()
	return os.Remove(p.journalPath)
}
