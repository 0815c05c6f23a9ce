package pager

import "github.com/cuemby/kvdb/pkg/errs"

// ensureReadLockLocked transitions UNLOCK -> READLOCK on first access,
// taking an OS advisory shared lock on the sibling .lock file so a second
// process opening the same data directory is held off.
func (p *Pager) ensureReadLockLocked() error {
	if p.lockState != Unlock {
		return nil
	}
	ok, err := p.flock.TryRLock()
	if err != nil {
		return errs.Internal("pager: BUSY: acquiring read lock: %v", err)
	}
	if !ok {
		return errs.Internal("pager: BUSY: database is locked")
	}
	p.lockState = ReadLock
	return nil
}

// ensureWriteLockLocked transitions READLOCK -> WRITELOCK on a page's first
// write in a transaction, upgrading the OS advisory lock to exclusive.
func (p *Pager) ensureWriteLockLocked() error {
	if p.lockState == WriteLock {
		return nil
	}
	if err := p.ensureReadLockLocked(); err != nil {
		return err
	}
	// flock does not support atomic shared->exclusive upgrade; release the
	// shared lock and take an exclusive one. A concurrent writer racing us
	// here simply fails TryLock and the caller sees BUSY.
	_ = p.flock.Unlock()
	ok, err := p.flock.TryLock()
	if err != nil || !ok {
		// Best-effort: restore the read lock so the pager stays usable.
		_, _ = p.flock.TryRLock()
		p.lockState = ReadLock
		return errs.Internal("pager: BUSY: acquiring write lock")
	}
	p.lockState = WriteLock
	return nil
}

// downgradeToReadLockLocked returns WRITELOCK to READLOCK, per commit/rollback.
func (p *Pager) downgradeToReadLockLocked() {
	if p.lockState != WriteLock {
		return
	}
	_ = p.flock.Unlock()
	_, _ = p.flock.TryRLock()
	p.lockState = ReadLock
}
