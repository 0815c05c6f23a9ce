// Package mvcc implements the MVCC transactional layer: snapshot
// isolation over the ordered KV store, keyed through pkg/keys'
// TransactionKey namespace. It is the sole writer of that namespace; every
// higher layer (pkg/sql/engine) reads and writes through a *Transaction.
package mvcc

import (
	"bytes"
	"sync"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/keys"
	"github.com/cuemby/kvdb/pkg/kv"
	"github.com/cuemby/kvdb/pkg/log"
	"github.com/cuemby/kvdb/pkg/metrics"
)

// Mode is a transaction's access mode.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
	Snapshot // Version holds the id being viewed
)

// TransactionMode pairs a Mode with the version a Snapshot transaction
// views; Version is unused for ReadWrite/ReadOnly.
type TransactionMode struct {
	Mode    Mode
	Version uint64
}

func (m TransactionMode) String() string {
	switch m.Mode {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case Snapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// state is a transaction's lifecycle stage: Active -> {Committed, RolledBack}.
type state int

const (
	stateActive state = iota
	stateCommitted
	stateRolledBack
)

// MVCC owns the ordered store and hands out Transaction handles. All
// transaction bookkeeping (TxnNext/TxnActive/TxnSnapshot/TxnUpdate) lives in
// the store under the transaction namespace; MVCC itself is stateless
// besides a mutex serializing the Begin/Commit/Rollback critical sections.
type MVCC struct {
	mu    sync.Mutex
	store kv.Store
	name  string
}

// New wraps store in an MVCC layer. name is a human-readable label
// surfaced by Status.
func New(store kv.Store, name string) *MVCC {
	return &MVCC{store: store, name: name}
}

// Transaction is a handle into one MVCC transaction's lifecycle.
type Transaction struct {
	mvcc     *MVCC
	id       uint64
	mode     TransactionMode
	snapshot map[uint64]struct{}
	st       state
}

// ID returns the transaction's assigned id.
func (t *Transaction) ID() uint64 { return t.id }

// Mode returns the transaction's access mode.
func (t *Transaction) Mode() TransactionMode { return t.mode }

// writable reports whether this transaction is holding its store
// mutation privileges — the MVCC layer's ReadWrite mode only.
func (t *Transaction) writable() bool { return t.mode.Mode == ReadWrite }

// Begin starts a new transaction in the given mode.
func (m *MVCC) Begin(mode TransactionMode) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.nextTxnIDLocked()
	if err != nil {
		return nil, err
	}

	var snapshot map[uint64]struct{}
	if mode.Mode == Snapshot {
		snapshot, err = m.loadSnapshotLocked(mode.Version)
		if err != nil {
			return nil, err
		}
	} else {
		snapshot, err = m.activeIDsLocked(id)
		if err != nil {
			return nil, err
		}
	}

	if err := m.putActiveLocked(id, mode); err != nil {
		return nil, err
	}
	if err := m.putSnapshotLocked(id, snapshot); err != nil {
		return nil, err
	}

	log.WithTxnID(id).Debug().Str("mode", mode.String()).Msg("begin transaction")
	metrics.MVCCActiveTransactions.Inc()
	return &Transaction{mvcc: m, id: id, mode: mode, snapshot: snapshot, st: stateActive}, nil
}

// Resume reattaches to a transaction previously begun by this or another
// process sharing the store, loading its persisted mode and snapshot.
func (m *MVCC) Resume(id uint64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.store.Get(keys.TxnActive(id).Encode())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.Value("no active transaction %d", id)
	}
	mode, err := decodeMode(raw)
	if err != nil {
		return nil, err
	}

	snapRaw, err := m.store.Get(keys.TxnSnapshot(id).Encode())
	if err != nil {
		return nil, err
	}
	snapshot, err := decodeSnapshot(snapRaw)
	if err != nil {
		return nil, err
	}

	return &Transaction{mvcc: m, id: id, mode: mode, snapshot: snapshot, st: stateActive}, nil
}

func (m *MVCC) nextTxnIDLocked() (uint64, error) {
	k := keys.TxnNext().Encode()
	raw, err := m.store.Get(k)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if raw != nil {
		var ok bool
		next, ok = decodeUint64(raw)
		if !ok {
			return 0, errs.Internal("mvcc: corrupt TxnNext value")
		}
	}
	if err := m.store.Set(k, encodeUint64(next+1)); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *MVCC) activeIDsLocked(exclude uint64) (map[uint64]struct{}, error) {
	it, err := kv.ScanPrefix(m.store, keys.TxnActivePrefix())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := map[uint64]struct{}{}
	for {
		pair, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			return nil, err
		}
		if tk.ID() != exclude {
			out[tk.ID()] = struct{}{}
		}
	}
	return out, nil
}

func (m *MVCC) loadSnapshotLocked(version uint64) (map[uint64]struct{}, error) {
	raw, err := m.store.Get(keys.TxnSnapshot(version).Encode())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errs.Value("no committed transaction with version %d", version)
	}
	return decodeSnapshot(raw)
}

func (m *MVCC) putActiveLocked(id uint64, mode TransactionMode) error {
	return m.store.Set(keys.TxnActive(id).Encode(), encodeMode(mode))
}

func (m *MVCC) putSnapshotLocked(id uint64, snapshot map[uint64]struct{}) error {
	return m.store.Set(keys.TxnSnapshot(id).Encode(), encodeSnapshot(snapshot))
}

// visible reports whether version v is visible to this transaction:
// v <= T and v not in S.
func (t *Transaction) visible(v uint64) bool {
	if v > t.id {
		return false
	}
	_, excluded := t.snapshot[v]
	return !excluded
}

// Get returns the value visible to this transaction at k, or nil if the key
// has no visible value (absent or the greatest visible version is a
// tombstone).
func (t *Transaction) Get(k []byte) ([]byte, error) {
	it, err := kv.ScanPrefix(t.mvcc.store, keys.RecordPrefix(k).Encode())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var best []byte
	var bestVer uint64
	found := false
	for {
		pair, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			return nil, err
		}
		v := rk.Version()
		if !t.visible(v) {
			continue
		}
		if !found || v > bestVer {
			found = true
			bestVer = v
			best = pair.Value
		}
	}
	if !found {
		return nil, nil
	}
	return decodeRecordValue(best)
}

// Set writes value at key k, subject to the write-write conflict check.
func (t *Transaction) Set(k, value []byte) error {
	return t.write(k, recordValue(value, false))
}

// Delete writes a tombstone at key k.
func (t *Transaction) Delete(k []byte) error {
	return t.write(k, recordValue(nil, true))
}

func (t *Transaction) write(k []byte, rv []byte) error {
	if t.st != stateActive {
		return errs.Internal("mvcc: transaction %d is not active", t.id)
	}
	if !t.writable() {
		return errs.ReadOnly()
	}

	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	if err := t.checkConflictLocked(k); err != nil {
		if errs.KindOf(err) == errs.KindSerialization {
			metrics.MVCCWriteConflictsTotal.Inc()
		}
		return err
	}

	if err := t.mvcc.store.Set(keys.TxnUpdate(t.id, k).Encode(), []byte{1}); err != nil {
		return err
	}
	return t.mvcc.store.Set(keys.Record(k, t.id).Encode(), rv)
}

// checkConflictLocked fails with Serialization if any other transaction has
// already recorded a version of k that this transaction cannot safely
// overwrite: any version strictly greater than T, or any version at or
// below T written by a transaction still active from this one's point of
// view.
func (t *Transaction) checkConflictLocked(k []byte) error {
	it, err := kv.ScanPrefix(t.mvcc.store, keys.RecordPrefix(k).Encode())
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		pair, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			return err
		}
		v := rk.Version()
		if v == t.id {
			continue
		}
		if v > t.id {
			return errs.Serialization()
		}
		if !t.visible(v) {
			return errs.Serialization()
		}
	}
	return nil
}

// ScanResult is one visible (key, value) pair produced by Scan, with the
// TransactionKey's user-level key already extracted.
type ScanResult struct {
	Key   []byte
	Value []byte
}

// Scan returns every visible, non-tombstone record whose user key falls in
// [start, end) (an unbounded/open range if start/end is nil), collapsing
// multiple versions of the same key to its single visible entry.
func (t *Transaction) Scan(start, end []byte) ([]ScanResult, error) {
	startKey := keys.RecordPrefix(append([]byte(nil), start...)).Encode()
	var r kv.Range
	if start == nil {
		r.Start = kv.UnboundedBound()
	} else {
		r.Start = kv.Included(startKey)
	}
	if end == nil {
		r.End = kv.UnboundedBound()
	} else {
		r.End = kv.Excluded(keys.RecordPrefix(append([]byte(nil), end...)).Encode())
	}

	it, err := t.mvcc.store.Scan(r)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	return t.collapseVersions(it)
}

// ScanPrefix returns every visible, non-tombstone record whose user key
// begins with prefix. Record keys sort by
// (escaped user key bytes, version), so the byte range of a "user key
// prefix" scan can't be computed by incrementing the raw prefix the way
// kv.PrefixEnd does for unescaped keys; instead this walks every Record
// from prefix's first possible key onward and stops as soon as a decoded
// user key no longer carries the prefix.
func (t *Transaction) ScanPrefix(prefix []byte) ([]ScanResult, error) {
	recPrefix := keys.RecordPrefix(prefix).Encode()
	it, err := t.mvcc.store.Scan(kv.Range{
		Start: kv.Included(recPrefix),
		End:   kv.UnboundedBound(),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var pending []keys.TransactionKey
	var pendingVals [][]byte
	for {
		pair, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(rk.UserKey(), prefix) {
			break
		}
		pending = append(pending, rk)
		pendingVals = append(pendingVals, pair.Value)
	}

	return t.collapsePending(pending, pendingVals)
}

func (t *Transaction) collapseVersions(it kv.Iterator) ([]ScanResult, error) {
	var keysSeen []keys.TransactionKey
	var vals [][]byte
	for {
		pair, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			return nil, err
		}
		keysSeen = append(keysSeen, rk)
		vals = append(vals, pair.Value)
	}
	return t.collapsePending(keysSeen, vals)
}

// collapsePending groups a run of TransactionKey Record entries (already in
// ascending (user key, version) order) by user key, keeping only the
// greatest visible version per key and dropping tombstones.
func (t *Transaction) collapsePending(rks []keys.TransactionKey, vals [][]byte) ([]ScanResult, error) {
	var out []ScanResult
	i := 0
	for i < len(rks) {
		uk := rks[i].UserKey()
		j := i
		var bestVer uint64
		var bestVal []byte
		found := false
		for j < len(rks) && bytes.Equal(rks[j].UserKey(), uk) {
			v := rks[j].Version()
			if t.visible(v) && (!found || v > bestVer) {
				found = true
				bestVer = v
				bestVal = vals[j]
			}
			j++
		}
		if found {
			val, err := decodeRecordValue(bestVal)
			if err != nil {
				return nil, err
			}
			if val != nil {
				out = append(out, ScanResult{Key: append([]byte(nil), uk...), Value: val})
			}
		}
		i = j
	}
	return out, nil
}

// Commit ends the transaction successfully.
func (t *Transaction) Commit() error {
	if t.st != stateActive {
		return nil
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	it, err := kv.ScanPrefix(t.mvcc.store, keys.TxnUpdatePrefix(t.id).Encode())
	if err != nil {
		return err
	}
	var updateKeys [][]byte
	for {
		pair, ok, err := it.Next()
		if err != nil {
			it.Close()
			return err
		}
		if !ok {
			break
		}
		updateKeys = append(updateKeys, append([]byte(nil), pair.Key...))
	}
	it.Close()

	for _, uk := range updateKeys {
		if err := t.mvcc.store.Delete(uk); err != nil {
			return err
		}
	}
	if err := t.mvcc.store.Delete(keys.TxnActive(t.id).Encode()); err != nil {
		return err
	}
	if err := t.mvcc.store.Flush(); err != nil {
		return err
	}
	t.st = stateCommitted
	log.WithTxnID(t.id).Debug().Msg("commit transaction")
	metrics.MVCCActiveTransactions.Dec()
	metrics.MVCCCommitsTotal.Inc()
	return nil
}

// Rollback undoes every write this transaction made.
func (t *Transaction) Rollback() error {
	if t.st != stateActive {
		return nil
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	it, err := kv.ScanPrefix(t.mvcc.store, keys.TxnUpdatePrefix(t.id).Encode())
	if err != nil {
		return err
	}
	var updateKeys []keys.TransactionKey
	for {
		pair, ok, err := it.Next()
		if err != nil {
			it.Close()
			return err
		}
		if !ok {
			break
		}
		tk, err := keys.DecodeTransactionKey(pair.Key)
		if err != nil {
			it.Close()
			return err
		}
		updateKeys = append(updateKeys, tk)
	}
	it.Close()

	for _, tk := range updateKeys {
		if err := t.mvcc.store.Delete(keys.Record(tk.UserKey(), t.id).Encode()); err != nil {
			return err
		}
		if err := t.mvcc.store.Delete(tk.Encode()); err != nil {
			return err
		}
	}
	if err := t.mvcc.store.Delete(keys.TxnActive(t.id).Encode()); err != nil {
		return err
	}
	t.st = stateRolledBack
	log.WithTxnID(t.id).Debug().Msg("rollback transaction")
	metrics.MVCCActiveTransactions.Dec()
	metrics.MVCCRollbacksTotal.Inc()
	return nil
}

// GetMetadata reads an unversioned value stored outside the transaction
// log, used by higher layers to persist things like a schema version.
func (m *MVCC) GetMetadata(k []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(keys.Metadata(k).Encode())
}

// SetMetadata writes an unversioned value.
func (m *MVCC) SetMetadata(k, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Set(keys.Metadata(k).Encode(), v)
}

// Status is the snapshot reported by MVCC.Status.
type Status struct {
	StorageName  string
	LastTxnID    uint64
	ActiveTxnIDs []uint64
}

// Status reports the highest assigned id, the set of active transactions
// and a human-readable storage name.
func (m *MVCC) Status() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last uint64
	raw, err := m.store.Get(keys.TxnNext().Encode())
	if err != nil {
		return Status{}, err
	}
	if raw != nil {
		next, ok := decodeUint64(raw)
		if !ok {
			return Status{}, errs.Internal("mvcc: corrupt TxnNext value")
		}
		last = next - 1
	}

	active, err := m.activeIDsLocked(0)
	if err != nil {
		return Status{}, err
	}
	ids := make([]uint64, 0, len(active)+1)
	for id := range active {
		ids = append(ids, id)
	}
	return Status{StorageName: m.name, LastTxnID: last, ActiveTxnIDs: ids}, nil
}
