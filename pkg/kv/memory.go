package kv

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// item is the google/btree element: a key/value pair ordered by Key.
type item struct {
	key   []byte
	value []byte
}

func (a item) Less(b btree.Item) bool {
	return bytes.Compare(a.key, b.(item).key) < 0
}

// MemoryStore is the in-memory reference implementation of Store, backed by
// a google/btree B-tree so that Scan can produce genuinely ordered,
// double-ended iteration. Scan copies every pair in the requested range
// into the returned iterator.
type MemoryStore struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewMemoryStore creates an empty in-memory ordered store. The underlying
// B-tree's degree (branching factor) is fixed at 32, a reasonable value for
// an in-process store with no disk I/O to amortize.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tree: btree.New(32)}
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.tree.Get(item{key: key})
	if found == nil {
		return nil, nil
	}
	v := found.(item).value
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	s.tree.ReplaceOrInsert(item{key: k, value: v})
	return nil
}

func (s *MemoryStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(item{key: key})
	return nil
}

func (s *MemoryStore) Flush() error {
	// Nothing to flush; the in-memory store has no backing file.
	return nil
}

func (s *MemoryStore) Scan(r Range) (Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairs []Pair
	visit := func(i btree.Item) bool {
		it := i.(item)
		if r.End.Unbounded {
			// no upper bound
		} else if r.End.Inclusive {
			if bytes.Compare(it.key, r.End.Key) > 0 {
				return false
			}
		} else {
			if bytes.Compare(it.key, r.End.Key) >= 0 {
				return false
			}
		}
		k := append([]byte(nil), it.key...)
		v := append([]byte(nil), it.value...)
		pairs = append(pairs, Pair{Key: k, Value: v})
		return true
	}

	switch {
	case r.Start.Unbounded:
		s.tree.Ascend(visit)
	case r.Start.Inclusive:
		s.tree.AscendGreaterOrEqual(item{key: r.Start.Key}, visit)
	default:
		// Exclusive start: AscendGreaterOrEqual then drop an exact match.
		first := true
		s.tree.AscendGreaterOrEqual(item{key: r.Start.Key}, func(i btree.Item) bool {
			it := i.(item)
			if first && bytes.Equal(it.key, r.Start.Key) {
				first = false
				return true
			}
			first = false
			return visit(i)
		})
	}

	return &sliceIterator{pairs: pairs}, nil
}

// sliceIterator is a materialized double-ended iterator over a Scan's
// result set, snapshotted under MemoryStore's read lock at Scan time.
type sliceIterator struct {
	pairs []Pair
	front int
	back  int // exclusive
	init  bool
}

func (it *sliceIterator) ensureInit() {
	if !it.init {
		it.back = len(it.pairs)
		it.init = true
	}
}

func (it *sliceIterator) Next() (Pair, bool, error) {
	it.ensureInit()
	if it.front >= it.back {
		return Pair{}, false, nil
	}
	p := it.pairs[it.front]
	it.front++
	return p, true, nil
}

func (it *sliceIterator) NextBack() (Pair, bool, error) {
	it.ensureInit()
	if it.front >= it.back {
		return Pair{}, false, nil
	}
	it.back--
	return it.pairs[it.back], true, nil
}

func (it *sliceIterator) Close() {}
