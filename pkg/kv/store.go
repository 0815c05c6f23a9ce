// Package kv defines the Ordered KV Store contract: a
// byte-keyed map with ordered range scans, shared behind a reader-writer
// mutex. pkg/mvcc is the only consumer; it never reasons about keys other
// than as opaque, comparable byte strings.
package kv

import "github.com/cuemby/kvdb/pkg/errs"

// Bound is one endpoint of a Range.
type Bound struct {
	Key       []byte
	Inclusive bool
	Unbounded bool
}

// UnboundedBound returns an unbounded Bound.
func UnboundedBound() Bound { return Bound{Unbounded: true} }

// Included returns an inclusive Bound at key.
func Included(key []byte) Bound { return Bound{Key: key, Inclusive: true} }

// Excluded returns an exclusive Bound at key.
func Excluded(key []byte) Bound { return Bound{Key: key, Inclusive: false} }

// Range is an inclusive/exclusive/unbounded key range passed to Scan.
type Range struct {
	Start Bound
	End   Bound
}

// RangeAll scans the entire keyspace.
func RangeAll() Range { return Range{Start: UnboundedBound(), End: UnboundedBound()} }

// RangeFrom scans [start, end) of arbitrary bound kinds.
func RangeFrom(start, end Bound) Range { return Range{Start: start, End: end} }

// Pair is one (key, value) result of a scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Iterator is a double-ended iterator over ascending-key (k, v) pairs.
// Callers drive it with Next/NextBack until both return ok=false, then must
// call Close.
type Iterator interface {
	Next() (Pair, bool, error)
	NextBack() (Pair, bool, error)
	Close()
}

// Store is the Ordered KV Store contract. Implementations must be safe to
// share behind a read/write mutex: Get/Scan require only read access; Set,
// Delete and Flush require write access (callers serialize writers
// themselves — Store methods are not internally synchronized beyond what an
// implementation documents).
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Flush() error
	Scan(r Range) (Iterator, error)
}

// PrefixEnd computes prefix⁺, the lexicographic successor of prefix, by
// incrementing its last non-0xFF byte and dropping every trailing 0xFF
// byte. ScanPrefix(prefix) is then Scan([prefix, PrefixEnd(prefix))).
func PrefixEnd(prefix []byte) ([]byte, error) {
	if len(prefix) == 0 {
		return nil, errs.Internal("cannot compute successor of an empty prefix")
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1], nil
		}
	}
	return nil, errs.Internal("cannot compute successor of an all-0xFF prefix")
}

// ScanPrefix scans every key with the given prefix.
func ScanPrefix(s Store, prefix []byte) (Iterator, error) {
	end, err := PrefixEnd(prefix)
	if err != nil {
		return nil, err
	}
	return s.Scan(Range{Start: Included(prefix), End: Excluded(end)})
}
