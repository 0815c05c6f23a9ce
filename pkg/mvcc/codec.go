package mvcc

import (
	"encoding/binary"

	"github.com/cuemby/kvdb/pkg/errs"
)

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(buf []byte) (uint64, bool) {
	if len(buf) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(buf), true
}

// mode tags identify a TransactionMode's variant in its persisted form.
const (
	modeTagReadWrite byte = iota
	modeTagReadOnly
	modeTagSnapshot
)

func encodeMode(m TransactionMode) []byte {
	switch m.Mode {
	case ReadWrite:
		return []byte{modeTagReadWrite}
	case ReadOnly:
		return []byte{modeTagReadOnly}
	case Snapshot:
		out := make([]byte, 9)
		out[0] = modeTagSnapshot
		binary.BigEndian.PutUint64(out[1:], m.Version)
		return out
	default:
		return []byte{modeTagReadWrite}
	}
}

func decodeMode(buf []byte) (TransactionMode, error) {
	if len(buf) == 0 {
		return TransactionMode{}, errs.Internal("mvcc: empty transaction mode")
	}
	switch buf[0] {
	case modeTagReadWrite:
		return TransactionMode{Mode: ReadWrite}, nil
	case modeTagReadOnly:
		return TransactionMode{Mode: ReadOnly}, nil
	case modeTagSnapshot:
		if len(buf) != 9 {
			return TransactionMode{}, errs.Internal("mvcc: corrupt snapshot mode")
		}
		return TransactionMode{Mode: Snapshot, Version: binary.BigEndian.Uint64(buf[1:])}, nil
	default:
		return TransactionMode{}, errs.Internal("mvcc: invalid transaction mode tag %d", buf[0])
	}
}

// encodeSnapshot serializes a transaction-id set as a flat run of 8-byte
// big-endian ids.
func encodeSnapshot(ids map[uint64]struct{}) []byte {
	out := make([]byte, 0, 8*len(ids))
	for id := range ids {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], id)
		out = append(out, b[:]...)
	}
	return out
}

func decodeSnapshot(buf []byte) (map[uint64]struct{}, error) {
	if len(buf)%8 != 0 {
		return nil, errs.Internal("mvcc: corrupt snapshot set")
	}
	out := make(map[uint64]struct{}, len(buf)/8)
	for i := 0; i < len(buf); i += 8 {
		out[binary.BigEndian.Uint64(buf[i:i+8])] = struct{}{}
	}
	return out, nil
}

// recordValue encodes a Record's value as an optional byte string: a
// tombstone tag for delete, a present tag plus raw bytes for set.
func recordValue(v []byte, tombstone bool) []byte {
	if tombstone {
		return []byte{0}
	}
	out := make([]byte, 1+len(v))
	out[0] = 1
	copy(out[1:], v)
	return out
}

// decodeRecordValue returns the stored value, or nil for a tombstone.
func decodeRecordValue(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errs.Internal("mvcc: empty record value")
	}
	switch raw[0] {
	case 0:
		return nil, nil
	case 1:
		return append([]byte(nil), raw[1:]...), nil
	default:
		return nil, errs.Internal("mvcc: invalid record value tag %d", raw[0])
	}
}
