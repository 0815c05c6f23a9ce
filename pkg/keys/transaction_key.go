// Package keys implements the two byte-level key namespaces kvdb's ordered
// KV store holds: the MVCC transaction namespace (TransactionKey) and the
// SQL namespace (SQLKey). Both encode order-preservingly (pkg/encoding) and
// support "trailing optional field omitted" prefixes so that scan_prefix
// can enumerate a namespace's children.
package keys

import (
	"fmt"

	"github.com/cuemby/kvdb/pkg/encoding"
	"github.com/cuemby/kvdb/pkg/errs"
)

// Namespace is the 1-byte prefix separating the transaction and SQL key
// spaces sharing one ordered KV store.
type Namespace byte

const (
	NamespaceTransaction Namespace = 0x01
	NamespaceSQL         Namespace = 0x02
)

type txnKeyKind byte

const (
	kindTxnNext txnKeyKind = iota + 1
	kindTxnActive
	kindTxnSnapshot
	kindTxnUpdate
	kindRecord
	kindMetadata
)

// TransactionKey is the sum type of the MVCC metadata namespace: TxnNext,
// TxnActive(id), TxnSnapshot(id), TxnUpdate(id, key), Record(key, version)
// and Metadata(key).
type TransactionKey struct {
	kind    txnKeyKind
	id      uint64
	hasID   bool
	userKey []byte
	version uint64
	hasVer  bool
}

func TxnNext() TransactionKey { return TransactionKey{kind: kindTxnNext} }

func TxnActive(id uint64) TransactionKey {
	return TransactionKey{kind: kindTxnActive, id: id, hasID: true}
}

// TxnActivePrefix encodes the prefix covering every TxnActive(*) entry, used
// to enumerate the set of currently active transactions.
func TxnActivePrefix() []byte {
	return []byte{byte(NamespaceTransaction), byte(kindTxnActive)}
}

func TxnSnapshot(id uint64) TransactionKey {
	return TransactionKey{kind: kindTxnSnapshot, id: id, hasID: true}
}

func TxnUpdate(id uint64, key []byte) TransactionKey {
	return TransactionKey{kind: kindTxnUpdate, id: id, hasID: true, userKey: key}
}

// TxnUpdatePrefix encodes the prefix covering all TxnUpdate(id, *) entries,
// used to scan a transaction's rollback index.
func TxnUpdatePrefix(id uint64) TransactionKey {
	return TransactionKey{kind: kindTxnUpdate, id: id, hasID: true, userKey: nil}
}

func Record(key []byte, version uint64) TransactionKey {
	return TransactionKey{kind: kindRecord, userKey: key, version: version, hasVer: true}
}

// RecordPrefix encodes the prefix covering all versions of key.
func RecordPrefix(key []byte) TransactionKey {
	return TransactionKey{kind: kindRecord, userKey: key, hasVer: false}
}

func Metadata(key []byte) TransactionKey {
	return TransactionKey{kind: kindMetadata, userKey: key}
}

// Encode serializes k to its order-preserving byte representation.
func (k TransactionKey) Encode() []byte {
	out := []byte{byte(NamespaceTransaction), byte(k.kind)}
	switch k.kind {
	case kindTxnNext:
	case kindTxnActive, kindTxnSnapshot:
		id := encoding.EncodeUint64(k.id)
		out = append(out, id[:]...)
	case kindTxnUpdate:
		id := encoding.EncodeUint64(k.id)
		out = append(out, id[:]...)
		if k.userKey != nil {
			out = append(out, encoding.EncodeBytes(k.userKey)...)
		}
	case kindRecord:
		out = append(out, encoding.EncodeBytes(k.userKey)...)
		if k.hasVer {
			v := encoding.EncodeUint64(k.version)
			out = append(out, v[:]...)
		}
	case kindMetadata:
		out = append(out, encoding.EncodeBytes(k.userKey)...)
	}
	return out
}

// DecodeTransactionKey decodes a TransactionKey previously produced by
// Encode. Used when scanning, e.g., all TxnActive(*) entries to learn which
// ids are currently live.
func DecodeTransactionKey(buf []byte) (TransactionKey, error) {
	if len(buf) < 2 {
		return TransactionKey{}, errs.Internal("transaction key too short")
	}
	if Namespace(buf[0]) != NamespaceTransaction {
		return TransactionKey{}, errs.Internal("not a transaction key")
	}
	kind := txnKeyKind(buf[1])
	rest := buf[2:]
	switch kind {
	case kindTxnNext:
		return TxnNext(), nil
	case kindTxnActive:
		id, _, err := encoding.TakeUint64(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		return TxnActive(id), nil
	case kindTxnSnapshot:
		id, _, err := encoding.TakeUint64(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		return TxnSnapshot(id), nil
	case kindTxnUpdate:
		id, rest, err := encoding.TakeUint64(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		var userKey []byte
		if len(rest) > 0 {
			userKey, _, err = encoding.TakeBytes(rest)
			if err != nil {
				return TransactionKey{}, err
			}
		}
		return TransactionKey{kind: kindTxnUpdate, id: id, hasID: true, userKey: userKey}, nil
	case kindRecord:
		userKey, rest, err := encoding.TakeBytes(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		version, _, err := encoding.TakeUint64(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		return Record(userKey, version), nil
	case kindMetadata:
		userKey, _, err := encoding.TakeBytes(rest)
		if err != nil {
			return TransactionKey{}, err
		}
		return Metadata(userKey), nil
	default:
		return TransactionKey{}, errs.Internal("invalid transaction key kind %d", kind)
	}
}

// ID returns the transaction id carried by TxnActive/TxnSnapshot/TxnUpdate
// keys.
func (k TransactionKey) ID() uint64 { return k.id }

// UserKey returns the user-level key carried by TxnUpdate/Record/Metadata.
func (k TransactionKey) UserKey() []byte { return k.userKey }

// Version returns the version carried by a Record key.
func (k TransactionKey) Version() uint64 { return k.version }

func (k TransactionKey) String() string {
	switch k.kind {
	case kindTxnNext:
		return "TxnNext"
	case kindTxnActive:
		return fmt.Sprintf("TxnActive(%d)", k.id)
	case kindTxnSnapshot:
		return fmt.Sprintf("TxnSnapshot(%d)", k.id)
	case kindTxnUpdate:
		return fmt.Sprintf("TxnUpdate(%d, %x)", k.id, k.userKey)
	case kindRecord:
		return fmt.Sprintf("Record(%x, %d)", k.userKey, k.version)
	case kindMetadata:
		return fmt.Sprintf("Metadata(%x)", k.userKey)
	default:
		return "Invalid"
	}
}
