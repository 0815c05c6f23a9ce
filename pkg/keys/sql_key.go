package keys

import (
	"fmt"

	"github.com/cuemby/kvdb/pkg/encoding"
	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

type sqlKeyKind byte

const (
	kindTable sqlKeyKind = iota + 1
	kindRow
	kindIndex
)

// SQLKey is the sum type of the SQL namespace: Table(name?), Row(table,
// pk?), and Index(table, column, value?).
type SQLKey struct {
	kind   sqlKeyKind
	table  string
	column string
	value  *types.DataValue
}

// Table encodes a table-schema key. A nil/empty name (use TablePrefix)
// encodes the prefix covering every table schema.
func Table(name string) SQLKey {
	return SQLKey{kind: kindTable, table: name}
}

// TablePrefix encodes the prefix covering all table schemas.
func TablePrefix() SQLKey {
	return SQLKey{kind: kindTable}
}

// Row encodes a key for a row identified by table and primary key. A nil pk
// (use RowPrefix) encodes the prefix covering every row of table.
func Row(table string, pk types.DataValue) SQLKey {
	return SQLKey{kind: kindRow, table: table, value: &pk}
}

// RowPrefix encodes the prefix covering all rows of table.
func RowPrefix(table string) SQLKey {
	return SQLKey{kind: kindRow, table: table}
}

// Index encodes a key for an index entry. A nil value (use IndexPrefix)
// encodes the prefix covering every value indexed for (table, column).
func Index(table, column string, value types.DataValue) SQLKey {
	return SQLKey{kind: kindIndex, table: table, column: column, value: &value}
}

// IndexPrefix encodes the prefix covering all values of (table, column)'s index.
func IndexPrefix(table, column string) SQLKey {
	return SQLKey{kind: kindIndex, table: table, column: column}
}

// Encode serializes k to its order-preserving byte representation.
func (k SQLKey) Encode() []byte {
	out := []byte{byte(NamespaceSQL), byte(k.kind)}
	switch k.kind {
	case kindTable:
		if k.table != "" {
			out = append(out, encoding.EncodeString(k.table)...)
		}
	case kindRow:
		out = append(out, encoding.EncodeString(k.table)...)
		if k.value != nil {
			out = append(out, k.value.Encode()...)
		}
	case kindIndex:
		out = append(out, encoding.EncodeString(k.table)...)
		out = append(out, encoding.EncodeString(k.column)...)
		if k.value != nil {
			out = append(out, k.value.Encode()...)
		}
	}
	return out
}

// DecodeSQLKey decodes a SQLKey previously produced by Encode.
func DecodeSQLKey(buf []byte) (SQLKey, error) {
	if len(buf) < 2 {
		return SQLKey{}, errs.Internal("sql key too short")
	}
	if Namespace(buf[0]) != NamespaceSQL {
		return SQLKey{}, errs.Internal("not a sql key")
	}
	kind := sqlKeyKind(buf[1])
	rest := buf[2:]
	switch kind {
	case kindTable:
		if len(rest) == 0 {
			return TablePrefix(), nil
		}
		name, _, err := encoding.TakeString(rest)
		if err != nil {
			return SQLKey{}, err
		}
		return Table(name), nil
	case kindRow:
		table, rest, err := encoding.TakeString(rest)
		if err != nil {
			return SQLKey{}, err
		}
		if len(rest) == 0 {
			return RowPrefix(table), nil
		}
		pk, _, err := types.TakeDataValue(rest)
		if err != nil {
			return SQLKey{}, err
		}
		return Row(table, pk), nil
	case kindIndex:
		table, rest, err := encoding.TakeString(rest)
		if err != nil {
			return SQLKey{}, err
		}
		column, rest, err := encoding.TakeString(rest)
		if err != nil {
			return SQLKey{}, err
		}
		if len(rest) == 0 {
			return IndexPrefix(table, column), nil
		}
		value, _, err := types.TakeDataValue(rest)
		if err != nil {
			return SQLKey{}, err
		}
		return Index(table, column, value), nil
	default:
		return SQLKey{}, errs.Internal("invalid sql key kind %d", kind)
	}
}

func (k SQLKey) Table() string { return k.table }
func (k SQLKey) Column() string { return k.column }
func (k SQLKey) Value() *types.DataValue { return k.value }

func (k SQLKey) String() string {
	switch k.kind {
	case kindTable:
		return fmt.Sprintf("Table(%s)", k.table)
	case kindRow:
		return fmt.Sprintf("Row(%s, %v)", k.table, k.value)
	case kindIndex:
		return fmt.Sprintf("Index(%s, %s, %v)", k.table, k.column, k.value)
	default:
		return "Invalid"
	}
}
