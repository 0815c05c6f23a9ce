// Package types defines kvdb's value and schema model: DataValue, DataType,
// Column and Table, and the integrity checks a schema and a row must
// satisfy before they can be persisted.
package types

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cuemby/kvdb/pkg/encoding"
	"github.com/cuemby/kvdb/pkg/errs"
)

// DataType is the type tag of a DataValue. NULL has no type.
type DataType int

const (
	Boolean DataType = iota
	Integer
	Float
	String
)

func (t DataType) String() string {
	switch t {
	case Boolean:
		return "BOOLEAN"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case String:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// MaxStringBytes is the maximum length, in UTF-8 bytes, of a String value.
const MaxStringBytes = 1024

// DataValue is a tagged variant over {Null, Boolean, Integer, Float, String}.
type DataValue struct {
	kind byte // 0 null, 1 bool, 2 int, 3 float, 4 string
	b    bool
	i    int64
	f    float64
	s    string
}

const (
	kindNull byte = iota
	kindBool
	kindInt
	kindFloat
	kindString
)

func Null() DataValue           { return DataValue{kind: kindNull} }
func NewBoolean(b bool) DataValue { return DataValue{kind: kindBool, b: b} }
func NewInteger(i int64) DataValue { return DataValue{kind: kindInt, i: i} }
func NewFloat(f float64) DataValue { return DataValue{kind: kindFloat, f: f} }
func NewString(s string) DataValue { return DataValue{kind: kindString, s: s} }

func (v DataValue) IsNull() bool   { return v.kind == kindNull }
func (v DataValue) AsBoolean() bool { return v.b }
func (v DataValue) AsInteger() int64 { return v.i }
func (v DataValue) AsFloat() float64 { return v.f }
func (v DataValue) AsString() string { return v.s }

// DataType returns the value's type and ok=false if the value is NULL.
func (v DataValue) DataType() (DataType, bool) {
	switch v.kind {
	case kindBool:
		return Boolean, true
	case kindInt:
		return Integer, true
	case kindFloat:
		return Float, true
	case kindString:
		return String, true
	default:
		return 0, false
	}
}

// Equal is structural equality; Null equals only Null (this is NOT SQL's
// three-valued NULL comparison — that lives in pkg/sql/expr).
func (v DataValue) Equal(o DataValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindNull:
		return true
	case kindBool:
		return v.b == o.b
	case kindInt:
		return v.i == o.i
	case kindFloat:
		return v.f == o.f
	case kindString:
		return v.s == o.s
	}
	return false
}

// HashKey returns a value usable as a Go map key; Float is hashed via its
// big-endian bit pattern so that NaN hashes consistently with
// itself (bit pattern identity rather than NaN != NaN).
func (v DataValue) HashKey() any {
	switch v.kind {
	case kindNull:
		return nil
	case kindBool:
		return v.b
	case kindInt:
		return v.i
	case kindFloat:
		return math.Float64bits(v.f)
	case kindString:
		return v.s
	}
	return nil
}

func (v DataValue) String() string {
	switch v.kind {
	case kindNull:
		return "NULL"
	case kindBool:
		if v.b {
			return "TRUE"
		}
		return "FALSE"
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case kindString:
		return v.s
	}
	return "?"
}

// GoString supports %#v and debugging output.
func (v DataValue) GoString() string {
	return fmt.Sprintf("DataValue(%s)", v.String())
}

// Type-prefix bytes: 0x00 Null, 0x01 Bool, 0x02 Float,
// 0x03 Integer, 0x04 String. These prefixes double as the order-preserving
// discriminant used inside composite keys (pkg/keys) and as the on-disk tag
// for serialized row cells and Record values (via GobEncode/GobDecode
// below), so a DataValue only needs one encoding throughout kvdb.
const (
	tagNull    byte = 0x00
	tagBool    byte = 0x01
	tagFloat   byte = 0x02
	tagInteger byte = 0x03
	tagString  byte = 0x04
)

// Encode serializes v to its order-preserving, type-prefixed byte
// representation.
func (v DataValue) Encode() []byte {
	switch v.kind {
	case kindNull:
		return []byte{tagNull}
	case kindBool:
		return []byte{tagBool, encoding.EncodeBool(v.b)}
	case kindFloat:
		b := encoding.EncodeFloat64(v.f)
		return append([]byte{tagFloat}, b[:]...)
	case kindInt:
		b := encoding.EncodeInt64(v.i)
		return append([]byte{tagInteger}, b[:]...)
	case kindString:
		return append([]byte{tagString}, encoding.EncodeString(v.s)...)
	}
	return []byte{tagNull}
}

// TakeDataValue decodes a DataValue from the front of buf, per Encode.
func TakeDataValue(buf []byte) (DataValue, []byte, error) {
	tag, rest, err := encoding.TakeByte(buf)
	if err != nil {
		return DataValue{}, nil, err
	}
	switch tag {
	case tagNull:
		return Null(), rest, nil
	case tagBool:
		b, rest, err := encoding.TakeBool(rest)
		if err != nil {
			return DataValue{}, nil, err
		}
		return NewBoolean(b), rest, nil
	case tagFloat:
		f, rest, err := encoding.TakeFloat64(rest)
		if err != nil {
			return DataValue{}, nil, err
		}
		return NewFloat(f), rest, nil
	case tagInteger:
		i, rest, err := encoding.TakeInt64(rest)
		if err != nil {
			return DataValue{}, nil, err
		}
		return NewInteger(i), rest, nil
	case tagString:
		s, rest, err := encoding.TakeString(rest)
		if err != nil {
			return DataValue{}, nil, err
		}
		return NewString(s), rest, nil
	default:
		return DataValue{}, nil, errs.Value("invalid value tag %#x", tag)
	}
}

// GobEncode/GobDecode let DataValue (whose fields are unexported, to keep
// the zero value meaningfully "NULL") round-trip through encoding/gob, used
// to serialize Rows and Table schemas into Record values.
func (v DataValue) GobEncode() ([]byte, error) {
	return v.Encode(), nil
}

func (v *DataValue) GobDecode(data []byte) error {
	decoded, rest, err := TakeDataValue(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errs.Internal("trailing bytes after DataValue")
	}
	*v = decoded
	return nil
}
