// Package encoding implements order-preserving binary encodings for use in
// MVCC and SQL keys: any two encoded values compare, byte-for-byte, in the
// same order as the values themselves. This lets the ordered KV store's
// range scans double as typed range scans without a secondary index.
package encoding

import (
	"math"

	"github.com/cuemby/kvdb/pkg/errs"
)

// EncodeBool encodes a bool as a single order-preserving byte.
func EncodeBool(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

// TakeBool decodes a bool from the front of buf, returning the remainder.
func TakeBool(buf []byte) (bool, []byte, error) {
	b, rest, err := TakeByte(buf)
	if err != nil {
		return false, nil, err
	}
	switch b {
	case 0x00:
		return false, rest, nil
	case 0x01:
		return true, rest, nil
	default:
		return false, nil, errs.Value("invalid boolean byte %#x", b)
	}
}

// TakeByte removes and returns the first byte of buf.
func TakeByte(buf []byte) (byte, []byte, error) {
	if len(buf) == 0 {
		return 0, nil, errs.Value("unexpected end of bytes")
	}
	return buf[0], buf[1:], nil
}

// EncodeBytes escapes 0x00 as 0x00 0xFF and terminates with 0x00 0x00, so
// that the encoding of a byte string is a prefix-free, order-preserving
// representation suitable for use inside a composite key.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c == 0x00 {
			out = append(out, 0x00, 0xff)
		} else {
			out = append(out, c)
		}
	}
	return append(out, 0x00, 0x00)
}

// TakeBytes decodes a byte string encoded by EncodeBytes from the front of
// buf, returning the decoded bytes and the remainder of buf.
func TakeBytes(buf []byte) ([]byte, []byte, error) {
	decoded := make([]byte, 0, len(buf)/2)
	i := 0
	for {
		if i >= len(buf) {
			return nil, nil, errs.Value("unexpected end of bytes")
		}
		b := buf[i]
		if b != 0x00 {
			decoded = append(decoded, b)
			i++
			continue
		}
		// b == 0x00: either an escape or the terminator.
		if i+1 >= len(buf) {
			return nil, nil, errs.Value("unexpected end of bytes")
		}
		switch buf[i+1] {
		case 0x00:
			return decoded, buf[i+2:], nil
		case 0xff:
			decoded = append(decoded, 0x00)
			i += 2
		default:
			return nil, nil, errs.Value("invalid byte escape %#x", buf[i+1])
		}
	}
}

// EncodeString encodes a UTF-8 string with the same rule as EncodeBytes.
func EncodeString(s string) []byte {
	return EncodeBytes([]byte(s))
}

// TakeString decodes a string encoded by EncodeString.
func TakeString(buf []byte) (string, []byte, error) {
	b, rest, err := TakeBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// EncodeUint64 encodes n as 8 big-endian bytes; unsigned values already sort
// correctly in big-endian byte order.
func EncodeUint64(n uint64) [8]byte {
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(n >> (8 * i))
	}
	return out
}

// TakeUint64 decodes a uint64 from the front of buf.
func TakeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errs.Value("unable to decode uint64 from %d bytes", len(buf))
	}
	var n uint64
	for i := 0; i < 8; i++ {
		n = n<<8 | uint64(buf[i])
	}
	return n, buf[8:], nil
}

// EncodeInt64 encodes n as 8 big-endian bytes with the sign bit flipped, so
// that negative numbers sort before positive ones under byte-wise
// comparison (matches two's-complement magnitude order once the sign bit is
// moved out of the way).
func EncodeInt64(n int64) [8]byte {
	b := EncodeUint64(uint64(n))
	b[0] ^= 1 << 7
	return b
}

// TakeInt64 decodes an int64 from the front of buf.
func TakeInt64(buf []byte) (int64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errs.Value("unable to decode int64 from %d bytes", len(buf))
	}
	var tmp [8]byte
	copy(tmp[:], buf[:8])
	tmp[0] ^= 1 << 7
	n, _, err := TakeUint64(tmp[:])
	return int64(n), buf[8:], err
}

// EncodeFloat64 encodes n as 8 big-endian bytes such that byte-wise order
// equals numeric order, with NaN sorting last: if the raw sign bit is 0
// (n >= +0), flip only the sign bit (so positives sort after negatives);
// otherwise (n < 0 or -0 with the sign bit set) flip every bit, reversing
// the magnitude order of the negative range.
func EncodeFloat64(n float64) [8]byte {
	bits := math.Float64bits(n)
	if bits>>63 == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	var out [8]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(bits >> (8 * i))
	}
	return out
}

// TakeFloat64 decodes a float64 encoded by EncodeFloat64.
func TakeFloat64(buf []byte) (float64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errs.Value("unable to decode float64 from %d bytes", len(buf))
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(buf[i])
	}
	if bits>>63 == 1 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), buf[8:], nil
}
