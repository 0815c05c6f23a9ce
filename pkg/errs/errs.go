// Package errs implements kvdb's error taxonomy: Config, Value, Parse,
// Internal, Serialization and ReadOnly. Executors, the planner and the MVCC
// layer all return *Error; the session facade rolls back on any of them and
// surfaces the failure, leaving a retry after Serialization to the client.
package errs

import "fmt"

// Kind classifies an Error for callers that need to branch on it (a client
// deciding whether to retry after KindSerialization, and so on). The server
// does not branch on Kind: it reports every error, KindInternal included, as
// an error response and keeps the connection open.
type Kind int

const (
	KindConfig Kind = iota
	KindValue
	KindParse
	KindInternal
	KindSerialization
	KindReadOnly
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "Config"
	case KindValue:
		return "Value"
	case KindParse:
		return "Parse"
	case KindInternal:
		return "Internal"
	case KindSerialization:
		return "Serialization"
	case KindReadOnly:
		return "ReadOnly"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type produced throughout kvdb.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSerialization:
		return "serialization failure, retry transaction"
	case KindReadOnly:
		return "write attempted in a read-only transaction"
	default:
		return e.Msg
	}
}

// Is lets callers use errors.Is(err, errs.Serialization()) and similar.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

func Value(format string, args ...any) *Error {
	return &Error{Kind: KindValue, Msg: fmt.Sprintf(format, args...)}
}

func Parse(format string, args ...any) *Error {
	return &Error{Kind: KindParse, Msg: fmt.Sprintf(format, args...)}
}

func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}

func Serialization() *Error {
	return &Error{Kind: KindSerialization, Msg: "serialization failure, retry transaction"}
}

func ReadOnly() *Error {
	return &Error{Kind: KindReadOnly, Msg: "write attempted in a read-only transaction"}
}

// KindOf reports the Kind of err, or KindInternal if err is not an *Error
// (wraps a foreign error, e.g. an os.PathError from the pager).
func KindOf(err error) Kind {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Kind
	}
	return KindInternal
}
