// Package wire implements the length-delimited request/response framing
// between a kvdb server and its clients: a request is one of Execute(sql),
// GetTable(name), ListTables, Status; a response is one of Execute(ResultSet
// summary), Row(Option<Row>), ListTable([]string), Status(...), or
// Error(msg). A Query result streams one Execute response carrying its
// column headers, followed by a sequence of Row responses, terminated by
// one Row response with no row (or one Error response on a mid-stream
// iteration failure, which also terminates the stream).
//
// Frames are gob-encoded payloads prefixed by a 4-byte big-endian length,
// following pkg/sql/engine's use of encoding/gob for on-disk records; this
// keeps the wire format free of a protobuf/grpc dependency that a
// single-node, Go-to-Go embedded engine does not need (see DESIGN.md).
package wire

import (
	"encoding/binary"
	"io"

	"github.com/cuemby/kvdb/pkg/errs"
	"github.com/cuemby/kvdb/pkg/sql/types"
)

// MaxFrameSize bounds a single frame, guarding a connection against a
// corrupt or hostile length prefix.
const MaxFrameSize = 64 << 20

// RequestKind discriminates Request's variants.
type RequestKind int

const (
	ReqExecute RequestKind = iota
	ReqGetTable
	ReqListTables
	ReqStatus
)

// Request is one client request frame.
type Request struct {
	Kind RequestKind

	SQL   string // Execute
	Table string // GetTable
}

// ResponseKind discriminates Response's variants.
type ResponseKind int

const (
	RespExecute ResponseKind = iota
	RespRow
	RespListTables
	RespTable
	RespStatus
	RespError
)

// ExecuteSummary mirrors exec.ResultSet minus its live row iterator: the
// server sends one of these immediately after planning/executing a
// statement, then streams Row frames separately for a query.
type ExecuteSummary struct {
	Kind    string // exec.ResultKind.String()
	Count   int
	Name    string
	Columns []string
	Explain string // plan.Node.Describe(), set only for an EXPLAIN result
}

// TableInfo mirrors a types.Table schema for the GetTable response.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
}

// ColumnInfo mirrors a types.Column.
type ColumnInfo struct {
	Name       string
	DataType   string
	PrimaryKey bool
	Nullable   bool
	Unique     bool
	Indexed    bool
	References string
}

// StatusInfo mirrors mvcc.Status.
type StatusInfo struct {
	StorageName  string
	LastTxnID    uint64
	ActiveTxnIDs []uint64
}

// Response is one server response frame.
type Response struct {
	Kind ResponseKind

	Execute *ExecuteSummary // RespExecute

	Row     types.Row // RespRow
	RowSome bool      // RespRow: whether Row carries a value (Option<Row>)

	Tables []string // RespListTables

	Table *TableInfo // RespTable

	Status *StatusInfo // RespStatus

	ErrMsg string // RespError
}

// WriteFrame gob-encodes v and writes it to w as a 4-byte big-endian length
// prefix followed by the payload.
func WriteFrame(w io.Writer, v any) error {
	payload, err := encodeGob(v)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return errs.Internal("wire: frame of %d bytes exceeds MaxFrameSize", len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.Internal("wire: write frame length: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errs.Internal("wire: write frame payload: %v", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and gob-decodes it into
// v (a pointer to Request or Response).
func ReadFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err // io.EOF on clean close propagates to the caller unwrapped
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return errs.Internal("wire: frame of %d bytes exceeds MaxFrameSize", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errs.Internal("wire: read frame payload: %v", err)
	}
	return decodeGob(payload, v)
}
