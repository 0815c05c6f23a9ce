package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/cuemby/kvdb/pkg/sql/types"
)

func TestWriteReadFrameRoundTripsRequest(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Kind: ReqExecute, SQL: "SELECT 1"}
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got Request
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != ReqExecute || got.SQL != "SELECT 1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestWriteReadFrameRoundTripsRowResponse(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{
		Kind:    RespRow,
		Row:     types.Row{types.NewInteger(7), types.NewString("noir")},
		RowSome: true,
	}
	if err := WriteFrame(&buf, resp); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got Response
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.RowSome || len(got.Row) != 2 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if !got.Row[0].Equal(types.NewInteger(7)) {
		t.Fatalf("unexpected row[0]: %v", got.Row[0])
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	var req Request
	if err := ReadFrame(&buf, &req); err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}

func TestReadFrameOnEmptyStreamReturnsEOF(t *testing.T) {
	var req Request
	err := ReadFrame(&bytes.Buffer{}, &req)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestMultipleFramesOnOneStreamReadInOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Response{Kind: RespRow, RowSome: true, Row: types.Row{types.NewInteger(1)}}); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := WriteFrame(&buf, Response{Kind: RespRow, RowSome: false}); err != nil {
		t.Fatalf("write second: %v", err)
	}

	var first, second Response
	if err := ReadFrame(&buf, &first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if err := ReadFrame(&buf, &second); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !first.RowSome || second.RowSome {
		t.Fatalf("unexpected frame order: first=%+v second=%+v", first, second)
	}
}
