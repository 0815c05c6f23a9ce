package server

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/kvdb/pkg/kv"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/wire"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	mv := mvcc.New(kv.NewMemoryStore(), "test")
	srv := New(mv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(addr) }()
	// Give the listener a moment to bind.
	for i := 0; i < 100; i++ {
		if c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond); err == nil {
			c.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() {
		srv.Close()
		<-errCh
	})
	return srv, addr
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerExecuteCreateTable(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	req := wire.Request{Kind: wire.ReqExecute, SQL: "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name STRING)"}
	if err := wire.WriteFrame(conn, req); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var resp wire.Response
	if err := wire.ReadFrame(conn, &resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Kind != wire.RespExecute {
		t.Fatalf("unexpected response kind: %+v", resp)
	}
	if resp.Execute == nil || resp.Execute.Kind != "create_table" {
		t.Fatalf("unexpected execute summary: %+v", resp.Execute)
	}
}

func TestServerExecuteQueryStreamsRowsThenEndsStream(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	run := func(sql string) wire.Response {
		if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqExecute, SQL: sql}); err != nil {
			t.Fatalf("write request %q: %v", sql, err)
		}
		var resp wire.Response
		if err := wire.ReadFrame(conn, &resp); err != nil {
			t.Fatalf("read response for %q: %v", sql, err)
		}
		return resp
	}

	run("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name STRING)")
	run("INSERT INTO widgets (id, name) VALUES (1, 'gear')")

	resp := run("SELECT id, name FROM widgets")
	if resp.Kind != wire.RespExecute || resp.Execute.Kind != "query" {
		t.Fatalf("unexpected query summary: %+v", resp)
	}

	var rows int
	for {
		var rowResp wire.Response
		if err := wire.ReadFrame(conn, &rowResp); err != nil {
			t.Fatalf("read row frame: %v", err)
		}
		if rowResp.Kind != wire.RespRow {
			t.Fatalf("unexpected row frame kind: %+v", rowResp)
		}
		if !rowResp.RowSome {
			break
		}
		rows++
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
}

func TestServerListAndGetTable(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqExecute, SQL: "CREATE TABLE widgets (id INTEGER PRIMARY KEY)"}); err != nil {
		t.Fatalf("write create: %v", err)
	}
	var createResp wire.Response
	if err := wire.ReadFrame(conn, &createResp); err != nil {
		t.Fatalf("read create response: %v", err)
	}

	if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqListTables}); err != nil {
		t.Fatalf("write list: %v", err)
	}
	var listResp wire.Response
	if err := wire.ReadFrame(conn, &listResp); err != nil {
		t.Fatalf("read list response: %v", err)
	}
	if listResp.Kind != wire.RespListTables || len(listResp.Tables) != 1 || listResp.Tables[0] != "widgets" {
		t.Fatalf("unexpected list response: %+v", listResp)
	}

	if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqGetTable, Table: "widgets"}); err != nil {
		t.Fatalf("write get table: %v", err)
	}
	var tableResp wire.Response
	if err := wire.ReadFrame(conn, &tableResp); err != nil {
		t.Fatalf("read table response: %v", err)
	}
	if tableResp.Kind != wire.RespTable || tableResp.Table == nil || tableResp.Table.Name != "widgets" {
		t.Fatalf("unexpected table response: %+v", tableResp)
	}
}

func TestServerGetUnknownTableReturnsError(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqGetTable, Table: "missing"}); err != nil {
		t.Fatalf("write get table: %v", err)
	}
	var resp wire.Response
	if err := wire.ReadFrame(conn, &resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Kind != wire.RespError || resp.ErrMsg == "" {
		t.Fatalf("expected an error response, got %+v", resp)
	}
}

func TestServerStatus(t *testing.T) {
	_, addr := startTestServer(t)
	conn := dial(t, addr)

	if err := wire.WriteFrame(conn, wire.Request{Kind: wire.ReqStatus}); err != nil {
		t.Fatalf("write status: %v", err)
	}
	var resp wire.Response
	if err := wire.ReadFrame(conn, &resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Kind != wire.RespStatus || resp.Status == nil || resp.Status.StorageName != "test" {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}
