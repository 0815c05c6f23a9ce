// Package server exposes a Session over a plain length-prefixed TCP
// protocol (pkg/wire), one session per connection, for kvsql and any other
// wire client. It deliberately has no TLS/auth layer of its own — this is
// an embedded engine's client port, not a multi-tenant cluster endpoint.
package server

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/kvdb/pkg/log"
	"github.com/cuemby/kvdb/pkg/metrics"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/sql/engine"
	"github.com/cuemby/kvdb/pkg/sql/exec"
	"github.com/cuemby/kvdb/pkg/wire"
)

// Server accepts connections and serves one engine.Session per connection.
type Server struct {
	mv *mvcc.MVCC

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closed   bool
}

// New creates a Server over mv. Nothing is listening until Serve is called.
func New(mv *mvcc.MVCC) *Server {
	return &Server{mv: mv}
}

// Serve accepts connections on addr until the listener is closed by Close,
// spawning one goroutine per connection. It blocks until the listener
// shuts down, returning nil on a clean Close and any other Accept error
// otherwise.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info("server listening on " + addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections. It does not wait for in-flight
// connections; Serve returns only once they have all finished.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	connID := uuid.New().String()
	connLog := log.WithConn(connID)
	session := engine.NewSession(s.mv)

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()
	defer conn.Close()

	connLog.Info().Str("remote", conn.RemoteAddr().String()).Msg("connection opened")

	for {
		var req wire.Request
		if err := wire.ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				connLog.Warn().Err(err).Msg("reading request frame")
			}
			connLog.Info().Msg("connection closed")
			return
		}
		if err := s.dispatch(conn, session, req); err != nil {
			connLog.Warn().Err(err).Msg("writing response frame")
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, session *engine.Session, req wire.Request) error {
	timer := metrics.NewTimer()
	switch req.Kind {
	case wire.ReqExecute:
		err := s.handleExecute(conn, session, req.SQL)
		timer.ObserveDuration(metrics.StatementDuration)
		return err
	case wire.ReqGetTable:
		table, err := session.GetTable(req.Table)
		if err != nil {
			return writeError(conn, err)
		}
		return wire.WriteFrame(conn, wire.Response{Kind: wire.RespTable, Table: wire.TableInfoFrom(table)})
	case wire.ReqListTables:
		names, err := session.ListTables()
		if err != nil {
			return writeError(conn, err)
		}
		return wire.WriteFrame(conn, wire.Response{Kind: wire.RespListTables, Tables: names})
	case wire.ReqStatus:
		st, err := session.Status()
		if err != nil {
			return writeError(conn, err)
		}
		return wire.WriteFrame(conn, wire.Response{Kind: wire.RespStatus, Status: wire.StatusInfoFrom(st)})
	default:
		return writeError(conn, errors.New("unknown request kind"))
	}
}

// handleExecute runs one statement and writes its response. A Query result
// streams one RespRow frame per row, terminated by a RespRow frame with
// RowSome false, or a single RespError frame if the row iterator fails
// mid-stream (the ExecuteSummary frame has already gone out by then, so a
// client must treat a RespError arriving after RespExecute as aborting the
// in-progress row stream rather than the statement itself).
func (s *Server) handleExecute(conn net.Conn, session *engine.Session, sql string) error {
	result, err := session.Execute(sql)
	if err != nil {
		return writeError(conn, err)
	}

	metrics.StatementsTotal.WithLabelValues(result.Kind.String()).Inc()

	if err := wire.WriteFrame(conn, wire.Response{Kind: wire.RespExecute, Execute: wire.ExecuteSummaryFrom(result)}); err != nil {
		return err
	}
	if result.Kind != exec.ResultQuery {
		return nil
	}
	return streamRows(conn, result.Rows)
}

func streamRows(conn net.Conn, rows exec.RowIter) error {
	for {
		row, err := rows.Next()
		if err != nil {
			return writeError(conn, err)
		}
		if row == nil {
			return wire.WriteFrame(conn, wire.Response{Kind: wire.RespRow, RowSome: false})
		}
		if err := wire.WriteFrame(conn, wire.Response{Kind: wire.RespRow, RowSome: true, Row: row}); err != nil {
			return err
		}
	}
}

func writeError(conn net.Conn, err error) error {
	return wire.WriteFrame(conn, wire.Response{Kind: wire.RespError, ErrMsg: err.Error()})
}
