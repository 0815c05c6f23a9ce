package client

import (
	"errors"
	"net"

	"github.com/cuemby/kvdb/pkg/sql/types"
	"github.com/cuemby/kvdb/pkg/wire"
)

// Client holds one connection to a server and speaks one request at a
// time over it — kvdb has no pipelining, matching the server's
// read-request/write-response loop per connection.
type Client struct {
	conn net.Conn
}

// Dial connects to a server listening at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ExecuteResult is one statement's outcome: the summary returned alongside
// every result kind, plus the rows of a query result (already drained).
type ExecuteResult struct {
	Summary *wire.ExecuteSummary
	Rows    []types.Row
}

// Execute sends sql, reads its ExecuteSummary, and — for a query — drains
// every row frame until the terminating empty frame.
func (c *Client) Execute(sql string) (*ExecuteResult, error) {
	if err := wire.WriteFrame(c.conn, wire.Request{Kind: wire.ReqExecute, SQL: sql}); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind != wire.RespExecute {
		return nil, errUnexpectedKind
	}
	result := &ExecuteResult{Summary: resp.Execute}
	if resp.Execute.Kind != "query" {
		return result, nil
	}
	for {
		row, err := c.readRowFrame()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return result, nil
		}
		result.Rows = append(result.Rows, row)
	}
}

// GetTable fetches one table's schema.
func (c *Client) GetTable(name string) (*wire.TableInfo, error) {
	if err := wire.WriteFrame(c.conn, wire.Request{Kind: wire.ReqGetTable, Table: name}); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind != wire.RespTable {
		return nil, errUnexpectedKind
	}
	return resp.Table, nil
}

// ListTables fetches every table name in the catalog.
func (c *Client) ListTables() ([]string, error) {
	if err := wire.WriteFrame(c.conn, wire.Request{Kind: wire.ReqListTables}); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind != wire.RespListTables {
		return nil, errUnexpectedKind
	}
	return resp.Tables, nil
}

// Status fetches the server's storage status.
func (c *Client) Status() (*wire.StatusInfo, error) {
	if err := wire.WriteFrame(c.conn, wire.Request{Kind: wire.ReqStatus}); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind != wire.RespStatus {
		return nil, errUnexpectedKind
	}
	return resp.Status, nil
}

var errUnexpectedKind = errors.New("client: unexpected response kind from server")

// readResponse reads one frame, surfacing a RespError frame as a Go error.
func (c *Client) readResponse() (*wire.Response, error) {
	var resp wire.Response
	if err := wire.ReadFrame(c.conn, &resp); err != nil {
		return nil, err
	}
	if resp.Kind == wire.RespError {
		return nil, errors.New(resp.ErrMsg)
	}
	return &resp, nil
}

// readRowFrame reads one RespRow frame, returning (nil, nil) once the
// stream's terminating frame (RowSome false) arrives.
func (c *Client) readRowFrame() (types.Row, error) {
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind != wire.RespRow {
		return nil, errUnexpectedKind
	}
	if !resp.RowSome {
		return nil, nil
	}
	return resp.Row, nil
}
