/*
Package client is a thin TCP client for kvdb's wire protocol.

It dials a running server, writes one length-prefixed Request frame per
statement, and reads back the matching Response frame(s) — an
ExecuteSummary for every statement, followed for a query by a sequence of
Row frames terminated by one empty frame.

# Usage

	c, err := client.Dial("127.0.0.1:9605")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	result, err := c.Execute("SELECT id, name FROM widgets")
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range result.Rows {
		fmt.Println(row)
	}

# Error Handling

A server-side failure (parse error, constraint violation, storage error)
comes back as a RespError frame, which Execute/GetTable/ListTables/Status
surface as a plain Go error built from the frame's message — there is no
structured error kind on the wire, only text.

# Thread Safety

Client is not safe for concurrent use: one connection serves one
request/response exchange at a time, mirroring the server's per-connection
loop. Concurrent callers should each Dial their own Client.

# See Also

  - pkg/server for the corresponding server-side dispatch
  - pkg/wire for the frame and message types exchanged here
*/
package client
