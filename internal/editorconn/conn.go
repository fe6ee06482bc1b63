// Package editorconn implements the daemon side of the editor's
// compact JSON-RPC dialect: line-delimited JSON frames over a Unix
// domain socket. Inbound frames are a two-element array
// [vim_req_id, {method, params}]; outbound frames are one of a
// response, an ex-command, an async call, or an expr (see Encode*).
package editorconn

import (
	"fmt"
	"net"
	"os"

	"github.com/tidwall/sjson"

	"github.com/dshills/yacd/internal/jsonrpc"
)

// ClientID identifies one connected editor socket for the lifetime of
// its connection.
type ClientID int64

// Client is one accepted editor connection: its raw fd for reactor
// registration, a growable read buffer for partial lines, and the
// underlying net.Conn for writes.
type Client struct {
	ID   ClientID
	conn *net.UnixConn
	file *os.File // dup'd for Fd(); reactor registration only
	buf  []byte
}

// Frame is one fully parsed inbound editor request.
type Frame struct {
	RequestID int64 // 0 means "no response expected" (fire-and-forget)
	Method    string
	Params    jsonrpc.Value
}

// Listener accepts editor connections on a Unix domain socket.
type Listener struct {
	ln     *net.UnixListener
	nextID int64
}

// Listen creates the daemon's Unix domain socket at path, removing a
// stale socket file left behind by a prior crashed run.
func Listen(path string) (*Listener, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve socket path: %w", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return &Listener{ln: ln}, nil
}

// Fd returns the listening socket's file descriptor, for reactor
// registration.
func (l *Listener) Fd() (int, error) {
	f, err := l.ln.File()
	if err != nil {
		return 0, err
	}
	return int(f.Fd()), nil
}

// Accept accepts one pending connection, non-blocking: callers only
// call this after the reactor reports the listening fd readable.
func (l *Listener) Accept() (*Client, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, err
	}
	file, err := conn.File()
	if err != nil {
		conn.Close()
		return nil, err
	}

	l.nextID++
	return &Client{ID: ClientID(l.nextID), conn: conn, file: file}, nil
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Fd returns the client's file descriptor for reactor registration.
func (c *Client) Fd() uintptr {
	return c.file.Fd()
}

// Feed appends newly read bytes and returns every complete
// newline-delimited frame, in arrival order. Malformed JSON lines are
// skipped, never fatal: a broken frame must not take the daemon down.
func (c *Client) Feed(data []byte) []Frame {
	c.buf = append(c.buf, data...)

	var frames []Frame
	for {
		idx := indexByte(c.buf, '\n')
		if idx < 0 {
			break
		}
		line := c.buf[:idx]
		c.buf = c.buf[idx+1:]

		if frame, ok := parseLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}

func parseLine(line []byte) (Frame, bool) {
	v := jsonrpc.Parse(line)
	if v.Kind() != jsonrpc.KindArray {
		return Frame{}, false
	}
	elems := v.Array()
	if len(elems) != 2 {
		return Frame{}, false
	}

	body := elems[1]
	method := body.Get("method")
	if method.Kind() != jsonrpc.KindString {
		return Frame{}, false
	}

	return Frame{
		RequestID: elems[0].Int(),
		Method:    method.String(),
		Params:    body.Get("params"),
	}, true
}

// Read reads available bytes from the connection. Callers only call
// this after the reactor reports the client's fd readable, so the
// read does not block.
func (c *Client) Read(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

// Write writes a raw pre-encoded frame line (with trailing newline)
// to the client's connection.
func (c *Client) Write(line []byte) error {
	_, err := c.conn.Write(line)
	return err
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// EncodeResponse builds a `[vim_req_id, value]` frame from raw JSON
// value bytes (or "null").
func EncodeResponse(requestID int64, valueJSON []byte) []byte {
	if len(valueJSON) == 0 {
		valueJSON = []byte("null")
	}
	out, _ := sjson.SetRawBytes([]byte("[]"), "0", []byte(jsonNumber(requestID)))
	out, _ = sjson.SetRawBytes(out, "1", valueJSON)
	return appendNewline(out)
}

// EncodeEx builds a `["ex", "<vimscript>"]` fire-and-forget frame.
func EncodeEx(script string) []byte {
	out, _ := sjson.SetBytes([]byte("[]"), "0", "ex")
	out, _ = sjson.SetBytes(out, "1", script)
	return appendNewline(out)
}

// EncodeCall builds a `["call", "<funcName>", [args...]]` frame.
func EncodeCall(funcName string, argsJSON []byte) []byte {
	out, _ := sjson.SetBytes([]byte("[]"), "0", "call")
	out, _ = sjson.SetBytes(out, "1", funcName)
	if len(argsJSON) == 0 {
		argsJSON = []byte("[]")
	}
	out, _ = sjson.SetRawBytes(out, "2", argsJSON)
	return appendNewline(out)
}

// EncodeExpr builds an `["expr", "<expression>"]` frame.
func EncodeExpr(expr string) []byte {
	out, _ := sjson.SetBytes([]byte("[]"), "0", "expr")
	out, _ = sjson.SetBytes(out, "1", expr)
	return appendNewline(out)
}

func appendNewline(b []byte) []byte {
	return append(b, '\n')
}

func jsonNumber(n int64) string {
	return fmt.Sprintf("%d", n)
}
