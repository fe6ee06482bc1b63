package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/dshills/yacd/internal/framing"
	"github.com/dshills/yacd/internal/jsonrpc"
)

// ClientState is the lifecycle state of a spawned LSP client.
type ClientState int

const (
	ClientUninitialized ClientState = iota
	ClientInitializing
	ClientInitialized
	ClientShuttingDown
	ClientShutdown
)

func (s ClientState) String() string {
	switch s {
	case ClientUninitialized:
		return "uninitialized"
	case ClientInitializing:
		return "initializing"
	case ClientInitialized:
		return "initialized"
	case ClientShuttingDown:
		return "shutting down"
	case ClientShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// PendingRequest is what the client remembers about a request it has
// sent, so it can interpret the eventual response.
type PendingRequest struct {
	Method string
}

// InboundKind classifies a decoded LSP message.
type InboundKind int

const (
	InboundResponse InboundKind = iota
	InboundNotification
	InboundServerRequest
)

// Inbound is a single decoded message read from an LSP client's
// stdout, already classified so the event loop need not re-probe it.
type Inbound struct {
	Kind   InboundKind
	ID     int64 // Response, ServerRequest
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Err    *RPCError
}

// Client owns one spawned LSP server process: its pipes, the
// incremental message framer over its stdout, its lifecycle state,
// and the table of requests it is waiting on a response for. It never
// blocks on I/O: writes are synchronous syscalls against a pipe the
// child is expected to drain, and reads are driven by the reactor
// feeding bytes in as they arrive.
//
// Invariant: a client not in ClientShutdown always has its child
// alive and its stdin writable.
type Client struct {
	Entry         ServerEntry
	WorkspaceRoot string

	cmd        *exec.Cmd
	stdin      *os.File
	stdout     *os.File
	stderrDone chan struct{}

	framer *framing.Framer
	nextID atomic.Int64

	state        ClientState
	pending      map[int64]PendingRequest
	capabilities ServerCapabilities
}

// Spawn starts the server process for entry rooted at workspaceRoot.
// It does not send `initialize`; callers do that via SendRequest once
// the client is registered with the event loop's poll set.
func Spawn(entry ServerEntry, workspaceRoot string) (*Client, error) {
	cmd := exec.Command(entry.Command, entry.Args...)
	cmd.Dir = workspaceRoot

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdinPipe.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdinPipe.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	stdin, ok := stdinPipe.(*os.File)
	if !ok {
		stdinPipe.Close()
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("stdin pipe is not a file descriptor")
	}
	stdout, ok := stdoutPipe.(*os.File)
	if !ok {
		stdinPipe.Close()
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("stdout pipe is not a file descriptor")
	}

	if err := cmd.Start(); err != nil {
		stdinPipe.Close()
		stdoutPipe.Close()
		stderrPipe.Close()
		return nil, fmt.Errorf("start %s: %w", entry.Command, err)
	}

	c := &Client{
		Entry:         entry,
		WorkspaceRoot: workspaceRoot,
		cmd:           cmd,
		stdin:         stdin,
		stdout:        stdout,
		stderrDone:    make(chan struct{}),
		framer:        framing.New(),
		pending:       make(map[int64]PendingRequest),
		state:         ClientUninitialized,
	}

	go c.drainStderr(stderrPipe)

	return c, nil
}

// NewPipeClient builds a client over caller-supplied pipes instead of
// a spawned child, for registry spawn-function substitutes (in-process
// fakes and test harnesses).
func NewPipeClient(entry ServerEntry, workspaceRoot string, stdin, stdout *os.File) *Client {
	return &Client{
		Entry:         entry,
		WorkspaceRoot: workspaceRoot,
		stdin:         stdin,
		stdout:        stdout,
		stderrDone:    make(chan struct{}),
		framer:        framing.New(),
		pending:       make(map[int64]PendingRequest),
		state:         ClientUninitialized,
	}
}

// drainStderr logs the child's stderr at debug level. This is the one
// goroutine a client owns; it only touches a log sink, never protocol
// state, so it does not reintroduce the concurrency the reactor is
// built to avoid.
func (c *Client) drainStderr(stderr interface{ Read([]byte) (int, error) }) {
	defer close(c.stderrDone)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		debugLogStderr(c.Entry.LanguageID, scanner.Text())
	}
}

// debugLogStderr is overridden in tests; production wiring points it
// at the daemon logger via SetStderrLogger.
var debugLogStderr = func(languageID, line string) {}

// SetStderrLogger routes every client's child stderr lines to fn.
// Called once at daemon startup, before any client spawns.
func SetStderrLogger(fn func(languageID, line string)) {
	if fn != nil {
		debugLogStderr = fn
	}
}

// Key identifies this client's (language, workspace root) pairing as
// a string, for maps that outlive the client pointer (deferred
// requests, progress streams).
func (c *Client) Key() string {
	return c.Entry.LanguageID + "\x00" + c.WorkspaceRoot
}

// StdoutFd returns the file descriptor to register with the reactor's
// poll set.
func (c *Client) StdoutFd() uintptr {
	return c.stdout.Fd()
}

// State returns the client's current lifecycle state.
func (c *Client) State() ClientState {
	return c.state
}

// SetState transitions the client's lifecycle state.
func (c *Client) SetState(s ClientState) {
	c.state = s
}

// Capabilities returns the capabilities reported by `initialize`.
func (c *Client) Capabilities() ServerCapabilities {
	return c.capabilities
}

// SetCapabilities records the capabilities from an `initialize`
// response.
func (c *Client) SetCapabilities(caps ServerCapabilities) {
	c.capabilities = caps
}

// SendRequest writes a JSON-RPC request to the child's stdin and
// records it as pending, returning the assigned id. It does not wait
// for a response: the reactor will deliver it later via Feed.
func (c *Client) SendRequest(method string, params any) (int64, error) {
	if c.state == ClientShutdown {
		return 0, ErrShutdown
	}

	id := c.nextID.Add(1)
	if err := c.write(jsonrpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return 0, err
	}

	c.pending[id] = PendingRequest{Method: method}
	return id, nil
}

// SendNotification writes a JSON-RPC notification (no response
// expected).
func (c *Client) SendNotification(method string, params any) error {
	if c.state == ClientShutdown {
		return ErrShutdown
	}
	return c.write(jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: params})
}

// RespondToServerRequest answers a server-to-client request (e.g.
// `workspace/applyEdit`) with a result.
func (c *Client) RespondToServerRequest(id int64, result any) error {
	return c.write(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Result  any    `json:"result"`
	}{JSONRPC: "2.0", ID: id, Result: result})
}

func (c *Client) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = c.stdin.Write(framing.Encode(data))
	return err
}

// Read reads available bytes from the child's stdout. Callers only
// call this after the reactor reports the fd readable.
func (c *Client) Read(buf []byte) (int, error) {
	return c.stdout.Read(buf)
}

// Feed processes newly read bytes from the client's stdout, returning
// every complete message decoded and classified.
func (c *Client) Feed(data []byte) ([]Inbound, error) {
	bodies, err := c.framer.Feed(data)
	if err != nil {
		return nil, err
	}

	out := make([]Inbound, 0, len(bodies))
	for _, body := range bodies {
		var probe struct {
			ID     *int64          `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *RPCError       `json:"error"`
		}
		if err := json.Unmarshal(body, &probe); err != nil {
			continue
		}

		switch {
		case probe.Method != "" && probe.ID != nil:
			out = append(out, Inbound{Kind: InboundServerRequest, ID: *probe.ID, Method: probe.Method, Params: rawParams(body)})
		case probe.Method != "":
			out = append(out, Inbound{Kind: InboundNotification, Method: probe.Method, Params: rawParams(body)})
		case probe.ID != nil:
			out = append(out, Inbound{Kind: InboundResponse, ID: *probe.ID, Result: probe.Result, Err: probe.Error})
		}
	}
	return out, nil
}

func rawParams(body []byte) json.RawMessage {
	var holder struct {
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &holder); err != nil {
		return nil
	}
	return holder.Params
}

// TakePending removes and returns the pending request recorded for
// id, if any.
func (c *Client) TakePending(id int64) (PendingRequest, bool) {
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return req, ok
}

// PendingIDs returns the ids of every request still awaiting a
// response, for cancelling them when the client dies.
func (c *Client) PendingIDs() []int64 {
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown sends the `shutdown`/`exit` sequence and kills the process.
// It does not wait for the process to exit; the reactor observes exit
// via a closed stdout fd.
func (c *Client) Shutdown() error {
	if c.state == ClientShutdown {
		return nil
	}
	c.state = ClientShuttingDown

	_, _ = c.SendRequest("shutdown", nil)
	_ = c.SendNotification("exit", nil)

	c.state = ClientShutdown
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.stdin.Close()
	c.stdout.Close()
	return nil
}

// Kill terminates the process immediately, for use when the client's
// stdout fd reports EOF/hup and it must be dropped from the registry.
func (c *Client) Kill() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.stdin.Close()
	c.stdout.Close()
}
