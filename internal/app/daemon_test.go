package app

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/yacd/internal/dispatch"
	"github.com/dshills/yacd/internal/editorconn"
	"github.com/dshills/yacd/internal/framing"
	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
)

// harness wires an Application to a fake editor (a dialed Unix
// socket) and a fake LSP server (the far ends of pipe-backed
// clients), without running the poll loop: tests push bytes through
// the same read paths the loop uses.
type harness struct {
	t      *testing.T
	app    *Application
	editor *bufio.Reader
	conn   net.Conn
	client *editorconn.Client

	serverIn  *os.File // daemon's writes to the server (its stdin)
	serverOut *os.File // write here to speak as the server
	framer    *framing.Framer
	lsp       *lsp.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "yacd.sock")
	app, err := New(Config{SocketPath: sock, Logger: NullLogger})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = app.listener.Close() })

	h := &harness{t: t, app: app, framer: framing.New()}

	app.registry = lsp.NewRegistry(lsp.DefaultServerTable(), func(entry lsp.ServerEntry, root string) (*lsp.Client, error) {
		stdinR, stdinW, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		stdoutR, stdoutW, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			stdinR.Close()
			stdoutW.Close()
		})
		h.serverIn = stdinR
		h.serverOut = stdoutW
		c := lsp.NewPipeClient(entry, root, stdinW, stdoutR)
		h.lsp = c
		return c, nil
	})
	app.table = dispatch.NewTable(app.registry, app.picker)

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	h.conn = conn
	h.editor = bufio.NewReader(conn)

	client, err := app.listener.Accept()
	if err != nil {
		t.Fatal(err)
	}
	app.clients[client.ID] = client
	h.client = client

	return h
}

// send dispatches one editor frame as the event loop would.
func (h *harness) send(vimReqID int64, method string, params map[string]any) {
	raw, _ := json.Marshal(params)
	h.app.handleEditorFrame(h.client, editorconn.Frame{
		RequestID: vimReqID,
		Method:    method,
		Params:    jsonrpc.Parse(raw),
	})
}

// serverSees returns the next batch of messages the daemon wrote to
// the LSP server.
func (h *harness) serverSees() []map[string]any {
	buf := make([]byte, 1<<16)
	n, err := h.serverIn.Read(buf)
	if err != nil {
		h.t.Fatalf("read server stdin: %v", err)
	}
	bodies, err := h.framer.Feed(buf[:n])
	if err != nil {
		h.t.Fatal(err)
	}
	out := make([]map[string]any, 0, len(bodies))
	for _, b := range bodies {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			h.t.Fatal(err)
		}
		out = append(out, m)
	}
	return out
}

// serverSays pushes one message from the server through the daemon's
// LSP read path.
func (h *harness) serverSays(msg map[string]any) {
	raw, _ := json.Marshal(msg)
	if _, err := h.serverOut.Write(framing.Encode(raw)); err != nil {
		h.t.Fatal(err)
	}
	h.app.readLspClient(h.lsp, false)
}

// editorLine reads one frame the daemon sent to the editor.
func (h *harness) editorLine() []any {
	_ = h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := h.editor.ReadString('\n')
	if err != nil {
		h.t.Fatalf("read editor frame: %v", err)
	}
	var frame []any
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		h.t.Fatalf("bad editor frame %q: %v", line, err)
	}
	return frame
}

func (h *harness) completeHandshake() {
	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": 1,
		"result": map[string]any{"capabilities": map[string]any{}},
	})
}

// Scenario: single goto. The daemon spawns the server, handshakes,
// replays the deferred request, and the editor gets the transformed
// location.
func TestSingleGoto(t *testing.T) {
	h := newHarness(t)

	h.send(7, "goto_definition", map[string]any{"file": "/p/a.rs", "line": 3, "column": 2})

	msgs := h.serverSees()
	if len(msgs) != 1 || msgs[0]["method"] != "initialize" {
		t.Fatalf("server saw %v", msgs)
	}

	h.completeHandshake()

	msgs = h.serverSees()
	if len(msgs) != 2 || msgs[0]["method"] != "initialized" || msgs[1]["method"] != "textDocument/definition" {
		t.Fatalf("after handshake server saw %v", msgs)
	}
	defID := int64(msgs[1]["id"].(float64))

	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": defID,
		"result": []map[string]any{{
			"uri": "file:///p/a.rs",
			"range": map[string]any{
				"start": map[string]any{"line": 10, "character": 4},
				"end":   map[string]any{"line": 10, "character": 9},
			},
		}},
	})

	frame := h.editorLine()
	if frame[0].(float64) != 7 {
		t.Fatalf("frame = %v", frame)
	}
	loc := frame[1].(map[string]any)
	if loc["file"] != "/p/a.rs" || loc["line"].(float64) != 10 || loc["column"].(float64) != 4 {
		t.Fatalf("location = %v", loc)
	}

	if len(h.app.pendingLSP) != 0 || len(h.app.pendingEditor) != 0 {
		t.Fatal("correlation maps not drained")
	}
}

// Scenario: open-before-ready. Two opens queue while initializing;
// the server sees initialized then both didOpens in order.
func TestOpenBeforeReady(t *testing.T) {
	h := newHarness(t)

	h.send(1, "file_open", map[string]any{"file": "/p/a.rs", "text": "one"})
	h.send(2, "file_open", map[string]any{"file": "/p/b.rs", "text": "two"})

	for _, want := range []float64{1, 2} {
		frame := h.editorLine()
		if frame[0].(float64) != want || frame[1].(map[string]any)["action"] != "none" {
			t.Fatalf("frame = %v", frame)
		}
	}

	msgs := h.serverSees()
	if len(msgs) != 1 || msgs[0]["method"] != "initialize" {
		t.Fatalf("server saw %v", msgs)
	}

	h.completeHandshake()

	msgs = h.serverSees()
	if len(msgs) != 3 {
		t.Fatalf("server saw %d messages: %v", len(msgs), msgs)
	}
	if msgs[0]["method"] != "initialized" {
		t.Fatalf("first = %v", msgs[0])
	}
	for i, wantText := range []string{"one", "two"} {
		m := msgs[i+1]
		if m["method"] != "textDocument/didOpen" {
			t.Fatalf("message %d = %v", i+1, m)
		}
		doc := m["params"].(map[string]any)["textDocument"].(map[string]any)
		if doc["text"] != wantText {
			t.Fatalf("didOpen %d text = %v, want %s", i+1, doc["text"], wantText)
		}
	}
}

// Scenario: progress toasts. begin/report/end produce three ex
// frames and leave the title map empty.
func TestProgressToasts(t *testing.T) {
	h := newHarness(t)

	// Spawn a server so there is an LSP client to emit progress.
	h.send(1, "file_open", map[string]any{"file": "/p/a.rs", "text": ""})
	h.editorLine() // {action:"none"}
	h.serverSees() // initialize

	notify := func(value map[string]any) {
		h.serverSays(map[string]any{
			"jsonrpc": "2.0", "method": "$/progress",
			"params": map[string]any{"token": "T", "value": value},
		})
	}

	notify(map[string]any{"kind": "begin", "title": "Indexing"})
	notify(map[string]any{"kind": "report", "percentage": 42})
	notify(map[string]any{"kind": "end", "message": "done"})

	wantContains := []string{"[yac] Indexing", "[yac] Indexing (42%)", "[yac] Indexing: done"}
	for _, want := range wantContains {
		frame := h.editorLine()
		if frame[0] != "ex" {
			t.Fatalf("frame = %v", frame)
		}
		script := frame[1].(string)
		if !strings.Contains(script, want) {
			t.Fatalf("script %q does not carry %q", script, want)
		}
	}
}

// Scenario: server crash. A pending completion resolves to null, the
// editor gets a crash toast, and the pool entry is gone.
func TestServerCrash(t *testing.T) {
	h := newHarness(t)

	h.send(1, "completion", map[string]any{"file": "/p/a.rs", "line": 0, "column": 0})
	h.serverSees()
	h.completeHandshake()
	h.serverSees() // initialized + completion

	// Server dies: its stdout reaches EOF.
	h.serverOut.Close()
	h.app.readLspClient(h.lsp, true)

	frame := h.editorLine()
	if frame[0] != "ex" || !strings.Contains(frame[1].(string), "rust-analyzer crashed") {
		t.Fatalf("expected crash toast, got %v", frame)
	}

	frame = h.editorLine()
	if frame[0].(float64) != 1 || frame[1] != nil {
		t.Fatalf("expected [1, null], got %v", frame)
	}

	if len(h.app.pendingLSP) != 0 {
		t.Fatal("pending map not drained on crash")
	}
	if len(h.app.registry.Clients()) != 0 {
		t.Fatal("dead client still pooled")
	}
}

// A disconnected editor's pending response is dropped silently when
// the LSP response arrives later.
func TestDisconnectDropsPendingResult(t *testing.T) {
	h := newHarness(t)

	h.send(5, "hover", map[string]any{"file": "/p/a.rs", "line": 0, "column": 0})
	h.serverSees()
	h.completeHandshake()
	msgs := h.serverSees()
	hoverID := int64(msgs[1]["id"].(float64))

	h.app.dropEditorClient(h.client)
	if len(h.app.pendingEditor) != 0 {
		t.Fatal("pendingEditor should be cleared on disconnect")
	}

	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": hoverID,
		"result": map[string]any{"contents": "docs"},
	})

	if len(h.app.pendingLSP) != 0 {
		t.Fatal("pendingLSP entry should be consumed even with no editor")
	}
}

// workspace/applyEdit is forwarded to the editor and acknowledged
// with applied=true.
func TestApplyEditServerRequest(t *testing.T) {
	h := newHarness(t)

	h.send(1, "file_open", map[string]any{"file": "/p/a.rs", "text": ""})
	h.editorLine()
	h.serverSees()

	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": 42, "method": "workspace/applyEdit",
		"params": map[string]any{
			"edit": map[string]any{"changes": map[string]any{}},
		},
	})

	frame := h.editorLine()
	if frame[0] != "call" || frame[1] != "yac#apply_edit" {
		t.Fatalf("frame = %v", frame)
	}

	msgs := h.serverSees()
	if len(msgs) != 1 {
		t.Fatalf("server saw %v", msgs)
	}
	if msgs[0]["id"].(float64) != 42 || msgs[0]["result"].(map[string]any)["applied"] != true {
		t.Fatalf("ack = %v", msgs[0])
	}
}

// A workspace/applyEdit with no edit object is rejected with
// applied=false and a failure reason, and nothing reaches the editor.
func TestApplyEditWithoutEditRejected(t *testing.T) {
	h := newHarness(t)

	h.send(1, "file_open", map[string]any{"file": "/p/a.rs", "text": ""})
	h.editorLine()
	h.serverSees()

	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": 43, "method": "workspace/applyEdit",
		"params": map[string]any{"label": "broken"},
	})

	msgs := h.serverSees()
	if len(msgs) != 1 || msgs[0]["id"].(float64) != 43 {
		t.Fatalf("server saw %v", msgs)
	}
	ack := msgs[0]["result"].(map[string]any)
	reason, _ := ack["failureReason"].(string)
	if ack["applied"] != false || reason == "" {
		t.Fatalf("ack = %v, want applied=false with failureReason", ack)
	}

	// The next editor frame is the progress toast below, proving no
	// apply_edit call frame was emitted for the rejected request.
	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "method": "$/progress",
		"params": map[string]any{
			"token": "T",
			"value": map[string]any{"kind": "begin", "title": "Indexing"},
		},
	})
	frame := h.editorLine()
	if frame[0] != "ex" || !strings.Contains(frame[1].(string), "Indexing") {
		t.Fatalf("expected progress toast next, got %v", frame)
	}
}

// An LSP error response surfaces as a toast plus a null result.
func TestLspErrorResponse(t *testing.T) {
	h := newHarness(t)

	h.send(9, "rename", map[string]any{"file": "/p/a.rs", "line": 0, "column": 0, "new_name": "x"})
	h.serverSees()
	h.completeHandshake()
	msgs := h.serverSees()
	renameID := int64(msgs[1]["id"].(float64))

	h.serverSays(map[string]any{
		"jsonrpc": "2.0", "id": renameID,
		"error": map[string]any{"code": -32602, "message": "cannot rename"},
	})

	frame := h.editorLine()
	if frame[0] != "ex" || !strings.Contains(frame[1].(string), "cannot rename") {
		t.Fatalf("expected error toast, got %v", frame)
	}
	frame = h.editorLine()
	if frame[0].(float64) != 9 || frame[1] != nil {
		t.Fatalf("expected [9, null], got %v", frame)
	}
}
