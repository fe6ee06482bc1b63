package dispatch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/yacd/internal/framing"
	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
	"github.com/dshills/yacd/internal/picker"
)

// fakeServer is the far side of a pipe-backed lsp.Client: it reads
// framed messages the table wrote to the client's stdin.
type fakeServer struct {
	t      *testing.T
	read   *os.File
	framer *framing.Framer
}

func (s *fakeServer) messages() []map[string]any {
	buf := make([]byte, 1<<16)
	n, err := s.read.Read(buf)
	if err != nil {
		s.t.Fatalf("read server pipe: %v", err)
	}
	bodies, err := s.framer.Feed(buf[:n])
	if err != nil {
		s.t.Fatalf("frame: %v", err)
	}
	out := make([]map[string]any, 0, len(bodies))
	for _, b := range bodies {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			s.t.Fatalf("unmarshal %q: %v", b, err)
		}
		out = append(out, m)
	}
	return out
}

type fakePicker struct {
	opened   string
	recent   []string
	closed   bool
	queryRes []picker.Item
}

func (p *fakePicker) Open(cwd string, recent []string) []picker.Item {
	p.opened = cwd
	p.recent = recent
	items := make([]picker.Item, 0, len(recent))
	for _, r := range recent {
		items = append(items, picker.Item{Label: r, File: r})
	}
	return items
}

func (p *fakePicker) QueryFiles(string) []picker.Item { return p.queryRes }
func (p *fakePicker) Close()                          { p.closed = true }

// newTestTable builds a table whose registry "spawns" pipe clients.
func newTestTable(t *testing.T) (*Table, *fakeServer, *fakePicker) {
	t.Helper()

	server := &fakeServer{t: t}
	reg := lsp.NewRegistry(lsp.DefaultServerTable(), func(entry lsp.ServerEntry, root string) (*lsp.Client, error) {
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
			stdoutR.Close()
			stdoutW.Close()
		})
		server.read = stdinR
		server.framer = framing.New()
		return lsp.NewPipeClient(entry, root, stdinW, stdoutR), nil
	})

	pick := &fakePicker{}
	table := NewTable(reg, pick)
	return table, server, pick
}

func request(method string, params map[string]any) Request {
	raw, _ := json.Marshal(params)
	return Request{ClientID: 1, RequestID: 7, Method: method, Params: jsonrpc.Parse(raw)}
}

func TestDispatchUnknownMethod(t *testing.T) {
	table, _, _ := newTestTable(t)
	res := table.Dispatch(request("no_such_method", nil))
	if res.Kind != KindEmpty {
		t.Fatalf("kind = %v, want empty", res.Kind)
	}
}

func TestDispatchUnknownExtension(t *testing.T) {
	table, _, _ := newTestTable(t)
	res := table.Dispatch(request("goto_definition", map[string]any{
		"file": "/p/readme.xyz", "line": 1, "column": 0,
	}))
	if res.Kind != KindEmpty {
		t.Fatalf("kind = %v, want empty", res.Kind)
	}
}

func TestFirstRequestInitializesThenDefers(t *testing.T) {
	table, _, _ := newTestTable(t)

	res := table.Dispatch(request("goto_definition", map[string]any{
		"file": "/p/a.rs", "line": 3, "column": 2,
	}))
	if res.Kind != KindInitializing {
		t.Fatalf("kind = %v, want initializing", res.Kind)
	}
	if res.Entry.LanguageID != "rust" {
		t.Fatalf("entry = %+v", res.Entry)
	}
}

func TestInitializeSentExactlyOnce(t *testing.T) {
	table, server, _ := newTestTable(t)

	params := map[string]any{"file": "/p/a.rs", "line": 3, "column": 2}
	table.Dispatch(request("goto_definition", params))
	table.Dispatch(request("goto_definition", params))

	msgs := server.messages()
	if len(msgs) != 1 || msgs[0]["method"] != "initialize" {
		t.Fatalf("server saw %v, want one initialize", msgs)
	}
	init := msgs[0]["params"].(map[string]any)
	if init["clientInfo"].(map[string]any)["name"] != "yacd" {
		t.Fatalf("clientInfo missing: %v", init)
	}
}

func TestRequestAfterReadyIsPending(t *testing.T) {
	table, server, _ := newTestTable(t)

	params := map[string]any{"file": "/p/a.rs", "line": 3, "column": 2}
	table.Dispatch(request("goto_definition", params))
	server.messages() // drain initialize

	client, _, _ := table.registry.GetOrCreate(
		lsp.ServerEntry{LanguageID: "rust"}, lsp.WorkspaceRoot("/p", lsp.ServerEntry{}))
	if err := lsp.FinishInitialize(client, lsp.ServerCapabilities{}); err != nil {
		t.Fatal(err)
	}
	server.messages() // drain initialized

	res := table.Dispatch(request("goto_definition", params))
	if res.Kind != KindPendingLSP {
		t.Fatalf("kind = %v, want pending", res.Kind)
	}
	if res.Client != client || res.LSPID == 0 {
		t.Fatalf("bad correlation: %+v", res)
	}

	msgs := server.messages()
	if len(msgs) != 1 || msgs[0]["method"] != "textDocument/definition" {
		t.Fatalf("server saw %v", msgs)
	}
	pos := msgs[0]["params"].(map[string]any)["position"].(map[string]any)
	if pos["line"].(float64) != 3 || pos["character"].(float64) != 2 {
		t.Fatalf("position = %v", pos)
	}
}

func TestFileOpenQueuesWhileInitializing(t *testing.T) {
	table, server, _ := newTestTable(t)

	res := table.Dispatch(request("file_open", map[string]any{
		"file": "/p/a.rs", "text": "fn main() {}",
	}))
	if res.Kind != KindData {
		t.Fatalf("kind = %v, want data", res.Kind)
	}
	var action struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(res.Data, &action); err != nil || action.Action != "none" {
		t.Fatalf("data = %s", res.Data)
	}

	// Only initialize went out; didOpen was queued.
	msgs := server.messages()
	if len(msgs) != 1 || msgs[0]["method"] != "initialize" {
		t.Fatalf("server saw %v", msgs)
	}

	entry, _ := table.registry.EntryForPath("/p/a.rs")
	opens := table.registry.DrainOpens(entry, lsp.WorkspaceRoot("/p", entry))
	if len(opens) != 1 || opens[0].Text != "fn main() {}" {
		t.Fatalf("queued opens = %+v", opens)
	}
}

func TestFileOpenReadsDiskWhenNoText(t *testing.T) {
	table, _, _ := newTestTable(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "main.rs")
	if err := os.WriteFile(path, []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	table.Dispatch(request("file_open", map[string]any{"file": path}))

	entry, _ := table.registry.EntryForPath(path)
	opens := table.registry.DrainOpens(entry, lsp.WorkspaceRoot(dir, entry))
	if len(opens) != 1 || opens[0].Text != "fn main() {}\n" {
		t.Fatalf("queued opens = %+v", opens)
	}
}

func TestDidChangeUpdatesQueuedOpen(t *testing.T) {
	table, _, _ := newTestTable(t)

	table.Dispatch(request("file_open", map[string]any{"file": "/p/a.rs", "text": "v1"}))
	res := table.Dispatch(request("did_change", map[string]any{"file": "/p/a.rs", "text": "v2"}))
	if res.Kind != KindNone {
		t.Fatalf("kind = %v, want none", res.Kind)
	}

	entry, _ := table.registry.EntryForPath("/p/a.rs")
	opens := table.registry.DrainOpens(entry, lsp.WorkspaceRoot("/p", entry))
	if len(opens) != 1 || opens[0].Text != "v2" {
		t.Fatalf("queued opens = %+v", opens)
	}
}

func TestSpawnFailureToastsOnce(t *testing.T) {
	reg := lsp.NewRegistry(lsp.DefaultServerTable(), func(lsp.ServerEntry, string) (*lsp.Client, error) {
		return nil, errors.New("no binary")
	})
	table := NewTable(reg, &fakePicker{})

	params := map[string]any{"file": "/p/a.rs", "line": 0, "column": 0}

	res := table.Dispatch(request("goto_definition", params))
	if res.Kind != KindEmpty || res.Toast == "" {
		t.Fatalf("first failure: %+v", res)
	}

	res = table.Dispatch(request("goto_definition", params))
	if res.Kind != KindEmpty || res.Toast != "" {
		t.Fatalf("second failure should be silent: %+v", res)
	}
}

func TestPickerOpenReturnsRecent(t *testing.T) {
	table, _, pick := newTestTable(t)

	res := table.Dispatch(request("picker_open", map[string]any{
		"cwd": "/p", "recent_files": []string{"/p/x.rs"},
	}))
	if res.Kind != KindData {
		t.Fatalf("kind = %v", res.Kind)
	}
	if pick.opened != "/p" {
		t.Fatalf("picker opened at %q", pick.opened)
	}

	var payload struct {
		Items []picker.Item `json:"items"`
		Mode  string        `json:"mode"`
	}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Mode != "file" || len(payload.Items) != 1 || payload.Items[0].File != "/p/x.rs" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPickerQueryFileMode(t *testing.T) {
	table, _, pick := newTestTable(t)
	pick.queryRes = []picker.Item{{Label: "/p/src/lib.rs", File: "/p/src/lib.rs"}}

	res := table.Dispatch(request("picker_query", map[string]any{
		"query": "lib", "mode": "file",
	}))
	if res.Kind != KindData {
		t.Fatalf("kind = %v", res.Kind)
	}
	var payload struct {
		Items []picker.Item `json:"items"`
	}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Items) != 1 || payload.Items[0].File != "/p/src/lib.rs" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPickerCloseStopsIndex(t *testing.T) {
	table, _, pick := newTestTable(t)
	res := table.Dispatch(request("picker_close", nil))
	if res.Kind != KindEmpty || !pick.closed {
		t.Fatalf("kind=%v closed=%v", res.Kind, pick.closed)
	}
}

func TestTsHandlerUnsupportedLanguage(t *testing.T) {
	table, _, _ := newTestTable(t)
	res := table.Dispatch(request("ts_symbols", map[string]any{
		"file": "/p/a.zig", "text": "const x = 1;",
	}))
	if res.Kind != KindEmpty {
		t.Fatalf("kind = %v, want empty", res.Kind)
	}
}

func TestRenameRequiresNewName(t *testing.T) {
	table, _, _ := newTestTable(t)
	res := table.Dispatch(request("rename", map[string]any{
		"file": "/p/a.rs", "line": 0, "column": 0,
	}))
	if res.Kind != KindEmpty {
		t.Fatalf("kind = %v, want empty", res.Kind)
	}
}
