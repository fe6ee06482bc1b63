// Package dispatch routes editor methods to their handlers. The table
// is static: built once at construction, keyed by the editor-facing
// method name, immutable afterwards. Each handler resolves the target
// LSP client (or a local subsystem), does its synchronous part, and
// returns a Result telling the event loop what to do next: reply with
// data, reply null, wait for an LSP response, or park the request
// until a server finishes initializing.
package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/yacd/internal/editorconn"
	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
	"github.com/dshills/yacd/internal/picker"
)

// maxOpenFileBytes bounds how much of a file file_open will read off
// disk when the editor did not send buffer text.
const maxOpenFileBytes = 10 << 20

// Kind discriminates what a handler decided.
type Kind int

const (
	// KindNone means no response frame at all (notifications).
	KindNone Kind = iota
	// KindData carries a payload to encode as the response.
	KindData
	// KindEmpty responds null.
	KindEmpty
	// KindPendingLSP means an LSP request was sent; the response
	// arrives later and must be correlated by LSPID.
	KindPendingLSP
	// KindInitializing means the target server is mid-handshake; the
	// request must be replayed once it is ready.
	KindInitializing
)

// Request is one parsed editor frame as the event loop hands it to
// the table.
type Request struct {
	ClientID  editorconn.ClientID
	RequestID int64
	Method    string
	Params    jsonrpc.Value
}

// Result is what a handler decided, plus everything the event loop
// needs to act on that decision.
type Result struct {
	Kind Kind
	Data json.RawMessage

	// KindPendingLSP: the client the request went to and its id there.
	Client *lsp.Client
	LSPID  int64

	// KindPendingLSP and KindInitializing: which pooled server this
	// request belongs to.
	Entry lsp.ServerEntry
	Root  string

	// Correlation context carried through to the transform step.
	SSHHost string
	File    string
	Mode    string

	// Toast, when non-empty, is shown to the user regardless of Kind.
	Toast      string
	ToastError bool
}

func dataResult(v any) Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return Result{Kind: KindEmpty}
	}
	return Result{Kind: KindData, Data: raw}
}

// Logger is the slice of the daemon logger the table uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Picker is the file-index controller the picker_* handlers drive. It
// is owned by the event loop (the scanner fd lives in the poll set);
// the table only calls through this interface.
type Picker interface {
	Open(cwd string, recent []string) []picker.Item
	QueryFiles(query string) []picker.Item
	Close()
}

// Table is the dispatch table.
type Table struct {
	registry *lsp.Registry
	picker   Picker
	log      Logger
	handlers map[string]func(Request) Result
}

// Option configures the table.
type Option func(*Table)

// WithLogger sets the table's logger.
func WithLogger(log Logger) Option {
	return func(t *Table) { t.log = log }
}

// NewTable builds the dispatch table over a registry and a picker
// controller.
func NewTable(registry *lsp.Registry, pick Picker, opts ...Option) *Table {
	t := &Table{
		registry: registry,
		picker:   pick,
		log:      nopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.registerHandlers()
	return t
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (t *Table) registerHandlers() {
	t.handlers = map[string]func(Request) Result{
		// Document sync.
		"file_open":  t.handleFileOpen,
		"did_change": t.handleDidChange,
		"did_save":   t.handleDidSave,
		"did_close":  t.handleDidClose,
		"will_save":  t.handleWillSave,

		// Position requests.
		"goto_definition":      t.positionRequest("textDocument/definition"),
		"goto_declaration":     t.positionRequest("textDocument/declaration"),
		"goto_type_definition": t.positionRequest("textDocument/typeDefinition"),
		"goto_implementation":  t.positionRequest("textDocument/implementation"),
		"hover":                t.positionRequest("textDocument/hover"),
		"completion":           t.handleCompletion,
		"references":           t.handleReferences,
		"rename":               t.handleRename,
		"code_action":          t.handleCodeAction,
		"call_hierarchy":       t.handleCallHierarchy,

		// Whole-document requests.
		"document_symbols": t.handleDocumentSymbols,
		"folding_range":    t.handleFoldingRange,
		"formatting":       t.handleFormatting,
		"range_formatting": t.handleRangeFormatting,
		"inlay_hints":      t.handleInlayHints,

		// Workspace.
		"execute_command": t.handleExecuteCommand,

		// Picker.
		"picker_open":  t.handlePickerOpen,
		"picker_query": t.handlePickerQuery,
		"picker_close": t.handlePickerClose,

		// Tree-sitter.
		"ts_symbols":     t.handleTsSymbols,
		"ts_folding":     t.handleTsFolding,
		"ts_navigate":    t.handleTsNavigate,
		"ts_textobjects": t.handleTsTextObjects,
		"ts_highlights":  t.handleTsHighlights,
	}
}

// Dispatch routes one request. Unknown methods respond null rather
// than erroring: an older daemon must not break a newer editor.
func (t *Table) Dispatch(req Request) Result {
	h, ok := t.handlers[req.Method]
	if !ok {
		t.log.Debug("unknown method %q", req.Method)
		return Result{Kind: KindEmpty}
	}
	return h(req)
}

// target is a resolved (file → server) binding for one request.
type target struct {
	entry  lsp.ServerEntry
	root   string
	client *lsp.Client
	path   string
	uri    lsp.DocumentURI
	ssh    string
}

// resolve maps the request's file param to a pooled LSP client,
// spawning and initializing one if this is the first request for its
// (language, root). When no client can serve the request, the second
// return value is the Result to send instead and ok is false. A
// client still mid-handshake is returned with ok true; callers check
// its State.
func (t *Table) resolve(req Request) (tgt target, early Result, ok bool) {
	file := req.Params.Get("file").String()
	if file == "" {
		t.log.Debug("%s: missing file param", req.Method)
		return target{}, Result{Kind: KindEmpty}, false
	}

	path, ref := lsp.ParseEditorURI(file)
	tgt.path = path
	tgt.ssh = ref.Host
	tgt.uri = lsp.FilePathToURI(path)

	entry, found := t.registry.EntryForPath(path)
	if !found {
		return target{}, Result{Kind: KindEmpty}, false
	}
	tgt.entry = entry
	tgt.root = lsp.WorkspaceRoot(filepath.Dir(path), entry)

	client, available, freshFailure := t.registry.GetOrCreate(entry, tgt.root)
	if freshFailure {
		t.log.Error("%v", &lsp.ServerError{
			LanguageID: entry.LanguageID,
			Err:        fmt.Errorf("spawn %s failed", entry.Command),
		})
		return target{}, Result{
			Kind:       KindEmpty,
			Toast:      "[yac] failed to start " + entry.Command,
			ToastError: true,
		}, false
	}
	if !available {
		return target{}, Result{Kind: KindEmpty}, false
	}
	tgt.client = client

	if client.State() == lsp.ClientUninitialized {
		if _, err := lsp.Initialize(client, tgt.root); err != nil {
			t.log.Error("initialize %s: %v", entry.Command, err)
			client.Kill()
			t.registry.Drop(entry, tgt.root)
			return target{}, Result{
				Kind:       KindEmpty,
				Toast:      "[yac] failed to start " + entry.Command,
				ToastError: true,
			}, false
		}
	}
	return tgt, Result{}, true
}

// initializing is the deferred result for a not-yet-ready target.
func initializing(tgt target) Result {
	return Result{Kind: KindInitializing, Entry: tgt.entry, Root: tgt.root}
}

// pending wraps a freshly sent LSP request id.
func (t *Table) pending(req Request, tgt target, id int64, err error) Result {
	if err != nil {
		t.log.Error("%s: send failed: %v", req.Method, err)
		return Result{Kind: KindEmpty}
	}
	return Result{
		Kind:    KindPendingLSP,
		Client:  tgt.client,
		LSPID:   id,
		Entry:   tgt.entry,
		Root:    tgt.root,
		SSHHost: tgt.ssh,
		File:    tgt.path,
	}
}

func position(req Request) lsp.Position {
	return lsp.Position{
		Line:      int(req.Params.Get("line").Int()),
		Character: int(req.Params.Get("column").Int()),
	}
}

func (tgt target) positionParams(req Request) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Position:     position(req),
	}
}

// positionRequest builds the handler for a plain
// textDocument-position request.
func (t *Table) positionRequest(lspMethod string) func(Request) Result {
	return func(req Request) Result {
		tgt, early, ok := t.resolve(req)
		if !ok {
			return early
		}
		if tgt.client.State() != lsp.ClientInitialized {
			return initializing(tgt)
		}
		id, err := tgt.client.SendRequest(lspMethod, tgt.positionParams(req))
		return t.pending(req, tgt, id, err)
	}
}

func (t *Table) handleDocumentSymbols(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/documentSymbol", lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleFoldingRange(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/foldingRange", lsp.FoldingRangeParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleCallHierarchy(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/prepareCallHierarchy", lsp.CallHierarchyPrepareParams{
		TextDocumentPositionParams: tgt.positionParams(req),
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleCompletion(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/completion", lsp.CompletionParams{
		TextDocumentPositionParams: tgt.positionParams(req),
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleReferences(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/references", lsp.ReferenceParams{
		TextDocumentPositionParams: tgt.positionParams(req),
		Context:                    lsp.ReferenceContext{IncludeDeclaration: true},
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleRename(req Request) Result {
	newName := req.Params.Get("new_name").String()
	if newName == "" {
		return Result{Kind: KindEmpty}
	}
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/rename", lsp.RenameParams{
		TextDocumentPositionParams: tgt.positionParams(req),
		NewName:                    newName,
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleCodeAction(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	pos := position(req)
	id, err := tgt.client.SendRequest("textDocument/codeAction", lsp.CodeActionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Range:        lsp.Range{Start: pos, End: pos},
		Context:      lsp.CodeActionContext{Diagnostics: []lsp.Diagnostic{}},
	})
	return t.pending(req, tgt, id, err)
}

func formattingOptions(req Request) lsp.FormattingOptions {
	tabSize := int(req.Params.Get("tab_size").Int())
	if tabSize <= 0 {
		tabSize = 4
	}
	return lsp.FormattingOptions{
		TabSize:      tabSize,
		InsertSpaces: req.Params.Get("insert_spaces").Kind() != jsonrpc.KindFalse,
	}
}

func (t *Table) handleFormatting(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/formatting", lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Options:      formattingOptions(req),
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleRangeFormatting(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/rangeFormatting", lsp.DocumentRangeFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Range: lsp.Range{
			Start: lsp.Position{Line: int(req.Params.Get("start_line").Int())},
			End:   lsp.Position{Line: int(req.Params.Get("end_line").Int() + 1)},
		},
		Options: formattingOptions(req),
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleInlayHints(req Request) Result {
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}
	id, err := tgt.client.SendRequest("textDocument/inlayHint", lsp.InlayHintParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Range: lsp.Range{
			Start: lsp.Position{Line: int(req.Params.Get("start_line").Int())},
			End:   lsp.Position{Line: int(req.Params.Get("end_line").Int() + 1)},
		},
	})
	return t.pending(req, tgt, id, err)
}

func (t *Table) handleExecuteCommand(req Request) Result {
	command := req.Params.Get("command").String()
	if command == "" {
		return Result{Kind: KindEmpty}
	}
	tgt, early, ok := t.resolve(req)
	if !ok {
		return early
	}
	if tgt.client.State() != lsp.ClientInitialized {
		return initializing(tgt)
	}

	var args []any
	if rawArgs := req.Params.Get("arguments"); rawArgs.Kind() == jsonrpc.KindArray {
		_ = json.Unmarshal([]byte(rawArgs.Raw()), &args)
	}
	id, err := tgt.client.SendRequest("workspace/executeCommand", lsp.ExecuteCommandParams{
		Command:   command,
		Arguments: args,
	})
	return t.pending(req, tgt, id, err)
}

// --- Document sync ---

type openAction struct {
	Action string `json:"action"`
}

func (t *Table) handleFileOpen(req Request) Result {
	none := dataResult(openAction{Action: "none"})

	tgt, early, ok := t.resolve(req)
	if !ok {
		// The editor gets {action:"none"} even when no server exists:
		// opening an unsupported file is not an error.
		early.Kind = none.Kind
		early.Data = none.Data
		return early
	}

	languageID := req.Params.Get("language_id").String()
	if languageID == "" {
		languageID = tgt.entry.LanguageID
	}

	text, found := t.bufferText(req, tgt.path)
	if !found {
		return none
	}

	if tgt.client.State() != lsp.ClientInitialized {
		t.registry.QueueOpen(tgt.entry, tgt.root, lsp.PendingOpen{
			URI:        tgt.uri,
			LanguageID: languageID,
			Text:       text,
		})
		return none
	}

	if err := tgt.client.SendNotification("textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        tgt.uri,
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	}); err != nil {
		t.log.Error("didOpen: %v", err)
	}
	return none
}

// bufferText returns the text for a document: the editor-provided
// buffer when present, the on-disk content otherwise. Files past the
// size bound are skipped with an error log.
func (t *Table) bufferText(req Request, path string) (string, bool) {
	if text := req.Params.Get("text"); text.Kind() == jsonrpc.KindString {
		return text.String(), true
	}

	info, err := os.Stat(path)
	if err != nil {
		t.log.Debug("stat %s: %v", path, err)
		return "", false
	}
	if info.Size() > maxOpenFileBytes {
		t.log.Error("skipping %s: %d bytes exceeds open limit", path, info.Size())
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.log.Error("read %s: %v", path, err)
		return "", false
	}
	return string(data), true
}

func (t *Table) handleDidChange(req Request) Result {
	tgt, _, ok := t.resolve(req)
	if !ok {
		return Result{Kind: KindNone}
	}

	text := req.Params.Get("text").String()

	if tgt.client.State() != lsp.ClientInitialized {
		t.registry.UpdateQueuedOpen(tgt.entry, tgt.root, tgt.uri, text)
		return Result{Kind: KindNone}
	}

	version := int(req.Params.Get("version").Int())
	if version == 0 {
		version = 1
	}
	if err := tgt.client.SendNotification("textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: tgt.uri},
			Version:                version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: text}},
	}); err != nil {
		t.log.Error("didChange: %v", err)
	}
	return Result{Kind: KindNone}
}

func (t *Table) handleDidSave(req Request) Result {
	tgt, _, ok := t.resolve(req)
	if !ok || tgt.client.State() != lsp.ClientInitialized {
		return Result{Kind: KindNone}
	}
	if err := tgt.client.SendNotification("textDocument/didSave", lsp.DidSaveTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
	}); err != nil {
		t.log.Error("didSave: %v", err)
	}
	return Result{Kind: KindNone}
}

func (t *Table) handleDidClose(req Request) Result {
	tgt, _, ok := t.resolve(req)
	if !ok {
		return Result{Kind: KindNone}
	}
	if tgt.client.State() != lsp.ClientInitialized {
		t.registry.RemoveQueuedOpen(tgt.entry, tgt.root, tgt.uri)
		return Result{Kind: KindNone}
	}
	if err := tgt.client.SendNotification("textDocument/didClose", lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
	}); err != nil {
		t.log.Error("didClose: %v", err)
	}
	return Result{Kind: KindNone}
}

func (t *Table) handleWillSave(req Request) Result {
	tgt, _, ok := t.resolve(req)
	if !ok || tgt.client.State() != lsp.ClientInitialized {
		return Result{Kind: KindNone}
	}
	if err := tgt.client.SendNotification("textDocument/willSave", lsp.WillSaveTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: tgt.uri},
		Reason:       lsp.SaveReasonManual,
	}); err != nil {
		t.log.Error("willSave: %v", err)
	}
	return Result{Kind: KindNone}
}
