package dispatch

import (
	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
	"github.com/dshills/yacd/internal/picker"
	"github.com/dshills/yacd/internal/tsbridge"
)

// pickerItems is the picker_open / picker_query file-mode response
// shape.
type pickerItems struct {
	Items []picker.Item `json:"items"`
	Mode  string        `json:"mode"`
}

func (t *Table) handlePickerOpen(req Request) Result {
	cwd := req.Params.Get("cwd").String()
	if cwd == "" {
		return Result{Kind: KindEmpty}
	}

	var recent []string
	for _, v := range req.Params.Get("recent_files").Array() {
		if v.Kind() == jsonrpc.KindString {
			recent = append(recent, v.String())
		}
	}

	items := t.picker.Open(cwd, recent)
	if items == nil {
		items = []picker.Item{}
	}
	return dataResult(pickerItems{Items: items, Mode: "file"})
}

func (t *Table) handlePickerQuery(req Request) Result {
	mode := req.Params.Get("mode").String()
	query := req.Params.Get("query").String()

	switch mode {
	case "", "file":
		items := t.picker.QueryFiles(query)
		if items == nil {
			items = []picker.Item{}
		}
		return dataResult(pickerItems{Items: items, Mode: "file"})

	case "workspace_symbol":
		tgt, early, ok := t.resolve(req)
		if !ok {
			return early
		}
		if tgt.client.State() != lsp.ClientInitialized {
			return initializing(tgt)
		}
		id, err := tgt.client.SendRequest("workspace/symbol", lsp.WorkspaceSymbolParams{Query: query})
		res := t.pending(req, tgt, id, err)
		res.Mode = mode
		return res

	case "document_symbol":
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
		res := t.pending(req, tgt, id, err)
		res.Mode = mode
		return res

	default:
		t.log.Debug("picker_query: unknown mode %q", mode)
		return Result{Kind: KindEmpty}
	}
}

func (t *Table) handlePickerClose(req Request) Result {
	t.picker.Close()
	return Result{Kind: KindEmpty}
}

// --- Tree-sitter handlers ---

// tsText resolves the buffer text for a tree-sitter request: inline
// text when the editor sent it, the on-disk file otherwise.
func (t *Table) tsText(req Request) (path, text string, ok bool) {
	file := req.Params.Get("file").String()
	if file == "" {
		return "", "", false
	}
	path, _ = lsp.ParseEditorURI(file)

	if v := req.Params.Get("text"); v.Kind() == jsonrpc.KindString {
		return path, v.String(), true
	}
	text, ok = t.bufferText(req, path)
	return path, text, ok
}

func (t *Table) handleTsSymbols(req Request) Result {
	path, text, ok := t.tsText(req)
	if !ok {
		return Result{Kind: KindEmpty}
	}
	symbols, err := tsbridge.Symbols(path, text)
	if err != nil {
		return Result{Kind: KindEmpty}
	}
	return dataResult(struct {
		Symbols []tsbridge.Symbol `json:"symbols"`
	}{symbols})
}

func (t *Table) handleTsFolding(req Request) Result {
	path, text, ok := t.tsText(req)
	if !ok {
		return Result{Kind: KindEmpty}
	}
	folds, err := tsbridge.Folding(path, text)
	if err != nil {
		return Result{Kind: KindEmpty}
	}
	return dataResult(struct {
		Folds []tsbridge.Fold `json:"folds"`
	}{folds})
}

func (t *Table) handleTsNavigate(req Request) Result {
	path, text, ok := t.tsText(req)
	if !ok {
		return Result{Kind: KindEmpty}
	}
	symbol, err := tsbridge.Navigate(
		path, text,
		int(req.Params.Get("line").Int()),
		req.Params.Get("kind").String(),
		req.Params.Get("direction").String(),
	)
	if err != nil || symbol == nil {
		return Result{Kind: KindEmpty}
	}
	return dataResult(symbol)
}

func (t *Table) handleTsTextObjects(req Request) Result {
	path, text, ok := t.tsText(req)
	if !ok {
		return Result{Kind: KindEmpty}
	}
	span, err := tsbridge.TextObject(
		path, text,
		int(req.Params.Get("line").Int()),
		int(req.Params.Get("column").Int()),
		req.Params.Get("object").String(),
		req.Params.Get("variant").String(),
	)
	if err != nil || span == nil {
		return Result{Kind: KindEmpty}
	}
	return dataResult(span)
}

func (t *Table) handleTsHighlights(req Request) Result {
	path, text, ok := t.tsText(req)
	if !ok {
		return Result{Kind: KindEmpty}
	}
	spans, err := tsbridge.Highlights(path, text)
	if err != nil {
		return Result{Kind: KindEmpty}
	}
	return dataResult(struct {
		Highlights []tsbridge.Highlight `json:"highlights"`
	}{spans})
}
