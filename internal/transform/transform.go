// Package transform converts LSP-shaped JSON results into the
// editor-facing shape the handler table promises: goto locations
// collapse to {file,line,column},
// references flatten to a list, formatting edits become a named
// field set, inlay hint labels are concatenated, and picker symbols
// are rendered into display-ready items.
//
// Every function here is chosen by the editor method name, not the
// LSP method name, and is a pure function of its raw JSON input: none
// of them touch the registry, a client, or the reactor.
package transform

import (
	"encoding/json"
	"strings"

	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
)

// Goto is the {file,line,column} payload for goto_definition and its
// siblings (declaration, type_definition, implementation).
type Goto struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// GotoResult accepts a Location, a Location[], or a LocationLink[]
// LSP result and takes the first entry. A null or
// empty result yields nil rather than an error: callers encode that
// as the editor's "no definition" empty response.
func GotoResult(result json.RawMessage, sshHost string) (*Goto, error) {
	v := jsonrpc.Parse(result)
	loc, ok := firstLocation(v)
	if !ok {
		return nil, nil
	}
	return &Goto{
		File:   lsp.WrapEditorPath(loc.file, sshHost),
		Line:   loc.line,
		Column: loc.column,
	}, nil
}

type rawLocation struct {
	file   string
	line   int
	column int
}

func firstLocation(v jsonrpc.Value) (rawLocation, bool) {
	switch v.Kind() {
	case jsonrpc.KindObject:
		return locationFromValue(v)
	case jsonrpc.KindArray:
		arr := v.Array()
		if len(arr) == 0 {
			return rawLocation{}, false
		}
		return locationFromValue(arr[0])
	default:
		return rawLocation{}, false
	}
}

// locationFromValue reads either a plain Location (uri/range) or a
// LocationLink (targetUri/targetSelectionRange).
func locationFromValue(v jsonrpc.Value) (rawLocation, bool) {
	if uri := v.Get("uri"); uri.Kind() == jsonrpc.KindString {
		start := v.Get("range").Get("start")
		if !start.Exists() {
			return rawLocation{}, false
		}
		return rawLocation{
			file:   lsp.URIToFilePath(lsp.DocumentURI(uri.String())),
			line:   int(start.Get("line").Int()),
			column: int(start.Get("character").Int()),
		}, true
	}
	if uri := v.Get("targetUri"); uri.Kind() == jsonrpc.KindString {
		start := v.Get("targetSelectionRange").Get("start")
		if !start.Exists() {
			return rawLocation{}, false
		}
		return rawLocation{
			file:   lsp.URIToFilePath(lsp.DocumentURI(uri.String())),
			line:   int(start.Get("line").Int()),
			column: int(start.Get("character").Int()),
		}, true
	}
	return rawLocation{}, false
}

// References is the editor-facing shape for textDocument/references.
type References struct {
	Locations []Goto `json:"locations"`
}

// ReferencesResult maps every element of an LSP Location[] result the
// same way GotoResult maps a single one, skipping entries missing a
// uri or range rather than failing the whole list.
func ReferencesResult(result json.RawMessage, sshHost string) *References {
	out := &References{Locations: []Goto{}}
	for _, elem := range jsonrpc.Parse(result).Array() {
		loc, ok := locationFromValue(elem)
		if !ok {
			continue
		}
		out.Locations = append(out.Locations, Goto{
			File:   lsp.WrapEditorPath(loc.file, sshHost),
			Line:   loc.line,
			Column: loc.column,
		})
	}
	return out
}

// Edit is one textual edit in the editor's formatting result shape.
type Edit struct {
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
	NewText     string `json:"new_text"`
}

// Formatting is the editor-facing shape for formatting/range_formatting.
type Formatting struct {
	Edits []Edit `json:"edits"`
}

// FormattingResult maps a TextEdit[] LSP result into the editor's
// named-field edit list.
func FormattingResult(result json.RawMessage) *Formatting {
	out := &Formatting{Edits: []Edit{}}
	for _, e := range jsonrpc.Parse(result).Array() {
		start := e.Get("range").Get("start")
		end := e.Get("range").Get("end")
		out.Edits = append(out.Edits, Edit{
			StartLine:   int(start.Get("line").Int()),
			StartColumn: int(start.Get("character").Int()),
			EndLine:     int(end.Get("line").Int()),
			EndColumn:   int(end.Get("character").Int()),
			NewText:     e.Get("newText").String(),
		})
	}
	return out
}

// InlayHint is one rendered inlay hint.
type InlayHint struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
}

// InlayHints is the editor-facing shape for inlay_hints.
type InlayHints struct {
	Hints []InlayHint `json:"hints"`
}

// InlayHintsResult renders an InlayHint[] LSP result: the label may be
// a plain string or an InlayHintLabelPart[] whose .value fields are
// concatenated; kind 1/2/other map to type/parameter/other;
// paddingLeft/paddingRight surround the label with a space.
func InlayHintsResult(result json.RawMessage) *InlayHints {
	out := &InlayHints{Hints: []InlayHint{}}
	for _, h := range jsonrpc.Parse(result).Array() {
		pos := h.Get("position")
		label := inlayLabel(h.Get("label"))
		if h.Get("paddingLeft").Bool() {
			label = " " + label
		}
		if h.Get("paddingRight").Bool() {
			label += " "
		}

		kind := "other"
		switch h.Get("kind").Int() {
		case 1:
			kind = "type"
		case 2:
			kind = "parameter"
		}

		out.Hints = append(out.Hints, InlayHint{
			Line:   int(pos.Get("line").Int()),
			Column: int(pos.Get("character").Int()),
			Label:  label,
			Kind:   kind,
		})
	}
	return out
}

func inlayLabel(v jsonrpc.Value) string {
	if v.Kind() == jsonrpc.KindString {
		return v.String()
	}
	var sb strings.Builder
	for _, part := range v.Array() {
		sb.WriteString(part.Get("value").String())
	}
	return sb.String()
}

// symbolKindNames is the LSP SymbolKind display-name table,
// indexed by kind (1-based).
var symbolKindNames = [...]string{
	"File", "Module", "Namespace", "Package", "Class", "Method",
	"Property", "Field", "Constructor", "Enum", "Interface", "Function",
	"Variable", "Constant", "String", "Number", "Boolean", "Array",
	"Object", "Key", "Null", "EnumMember", "Struct", "Event",
	"Operator", "TypeParameter",
}

// SymbolKindName returns the display name for an LSP SymbolKind, or
// "Symbol" for an out-of-range value.
func SymbolKindName(kind int) string {
	if kind < 1 || kind > len(symbolKindNames) {
		return "Symbol"
	}
	return symbolKindNames[kind-1]
}

// PickerItem is one entry in a picker_query response, common to the
// file, workspace_symbol, and document_symbol modes.
type PickerItem struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// PickerSymbols is the editor-facing shape for picker_query in
// workspace_symbol/document_symbol mode.
type PickerSymbols struct {
	Items []PickerItem `json:"items"`
	Mode  string       `json:"mode"`
}

// PickerSymbolsResult renders a workspace/symbol (SymbolInformation[])
// or textDocument/documentSymbol (DocumentSymbol[], possibly nested)
// LSP result into picker items. currentFile and sshHost fill in the
// file field for DocumentSymbol entries, which carry no uri of their
// own (the request was already scoped to one document).
func PickerSymbolsResult(result json.RawMessage, mode, currentFile, sshHost string) *PickerSymbols {
	out := &PickerSymbols{Items: []PickerItem{}, Mode: mode}
	appendSymbols(out, jsonrpc.Parse(result).Array(), currentFile, sshHost)
	return out
}

func appendSymbols(out *PickerSymbols, symbols []jsonrpc.Value, currentFile, sshHost string) {
	for _, s := range symbols {
		item, ok := symbolToItem(s, currentFile, sshHost)
		if ok {
			out.Items = append(out.Items, item)
		}
		if children := s.Get("children"); children.Kind() == jsonrpc.KindArray {
			appendSymbols(out, children.Array(), currentFile, sshHost)
		}
	}
}

func symbolToItem(v jsonrpc.Value, currentFile, sshHost string) (PickerItem, bool) {
	name := v.Get("name").String()
	if name == "" {
		return PickerItem{}, false
	}
	kindName := SymbolKindName(int(v.Get("kind").Int()))

	// SymbolInformation carries its own location.
	if loc := v.Get("location"); loc.Kind() == jsonrpc.KindObject {
		start := loc.Get("range").Get("start")
		detail := kindName
		if container := v.Get("containerName").String(); container != "" {
			detail = kindName + " (" + container + ")"
		}
		file := lsp.URIToFilePath(lsp.DocumentURI(loc.Get("uri").String()))
		return PickerItem{
			Label:  name,
			Detail: detail,
			File:   lsp.WrapEditorPath(file, sshHost),
			Line:   int(start.Get("line").Int()),
			Column: int(start.Get("character").Int()),
		}, true
	}

	// DocumentSymbol: selectionRange preferred, falling back to range.
	start := v.Get("selectionRange").Get("start")
	if !start.Exists() {
		start = v.Get("range").Get("start")
	}
	if !start.Exists() {
		return PickerItem{}, false
	}
	return PickerItem{
		Label:  name,
		Detail: kindName,
		File:   lsp.WrapEditorPath(currentFile, sshHost),
		Line:   int(start.Get("line").Int()),
		Column: int(start.Get("character").Int()),
	}, true
}

// ForMethod reshapes a raw LSP result for the editor, selected by the
// editor method name that originated the request. Methods without a
// dedicated transformation pass the LSP result through unchanged.
// A nil return means "respond null".
func ForMethod(editorMethod string, result json.RawMessage, sshHost, currentFile, mode string) (json.RawMessage, error) {
	switch editorMethod {
	case "goto_definition", "goto_declaration", "goto_type_definition", "goto_implementation":
		g, err := GotoResult(result, sshHost)
		if err != nil || g == nil {
			return nil, err
		}
		return json.Marshal(g)
	case "references":
		return json.Marshal(ReferencesResult(result, sshHost))
	case "formatting", "range_formatting":
		return json.Marshal(FormattingResult(result))
	case "inlay_hints":
		return json.Marshal(InlayHintsResult(result))
	case "picker_query":
		return json.Marshal(PickerSymbolsResult(result, mode, currentFile, sshHost))
	default:
		if len(result) == 0 || string(result) == "null" {
			return nil, nil
		}
		return result, nil
	}
}

// VimEscape prepares a string for interpolation into a single-quoted
// Vim expression: single quotes double, CR/LF collapse to a space,
// and anything past 200 characters is truncated with a trailing "...".
func VimEscape(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	s = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)

	runes := []rune(s)
	if len(runes) > 200 {
		s = string(runes[:200]) + "..."
	}
	return s
}
