// Package tsbridge answers the editor's syntactic requests from
// embedded tree-sitter grammars: document symbols, fold ranges,
// structural navigation, text objects, and highlight spans. It never
// talks to an LSP server; everything here is computed from the buffer
// text the editor sent (or the file on disk) in one synchronous call.
//
// Grammars wired: TypeScript/TSX, CSS, and HTML. Files outside those
// extensions return ErrUnsupported, which the dispatch layer encodes
// as an empty editor response.
package tsbridge

import (
	"errors"
	"sort"
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/dshills/yacd/internal/lsp"
)

// ErrUnsupported marks a file whose extension no embedded grammar
// covers.
var ErrUnsupported = errors.New("no tree-sitter grammar for file")

// Symbol is one named declaration found by the symbols query.
type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Fold is one foldable region, inclusive line bounds.
type Fold struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Highlight is one highlight span within a single line.
type Highlight struct {
	Line        int    `json:"line"`
	StartColumn int    `json:"start_column"`
	EndColumn   int    `json:"end_column"`
	Group       string `json:"group"`
}

// Span is a text-object range, zero-based line/column bounds with the
// end exclusive.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// highlightGroups maps a capture name from highlights.scm to the Vim
// highlight group the editor applies.
var highlightGroups = map[string]string{
	"comment":    "Comment",
	"string":     "String",
	"number":     "Number",
	"boolean":    "Boolean",
	"keyword":    "Keyword",
	"function":   "Function",
	"type":       "Type",
	"tag":        "Tag",
	"identifier": "Identifier",
}

// parse parses text with the grammar selected for path and hands the
// tree, grammar, and query directory to fn. The parser returns to its
// pool when fn does.
func parse(path, text string, fn func(tree *ts.Tree, lang *ts.Language, queryDir string) error) error {
	lang, queryDir, ok := langFor(path)
	if !ok {
		return ErrUnsupported
	}

	parser := getParser(lang)
	defer putParser(lang, parser)

	tree := parser.Parse([]byte(text), nil)
	if tree == nil {
		return ErrUnsupported
	}
	defer tree.Close()

	return fn(tree, lang, queryDir)
}

// eachCapture runs the named query over the whole tree and calls fn
// with every capture's name and node.
func eachCapture(tree *ts.Tree, lang *ts.Language, queryDir, queryName, text string, fn func(capture string, node ts.Node)) error {
	query, err := getQuery(lang, queryDir, queryName)
	if err != nil {
		return err
	}
	if query == nil {
		return nil
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	names := query.CaptureNames()
	matches := cursor.Matches(query, tree.RootNode(), []byte(text))
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		for _, c := range m.Captures {
			fn(names[c.Index], c.Node)
		}
	}
	return nil
}

// Symbols lists the named declarations in text, in document order.
// Capture names in symbols.scm follow "name.<kind>"; the suffix
// becomes the symbol kind.
func Symbols(path, text string) ([]Symbol, error) {
	idx := lsp.NewLineIndex(text)
	symbols := []Symbol{}

	err := parse(path, text, func(tree *ts.Tree, lang *ts.Language, queryDir string) error {
		return eachCapture(tree, lang, queryDir, querySymbols, text, func(capture string, node ts.Node) {
			kind, ok := strings.CutPrefix(capture, "name.")
			if !ok {
				return
			}
			start := node.StartPosition()
			pos := idx.PositionFromByteCol(int(start.Row), int(start.Column))
			symbols = append(symbols, Symbol{
				Name:   node.Utf8Text([]byte(text)),
				Kind:   kind,
				Line:   pos.Line,
				Column: pos.Character,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].Line != symbols[j].Line {
			return symbols[i].Line < symbols[j].Line
		}
		return symbols[i].Column < symbols[j].Column
	})
	return symbols, nil
}

// Folding lists foldable regions spanning at least two lines, sorted
// by start line, deduplicated.
func Folding(path, text string) ([]Fold, error) {
	seen := map[Fold]bool{}
	folds := []Fold{}

	err := parse(path, text, func(tree *ts.Tree, lang *ts.Language, queryDir string) error {
		return eachCapture(tree, lang, queryDir, queryFolds, text, func(capture string, node ts.Node) {
			start := int(node.StartPosition().Row)
			end := int(node.EndPosition().Row)
			if end <= start {
				return
			}
			f := Fold{StartLine: start, EndLine: end}
			if !seen[f] {
				seen[f] = true
				folds = append(folds, f)
			}
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(folds, func(i, j int) bool {
		if folds[i].StartLine != folds[j].StartLine {
			return folds[i].StartLine < folds[j].StartLine
		}
		return folds[i].EndLine > folds[j].EndLine
	})
	return folds, nil
}

// Highlights lists highlight spans for text. Multi-line captures are
// split per line so the editor can apply them with line-scoped match
// commands.
func Highlights(path, text string) ([]Highlight, error) {
	idx := lsp.NewLineIndex(text)
	spans := []Highlight{}

	err := parse(path, text, func(tree *ts.Tree, lang *ts.Language, queryDir string) error {
		return eachCapture(tree, lang, queryDir, queryHighlights, text, func(capture string, node ts.Node) {
			group, ok := highlightGroups[capture]
			if !ok {
				return
			}
			start := node.StartPosition()
			end := node.EndPosition()
			for line := int(start.Row); line <= int(end.Row); line++ {
				startCol := 0
				if line == int(start.Row) {
					startCol = idx.PositionFromByteCol(line, int(start.Column)).Character
				}
				endCol := len(idx.Line(line))
				endCol = idx.PositionFromByteCol(line, endCol).Character
				if line == int(end.Row) {
					endCol = idx.PositionFromByteCol(line, int(end.Column)).Character
				}
				if endCol <= startCol {
					continue
				}
				spans = append(spans, Highlight{
					Line:        line,
					StartColumn: startCol,
					EndColumn:   endCol,
					Group:       group,
				})
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return spans, nil
}

// Navigate finds the nearest symbol of the given kind strictly before
// or after line, per direction ("next" or "prev"). kind "" matches
// any symbol. Returns nil when there is nothing in that direction.
func Navigate(path, text string, line int, kind, direction string) (*Symbol, error) {
	symbols, err := Symbols(path, text)
	if err != nil {
		return nil, err
	}

	if direction == "prev" {
		for i := len(symbols) - 1; i >= 0; i-- {
			s := symbols[i]
			if s.Line < line && (kind == "" || s.Kind == kind) {
				return &s, nil
			}
		}
		return nil, nil
	}
	for _, s := range symbols {
		if s.Line > line && (kind == "" || s.Kind == kind) {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

// TextObject finds the innermost capture named "<object>.<variant>"
// containing the cursor at (line, column) — UTF-16 column, as the
// editor sends it. Returns nil when the cursor is inside no such
// node.
func TextObject(path, text string, line, column int, object, variant string) (*Span, error) {
	if variant == "" {
		variant = "outer"
	}
	want := object + "." + variant

	idx := lsp.NewLineIndex(text)
	cursor := uint(idx.ByteOffset(lsp.Position{Line: line, Character: column}))

	var best *Span
	bestSize := uint(0)

	err := parse(path, text, func(tree *ts.Tree, lang *ts.Language, queryDir string) error {
		return eachCapture(tree, lang, queryDir, queryTextobjects, text, func(capture string, node ts.Node) {
			if capture != want {
				return
			}
			if cursor < node.StartByte() || cursor >= node.EndByte() {
				return
			}
			size := node.EndByte() - node.StartByte()
			if best != nil && size >= bestSize {
				return
			}
			start := node.StartPosition()
			end := node.EndPosition()
			best = &Span{
				StartLine:   int(start.Row),
				StartColumn: idx.PositionFromByteCol(int(start.Row), int(start.Column)).Character,
				EndLine:     int(end.Row),
				EndColumn:   idx.PositionFromByteCol(int(end.Row), int(end.Column)).Character,
			}
			bestSize = size
		})
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}
