package tsbridge

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsCss "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tsHtml "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/*/*.scm
var queryFS embed.FS

// Query names every grammar directory is expected to provide. A
// grammar may omit one; the operation backed by it then returns
// empty for that language.
const (
	querySymbols     = "symbols"
	queryFolds       = "folds"
	queryHighlights  = "highlights"
	queryTextobjects = "textobjects"
)

// grammars maps a grammar name (the query directory name) to its
// compiled language. tsx shares the typescript query directory: the
// TSX dialect is a superset and the same patterns apply.
var grammars = struct {
	typescript *ts.Language
	tsx        *ts.Language
	css        *ts.Language
	html       *ts.Language
}{
	ts.NewLanguage(tsTypescript.LanguageTypescript()),
	ts.NewLanguage(tsTypescript.LanguageTSX()),
	ts.NewLanguage(tsCss.Language()),
	ts.NewLanguage(tsHtml.Language()),
}

// langFor selects the grammar and query directory for a file path,
// by extension. ok is false for files no embedded grammar covers.
func langFor(filePath string) (lang *ts.Language, queryDir string, ok bool) {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".ts", ".js", ".mjs", ".cjs":
		return grammars.typescript, "typescript", true
	case ".tsx", ".jsx":
		return grammars.tsx, "typescript", true
	case ".css":
		return grammars.css, "css", true
	case ".html", ".htm":
		return grammars.html, "html", true
	default:
		return nil, "", false
	}
}

// parser pools, one per grammar. A pooled parser keeps its language
// set; Reset before Put clears parse state only.
var parserPools = map[*ts.Language]*sync.Pool{}
var parserPoolsInit sync.Once

func initParserPools() {
	for _, lang := range []*ts.Language{grammars.typescript, grammars.tsx, grammars.css, grammars.html} {
		l := lang
		parserPools[l] = &sync.Pool{
			New: func() any {
				p := ts.NewParser()
				if err := p.SetLanguage(l); err != nil {
					panic(fmt.Sprintf("set tree-sitter language: %v", err))
				}
				return p
			},
		}
	}
}

func getParser(lang *ts.Language) *ts.Parser {
	parserPoolsInit.Do(initParserPools)
	return parserPools[lang].Get().(*ts.Parser)
}

func putParser(lang *ts.Language, p *ts.Parser) {
	p.Reset()
	parserPools[lang].Put(p)
}

// compiled queries. A query is compiled against one language, so the
// cache key carries the language too: typescript and tsx share query
// sources but not compiled queries. A directory missing a query
// caches a nil entry so the miss is not re-attempted.
type queryKey struct {
	lang *ts.Language
	path string
}

var (
	queryMu    sync.Mutex
	queryCache = map[queryKey]*ts.Query{}
)

func getQuery(lang *ts.Language, queryDir, name string) (*ts.Query, error) {
	rel := queryDir + "/" + name
	key := queryKey{lang: lang, path: rel}

	queryMu.Lock()
	defer queryMu.Unlock()

	if q, ok := queryCache[key]; ok {
		return q, nil
	}

	data, err := queryFS.ReadFile("queries/" + rel + ".scm")
	if err != nil {
		queryCache[key] = nil
		return nil, nil
	}
	q, qerr := ts.NewQuery(lang, string(data))
	if qerr != nil {
		return nil, fmt.Errorf("compile query %s: %w", rel, qerr)
	}
	queryCache[key] = q
	return q, nil
}
