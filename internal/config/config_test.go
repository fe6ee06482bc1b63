package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/yacd/internal/lsp"
)

func TestLoadServerTableMissingFileReturnsDefaults(t *testing.T) {
	defaults := []lsp.ServerEntry{{LanguageID: "go", Command: "gopls"}}

	got, err := LoadServerTable(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("LoadServerTable: %v", err)
	}
	if len(got) != 1 || got[0].Command != "gopls" {
		t.Fatalf("expected unchanged defaults, got %+v", got)
	}
}

func TestLoadServerTableOverridesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.toml")
	body := `
[[server]]
language_id = "go"
command = "gopls-custom"
args = ["serve"]

[[server]]
language_id = "ruby"
command = "solargraph"
args = ["stdio"]
extensions = [".rb"]
workspace_markers = ["Gemfile"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	defaults := []lsp.ServerEntry{
		{LanguageID: "go", Command: "gopls"},
		{LanguageID: "rust", Command: "rust-analyzer"},
	}

	got, err := LoadServerTable(path, defaults)
	if err != nil {
		t.Fatalf("LoadServerTable: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries (2 default + 1 appended), got %d: %+v", len(got), got)
	}

	byLang := make(map[string]lsp.ServerEntry, len(got))
	for _, e := range got {
		byLang[e.LanguageID] = e
	}

	if byLang["go"].Command != "gopls-custom" {
		t.Errorf("go entry not overridden: %+v", byLang["go"])
	}
	if byLang["rust"].Command != "rust-analyzer" {
		t.Errorf("rust entry should be untouched: %+v", byLang["rust"])
	}
	if byLang["ruby"].Command != "solargraph" {
		t.Errorf("ruby entry should be appended: %+v", byLang["ruby"])
	}
}
