package config

import (
	"fmt"

	"github.com/dshills/yacd/internal/config/loader"
	"github.com/dshills/yacd/internal/lsp"
)

// ServerTableEntry mirrors the TOML shape of a [[server]] table.
type ServerTableEntry struct {
	LanguageID       string   `toml:"language_id"`
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	Extensions       []string `toml:"extensions"`
	WorkspaceMarkers []string `toml:"workspace_markers"`
}

type serverTableFile struct {
	Server []ServerTableEntry `toml:"server"`
}

// LoadServerTable reads overrides from path and merges them over defaults.
// A missing file is not an error: defaults are returned unchanged. Entries
// are matched by LanguageID; a file entry replaces the default entry with
// the same LanguageID or is appended if new.
func LoadServerTable(path string, defaults []lsp.ServerEntry) ([]lsp.ServerEntry, error) {
	if path == "" {
		return defaults, nil
	}

	var file serverTableFile
	if err := loader.NewTOMLLoader(path).DecodeFrom(path, &file); err != nil {
		return nil, fmt.Errorf("loading server table: %w", err)
	}

	merged := make([]lsp.ServerEntry, len(defaults))
	copy(merged, defaults)

	for _, e := range file.Server {
		entry := lsp.ServerEntry{
			LanguageID:       e.LanguageID,
			Command:          e.Command,
			Args:             e.Args,
			Extensions:       e.Extensions,
			WorkspaceMarkers: e.WorkspaceMarkers,
		}
		replaced := false
		for i := range merged {
			if merged[i].LanguageID == entry.LanguageID {
				merged[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, entry)
		}
	}

	return merged, nil
}
