package lsp

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ServerEntry describes one row of the static language-server table:
// which command to spawn for a language, which file extensions select
// it, and which marker files identify a workspace root for it. The
// compiled-in baseline table can be overridden per language_id by an
// operator-supplied TOML file (see internal/config).
type ServerEntry struct {
	LanguageID       string
	Command          string
	Args             []string
	Extensions       []string
	WorkspaceMarkers []string
}

// DefaultServerTable returns the compiled-in baseline: rust-analyzer,
// pyright, typescript-language-server, gopls, zls, and clangd.
func DefaultServerTable() []ServerEntry {
	return []ServerEntry{
		{
			LanguageID:       "rust",
			Command:          "rust-analyzer",
			Extensions:       []string{".rs"},
			WorkspaceMarkers: []string{"Cargo.toml"},
		},
		{
			LanguageID:       "python",
			Command:          "pyright-langserver",
			Args:             []string{"--stdio"},
			Extensions:       []string{".py"},
			WorkspaceMarkers: []string{"pyproject.toml", "setup.py", "requirements.txt"},
		},
		{
			LanguageID:       "typescript",
			Command:          "typescript-language-server",
			Args:             []string{"--stdio"},
			Extensions:       []string{".ts", ".tsx", ".js", ".jsx"},
			WorkspaceMarkers: []string{"package.json", "tsconfig.json"},
		},
		{
			LanguageID:       "go",
			Command:          "gopls",
			Extensions:       []string{".go"},
			WorkspaceMarkers: []string{"go.mod"},
		},
		{
			LanguageID:       "zig",
			Command:          "zls",
			Extensions:       []string{".zig"},
			WorkspaceMarkers: []string{"build.zig"},
		},
		{
			LanguageID:       "c",
			Command:          "clangd",
			Extensions:       []string{".c", ".h", ".cpp", ".cc", ".cxx", ".hpp"},
			WorkspaceMarkers: []string{"compile_commands.json", "CMakeLists.txt"},
		},
	}
}

// workspaceKey identifies a pooled client by language and workspace
// root: the same language opened under two different roots
// gets two independent clients.
type workspaceKey struct {
	languageID string
	root       string
}

// Registry owns every spawned LSP client, detects which server a file
// belongs to, discovers workspace roots, and memoizes spawn failures so
// the editor is told about a missing server once rather than on every
// request. The registry is the sole owner of clients; callers borrow a
// pointer for the duration of a single dispatch.
type Registry struct {
	mu sync.Mutex

	table    []ServerEntry
	newFn    func(entry ServerEntry, workspaceRoot string) (*Client, error)
	clients  map[workspaceKey]*Client
	deferred map[workspaceKey][]PendingOpen
	failed   map[string]bool // languageID -> spawn already failed and reported
}

// NewRegistry builds a registry over the given server table. newFn
// constructs and spawns a client for an entry; it is a parameter so
// tests can substitute a fake client without spawning real processes.
func NewRegistry(table []ServerEntry, newFn func(entry ServerEntry, workspaceRoot string) (*Client, error)) *Registry {
	return &Registry{
		table:    table,
		newFn:    newFn,
		clients:  make(map[workspaceKey]*Client),
		deferred: make(map[workspaceKey][]PendingOpen),
		failed:   make(map[string]bool),
	}
}

// EntryForPath returns the first table entry whose Extensions match
// path's extension, and ok=false if none does.
func (r *Registry) EntryForPath(path string) (ServerEntry, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.table {
		for _, want := range e.Extensions {
			if ext == want {
				return e, true
			}
		}
	}
	return ServerEntry{}, false
}

// WorkspaceRoot walks parent directories of dir looking for any of
// entry's marker files. The first directory containing a marker wins;
// if none is found up to the filesystem root, dir itself is returned.
func WorkspaceRoot(dir string, entry ServerEntry) string {
	cur := dir
	for {
		for _, marker := range entry.WorkspaceMarkers {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}

// GetOrCreate returns the pooled client for (entry.LanguageID,
// workspaceRoot), spawning one if none exists yet. A prior spawn
// failure for this language is memoized: GetOrCreate returns
// (nil, false, false) without retrying or reporting again. The second
// return value is whether a client is available; the third is whether
// this call is the first to observe a fresh spawn failure (callers
// use this to decide whether to toast the user).
func (r *Registry) GetOrCreate(entry ServerEntry, workspaceRoot string) (client *Client, ok bool, freshFailure bool) {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, exists := r.clients[key]; exists {
		return c, true, false
	}

	if r.failed[entry.LanguageID] {
		return nil, false, false
	}

	c, err := r.newFn(entry, workspaceRoot)
	if err != nil {
		r.failed[entry.LanguageID] = true
		return nil, false, true
	}

	r.clients[key] = c
	return c, true, false
}

// Drop removes a client from the pool, e.g. after its process died.
// It does not re-memoize the language as failed: the next request for
// this workspace will attempt a fresh spawn.
func (r *Registry) Drop(entry ServerEntry, workspaceRoot string) {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}
	r.mu.Lock()
	delete(r.clients, key)
	delete(r.deferred, key)
	r.mu.Unlock()
}

// QueueOpen appends a PendingOpen to the per-client FIFO for replay
// once the matching client transitions out of Initializing.
func (r *Registry) QueueOpen(entry ServerEntry, workspaceRoot string, open PendingOpen) {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}
	r.mu.Lock()
	r.deferred[key] = append(r.deferred[key], open)
	r.mu.Unlock()
}

// UpdateQueuedOpen replaces the text of a queued open for uri, if one
// exists, so a did_change arriving while the server is still
// initializing is not lost: the eventual didOpen carries the latest
// buffer content. Reports whether a queued open was found.
func (r *Registry) UpdateQueuedOpen(entry ServerEntry, workspaceRoot string, uri DocumentURI, text string) bool {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.deferred[key] {
		if r.deferred[key][i].URI == uri {
			r.deferred[key][i].Text = text
			return true
		}
	}
	return false
}

// RemoveQueuedOpen drops a queued open for uri, for a did_close that
// arrives before the server finished initializing.
func (r *Registry) RemoveQueuedOpen(entry ServerEntry, workspaceRoot string, uri DocumentURI) bool {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}
	r.mu.Lock()
	defer r.mu.Unlock()
	opens := r.deferred[key]
	for i := range opens {
		if opens[i].URI == uri {
			r.deferred[key] = append(opens[:i], opens[i+1:]...)
			return true
		}
	}
	return false
}

// DrainOpens removes and returns the queued opens for a client, in
// arrival order, for replay immediately after `initialized` is sent.
func (r *Registry) DrainOpens(entry ServerEntry, workspaceRoot string) []PendingOpen {
	key := workspaceKey{languageID: entry.LanguageID, root: workspaceRoot}
	r.mu.Lock()
	defer r.mu.Unlock()
	opens := r.deferred[key]
	delete(r.deferred, key)
	return opens
}

// Clients returns every pooled client, for shutdown fan-out.
func (r *Registry) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
