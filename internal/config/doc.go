// Package config loads the daemon's overridable language-server table
// from a TOML file.
//
// The daemon ships a compiled-in baseline table (internal/lsp.DefaultServerTable)
// covering rust-analyzer, pyright, typescript-language-server, gopls, zls,
// and clangd. An operator may add or override entries without a rebuild by
// placing a TOML file at the path given by -config:
//
//	[[server]]
//	language_id = "ruby"
//	command = "solargraph"
//	args = ["stdio"]
//	extensions = [".rb"]
//	workspace_markers = ["Gemfile"]
//
// Entries are matched by language_id: an entry in the file replaces the
// compiled-in entry of the same language_id, or is appended if new.
package config
