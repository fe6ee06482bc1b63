// Package lsp implements the daemon's view of the Language Server
// Protocol: wire types (protocol.go), a non-blocking per-server
// Client driven by bytes the reactor feeds it (client.go), and a
// Registry that pools clients by (language, workspace root), detects
// which server a file belongs to, and memoizes spawn failures
// (registry.go).
//
// Nothing in this package blocks on I/O or owns a goroutine for
// protocol traffic: Client.SendRequest/SendNotification write
// synchronously to a pipe the child is expected to drain, and
// responses surface later through Client.Feed, called by the reactor
// when the client's stdout fd is readable. The one goroutine a Client
// does own only drains and logs stderr.
//
// # Workspace keys
//
// A Registry entry is addressed by (language, workspace_root), not
// language alone: opening the same language under two different
// project roots gets two independent clients, each with its own
// initialize handshake and document set.
//
// # Editor boundary
//
// uri.go handles the scp://host/path wrapping an SSH-editing session
// applies at the editor boundary; everything else in this package
// only ever sees plain filesystem paths and file:// URIs.
package lsp
