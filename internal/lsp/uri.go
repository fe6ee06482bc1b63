package lsp

import "strings"

// RemoteRef identifies a buffer edited over SSH, at the editor boundary.
// The daemon never sends ssh_host to an LSP server: every outbound
// DocumentURI is unwrapped to the real filesystem path, and every
// LSP-originated location is re-wrapped with scp://host/ before it
// crosses back to the editor that owns it.
type RemoteRef struct {
	Host string
	Path string
}

// ParseEditorURI splits an editor-facing path into a real filesystem path
// and, if the editor addressed it as scp://host/path, the ssh host. The
// returned path is always a plain absolute filesystem path suitable for
// FilePathToURI.
func ParseEditorURI(raw string) (path string, ref RemoteRef) {
	const prefix = "scp://"
	if !strings.HasPrefix(raw, prefix) {
		return raw, RemoteRef{}
	}
	rest := raw[len(prefix):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return raw, RemoteRef{}
	}
	host := rest[:slash]
	realPath := rest[slash+1:]
	if !strings.HasPrefix(realPath, "/") {
		realPath = "/" + realPath
	}
	return realPath, RemoteRef{Host: host, Path: realPath}
}

// WrapEditorPath re-applies an scp:// wrapper to a local path for a
// response bound for the client that opened it over SSH. A zero-value
// host leaves the path unchanged. The path keeps its leading slash, so
// wrapping "/a.zig" with host "bob" yields "scp://bob//a.zig" — matching
// what the editor sent in on the way in.
func WrapEditorPath(path, sshHost string) string {
	if sshHost == "" {
		return path
	}
	return "scp://" + sshHost + "/" + path
}
