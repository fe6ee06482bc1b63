package lsp

import "testing"

func TestParseEditorURIPlainPath(t *testing.T) {
	path, ref := ParseEditorURI("/a/b.go")
	if path != "/a/b.go" || ref.Host != "" {
		t.Fatalf("expected passthrough, got path=%q ref=%+v", path, ref)
	}
}

func TestParseEditorURISSHRoundTrip(t *testing.T) {
	path, ref := ParseEditorURI("scp://bob//a.zig")
	if ref.Host != "bob" {
		t.Fatalf("expected host bob, got %q", ref.Host)
	}
	if path != "/a.zig" {
		t.Fatalf("expected path /a.zig, got %q", path)
	}

	wrapped := WrapEditorPath(path, ref.Host)
	if wrapped != "scp://bob//a.zig" {
		t.Fatalf("expected round trip to scp://bob//a.zig, got %q", wrapped)
	}
}

func TestWrapEditorPathNoHost(t *testing.T) {
	if got := WrapEditorPath("/a.zig", ""); got != "/a.zig" {
		t.Fatalf("expected unchanged path, got %q", got)
	}
}
