package lsp

import "encoding/json"

// PendingOpen is a (uri, languageId, text) tuple captured when a
// buffer open arrives while the matching client is still Initializing.
// The queue it belongs to is replayed in arrival order immediately
// after `initialized` is sent, before any other deferred request.
type PendingOpen struct {
	URI        DocumentURI
	LanguageID string
	Text       string
}

// DeferredRequest is a frozen (editor client, editor request id,
// method, params) tuple for a request deferred because the owning LSP
// client is not yet ready. Nothing in the daemon constructs one: the
// event loop in internal/app keeps its own deferred-request queue and
// replays it in FIFO order once the client becomes ready.
type DeferredRequest struct {
	ClientID  string
	RequestID any
	Method    string
	Params    json.RawMessage
}
