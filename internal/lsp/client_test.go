package lsp

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/dshills/yacd/internal/framing"
)

// newTestClient builds a Client around a real stdin pipe but no child
// process, so SendRequest's writes can be inspected directly.
func newTestClient(t *testing.T) (*Client, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close(); w.Close() })

	return &Client{
		Entry:   ServerEntry{LanguageID: "go"},
		stdin:   w,
		framer:  framing.New(),
		pending: make(map[int64]PendingRequest),
	}, r
}

func TestSendRequestWritesFramedMessageAndTracksPending(t *testing.T) {
	c, r := newTestClient(t)

	id, err := c.SendRequest("textDocument/definition", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id to be 1, got %d", id)
	}

	if _, ok := c.TakePending(id); !ok {
		t.Fatal("expected pending entry for sent request")
	}
	if _, ok := c.TakePending(id); ok {
		t.Fatal("TakePending should remove the entry")
	}

	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header == "" {
		t.Fatal("expected a Content-Length header")
	}
}

func TestFeedClassifiesResponseNotificationAndServerRequest(t *testing.T) {
	c, _ := newTestClient(t)
	c.pending[1] = PendingRequest{Method: "initialize"}

	var frame []byte
	frame = append(frame, framing.Encode(mustJSON(t, map[string]any{
		"jsonrpc": "2.0", "id": 1, "result": map[string]any{"capabilities": map[string]any{}},
	}))...)
	frame = append(frame, framing.Encode(mustJSON(t, map[string]any{
		"jsonrpc": "2.0", "method": "textDocument/publishDiagnostics", "params": map[string]any{},
	}))...)
	frame = append(frame, framing.Encode(mustJSON(t, map[string]any{
		"jsonrpc": "2.0", "id": 99, "method": "workspace/applyEdit", "params": map[string]any{},
	}))...)

	inbound, err := c.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(inbound) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(inbound))
	}

	if inbound[0].Kind != InboundResponse || inbound[0].ID != 1 {
		t.Errorf("unexpected first message: %+v", inbound[0])
	}
	if inbound[1].Kind != InboundNotification || inbound[1].Method != "textDocument/publishDiagnostics" {
		t.Errorf("unexpected second message: %+v", inbound[1])
	}
	if inbound[2].Kind != InboundServerRequest || inbound[2].ID != 99 {
		t.Errorf("unexpected third message: %+v", inbound[2])
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
