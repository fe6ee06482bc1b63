package editorconn

import (
	"encoding/json"
	"testing"
)

func TestFeedParsesCompleteFrame(t *testing.T) {
	c := &Client{}
	frames := c.Feed([]byte(`[7,{"method":"goto_definition","params":{"file":"/p/a.rs"}}]` + "\n"))

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.RequestID != 7 || f.Method != "goto_definition" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if f.Params.Get("file").String() != "/p/a.rs" {
		t.Fatalf("unexpected params: %s", f.Params.Raw())
	}
}

func TestFeedBuffersPartialLine(t *testing.T) {
	c := &Client{}
	if frames := c.Feed([]byte(`[1,{"method":"hov`)); len(frames) != 0 {
		t.Fatalf("expected no frames from a partial line, got %d", len(frames))
	}
	frames := c.Feed([]byte(`er","params":{}}]` + "\n"))
	if len(frames) != 1 || frames[0].Method != "hover" {
		t.Fatalf("unexpected frames after completion: %+v", frames)
	}
}

func TestFeedSkipsMalformedLine(t *testing.T) {
	c := &Client{}
	frames := c.Feed([]byte("not json\n" + `[2,{"method":"did_save","params":{}}]` + "\n"))
	if len(frames) != 1 || frames[0].RequestID != 2 {
		t.Fatalf("expected malformed line skipped, got %+v", frames)
	}
}

func TestEncodeResponse(t *testing.T) {
	line := EncodeResponse(7, []byte(`{"file":"/p/a.rs","line":10,"column":4}`))

	var decoded []json.RawMessage
	trimmed := line[:len(line)-1]
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, trimmed)
	}
	if len(decoded) != 2 || string(decoded[0]) != "7" {
		t.Fatalf("unexpected response frame: %s", trimmed)
	}
}

func TestEncodeEx(t *testing.T) {
	line := EncodeEx("echo 'hi'")
	var decoded []any
	if err := json.Unmarshal(line[:len(line)-1], &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded[0] != "ex" || decoded[1] != "echo 'hi'" {
		t.Fatalf("unexpected ex frame: %+v", decoded)
	}
}

func TestEncodeCall(t *testing.T) {
	line := EncodeCall("SomeFunc", []byte(`[1,"a"]`))
	var decoded []any
	if err := json.Unmarshal(line[:len(line)-1], &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded[0] != "call" || decoded[1] != "SomeFunc" {
		t.Fatalf("unexpected call frame: %+v", decoded)
	}
}
