package framing

import "testing"

func TestFeedSingleMessage(t *testing.T) {
	f := New()
	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	frame := Encode(msg)

	bodies, err := f.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(bodies) != 1 || string(bodies[0]) != string(msg) {
		t.Fatalf("unexpected bodies: %v", bodies)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	f := New()
	msg := []byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)
	frame := Encode(msg)

	var got [][]byte
	for i := range frame {
		bodies, err := f.Feed(frame[i : i+1])
		if err != nil {
			t.Fatalf("Feed at byte %d: %v", i, err)
		}
		got = append(got, bodies...)
	}

	if len(got) != 1 || string(got[0]) != string(msg) {
		t.Fatalf("unexpected reassembled bodies: %v", got)
	}
}

func TestFeedMultipleMessagesOneCall(t *testing.T) {
	f := New()
	a := Encode([]byte(`{"a":1}`))
	b := Encode([]byte(`{"b":2}`))

	bodies, err := f.Feed(append(a, b...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(bodies) != 2 || string(bodies[0]) != `{"a":1}` || string(bodies[1]) != `{"b":2}` {
		t.Fatalf("unexpected bodies: %v", bodies)
	}
}

func TestFeedMalformedHeaderIsProtocolError(t *testing.T) {
	f := New()
	_, err := f.Feed([]byte("Content-Length: notanumber\r\n\r\n{}"))
	if err == nil {
		t.Fatal("expected error for malformed Content-Length")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
}

func TestFeedMissingContentLength(t *testing.T) {
	f := New()
	_, err := f.Feed([]byte("Content-Type: application/json\r\n\r\n{}"))
	if err == nil {
		t.Fatal("expected error for missing Content-Length")
	}
}
