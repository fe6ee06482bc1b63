// Package framing implements the LSP base protocol's Content-Length
// message framing over a byte stream, without owning the stream
// itself: callers feed it bytes as they arrive from a non-blocking
// read and get back zero or more complete message bodies.
package framing

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ProtocolError reports a malformed Content-Length header. The framer
// is not recoverable after one: the byte stream is no longer
// self-delimiting.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("framing: %s", e.Message)
}

// Framer incrementally decodes Content-Length-prefixed messages from
// a byte stream. It holds only the bytes read so far that have not
// yet formed a complete message; it performs no I/O itself.
type Framer struct {
	buf           []byte
	contentLength int // -1 while still scanning headers
}

// New returns an empty Framer ready to accept bytes.
func New() *Framer {
	return &Framer{contentLength: -1}
}

// Feed appends newly read bytes and returns every message body that
// became complete as a result, in arrival order. The returned slices
// alias data copied internally, not the caller's buffer, and remain
// valid after the next Feed call.
func (f *Framer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)

	var out [][]byte
	for {
		if f.contentLength < 0 {
			length, headerLen, ok, err := parseHeader(f.buf)
			if err != nil {
				return out, err
			}
			if !ok {
				return out, nil
			}
			f.contentLength = length
			f.buf = f.buf[headerLen:]
		}

		if len(f.buf) < f.contentLength {
			return out, nil
		}

		body := make([]byte, f.contentLength)
		copy(body, f.buf[:f.contentLength])
		f.buf = f.buf[f.contentLength:]
		f.contentLength = -1

		out = append(out, body)
	}
}

// parseHeader looks for a complete \r\n\r\n-terminated header block
// in buf and extracts Content-Length. ok is false if the header block
// is not yet fully buffered.
func parseHeader(buf []byte) (length int, headerLen int, ok bool, err error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(buf) > 64*1024 {
			return 0, 0, false, &ProtocolError{Message: "header exceeds 64KiB without terminator"}
		}
		return 0, 0, false, nil
	}

	header := string(buf[:idx])
	contentLength := -1
	for _, line := range strings.Split(header, "\r\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return 0, 0, false, &ProtocolError{Message: "malformed header line: " + line}
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, convErr := strconv.Atoi(strings.TrimSpace(value))
			if convErr != nil || n < 0 {
				return 0, 0, false, &ProtocolError{Message: "invalid Content-Length: " + value}
			}
			contentLength = n
		}
	}

	if contentLength < 0 {
		return 0, 0, false, &ProtocolError{Message: "missing Content-Length header"}
	}

	return contentLength, idx + 4, true, nil
}

// Encode wraps a message body with its Content-Length header, ready
// to write to an LSP server's stdin.
func Encode(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out
}
