package websock

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/websock-dev/websock/internal/errd"
)

// Request is a parsed handshake request.
type Request struct {
	Method string
	Path   string
	Proto  string
	Header Header

	// Key3 holds the 8 bytes that follow the headers of a hixie-76
	// request. It is nil for the versioned drafts.
	Key3 []byte
}

// Response is a handshake response. A zero Body is not written.
type Response struct {
	StatusCode int
	Reason     string
	Header     Header
	Body       []byte
}

const maxHandshakeLine = 8192

// readRequest parses the HTTP/1.1 shaped request line and headers
// off the transport, plus the trailing hixie-76 key bytes when the
// request carries Key1/Key2 headers and no version header. A
// transport end maps to ErrConnectionClosed, everything else to
// MalformedRequestError.
func readRequest(r *bufio.Reader) (*Request, error) {
	line, err := readHandshakeLine(r)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, errMalformed("request line %q does not have 3 parts", line)
	}

	req := &Request{
		Method: parts[0],
		Path:   parts[1],
		Proto:  parts[2],
	}

	for {
		line, err = readHandshakeLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}

		i := strings.IndexByte(line, ':')
		if i < 1 {
			return nil, errMalformed("header line %q is missing a colon", line)
		}
		req.Header.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	}

	if req.Header.Get("Sec-WebSocket-Version") == "" &&
		req.Header.Get("Sec-WebSocket-Key1") != "" &&
		req.Header.Get("Sec-WebSocket-Key2") != "" {
		req.Key3 = make([]byte, 8)
		_, err = io.ReadFull(r, req.Key3)
		if err != nil {
			return nil, connClosed(fmt.Errorf("failed to read hixie-76 key bytes: %w", err))
		}
	}

	return req, nil
}

func readHandshakeLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", connClosed(err)
		}
		if b == '\n' {
			break
		}
		if len(line) > maxHandshakeLine {
			return "", errMalformed("handshake line beyond %d bytes", maxHandshakeLine)
		}
		line = append(line, b)
	}
	return strings.TrimSuffix(string(line), "\r"), nil
}

// validateRequest checks the presence and shape of the headers every
// handshake request must carry.
func validateRequest(req *Request) error {
	if req.Method != "GET" {
		return errMalformed("handshake request method is not GET but %q", req.Method)
	}
	if req.Proto != "HTTP/1.1" && req.Proto != "HTTP/1.0" {
		return errMalformed("handshake request proto %q is not HTTP", req.Proto)
	}
	if req.Proto == "HTTP/1.0" {
		return errMalformed("handshake request must be at least HTTP/1.1: %q", req.Proto)
	}
	if req.Header.Get("Host") == "" {
		return errMalformed("missing Host header")
	}
	if !headerContainsToken(req.Header, "Connection", "Upgrade") {
		return errMalformed("Connection header %q does not contain Upgrade", req.Header.Get("Connection"))
	}
	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return errMalformed("Upgrade header %q does not contain websocket", req.Header.Get("Upgrade"))
	}

	if req.Header.Get("Sec-WebSocket-Version") != "" {
		key := req.Header.Get("Sec-WebSocket-Key")
		if key == "" {
			return errMalformed("missing Sec-WebSocket-Key")
		}
		if k, err := base64.StdEncoding.DecodeString(key); err != nil || len(k) != 16 {
			return errMalformed("Sec-WebSocket-Key %q is not 16 base64 bytes", key)
		}
		return nil
	}

	key1 := req.Header.Get("Sec-WebSocket-Key1")
	key2 := req.Header.Get("Sec-WebSocket-Key2")
	if key1 == "" && key2 == "" {
		return errMalformed("missing Sec-WebSocket-Version and key headers")
	}
	if !validHixieKey(key1) {
		return errMalformed("Sec-WebSocket-Key1 %q is not a valid hixie-76 key", key1)
	}
	if !validHixieKey(key2) {
		return errMalformed("Sec-WebSocket-Key2 %q is not a valid hixie-76 key", key2)
	}
	if len(req.Key3) != 8 {
		return errMalformed("hixie-76 request is missing its 8 key bytes")
	}
	return nil
}

// write serializes the response. The caller flushes.
func (resp *Response) write(w *bufio.Writer) (err error) {
	defer errd.Wrap(&err, "failed to write response")

	_, err = fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.StatusCode, resp.Reason)
	if err != nil {
		return err
	}

	var writeErr error
	resp.Header.Each(func(key, value string) {
		if writeErr != nil {
			return
		}
		_, writeErr = fmt.Fprintf(w, "%s: %s\r\n", key, value)
	})
	if writeErr != nil {
		return writeErr
	}

	_, err = w.WriteString("\r\n")
	if err != nil {
		return err
	}

	if len(resp.Body) > 0 {
		_, err = w.Write(resp.Body)
		if err != nil {
			return err
		}
	}
	return nil
}

// errorResponse builds the client-error response paired with every
// handshake failure.
func errorResponse(status int, reason, body string) *Response {
	resp := &Response{
		StatusCode: status,
		Reason:     reason,
		Body:       []byte(body),
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("Content-Length", fmt.Sprint(len(body)))
	resp.Header.Set("Connection", "close")
	return resp
}
