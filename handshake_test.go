package websock

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/websock-dev/websock/internal/test/assert"
	"github.com/websock-dev/websock/internal/xsync"
)

// handshakeClient writes raw on the client end of the pipe and reads
// the response headers back. net.Pipe is synchronous so it must run
// concurrently with the server side.
func handshakeClient(conn net.Conn, raw string) (string, error) {
	// net.Pipe blocks even a zero length write until the peer reads,
	// so skip the write entirely when there is nothing to send.
	if raw != "" {
		_, err := conn.Write([]byte(raw))
		if err != nil {
			return "", err
		}
	}

	var resp []byte
	b := make([]byte, 1)
	for !strings.HasSuffix(string(resp), "\r\n\r\n") {
		_, err := conn.Read(b)
		if err != nil {
			return string(resp), err
		}
		resp = append(resp, b[0])
	}
	return string(resp), nil
}

// handshakeClientAll additionally drains the Content-Length sized
// response body, so the server side write never backs up the pipe.
func handshakeClientAll(conn net.Conn, raw string) (string, error) {
	resp, err := handshakeClient(conn, raw)
	if err != nil {
		return resp, err
	}
	body := make([]byte, contentLength(resp))
	_, err = io.ReadFull(conn, body)
	return resp + string(body), err
}

func contentLength(head string) int {
	for _, line := range strings.Split(head, "\r\n") {
		var n int
		if _, err := fmt.Sscanf(line, "Content-Length: %d", &n); err == nil {
			return n
		}
	}
	return 0
}

const modernRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

const hixieRequest = "GET /demo HTTP/1.1\r\n" +
	"Host: example.com\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key2: 12998 5 Y3 1  .P00\r\n" +
	"Upgrade: WebSocket\r\n" +
	"Sec-WebSocket-Key1: 4 @1  46546xW%0l 1 5\r\n" +
	"Origin: http://example.com\r\n" +
	"\r\n" +
	"^n:ds[4U"

func TestAcceptRequest(t *testing.T) {
	t.Parallel()

	t.Run("modern", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		resps := make(chan string, 1)
		errs := xsync.Go(func() error {
			resp, err := handshakeClient(clientConn, modernRequest)
			resps <- resp
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)
		assert.Equal(t, "path", "/chat", req.Path)

		err = s.AcceptRequest(req)
		assert.Success(t, err)
		assert.Equal(t, "state", StateOpen, s.State())
		if s.Protocol() != RFC6455 {
			t.Fatalf("expected RFC 6455 but negotiated %v", s.Protocol())
		}

		assert.Success(t, <-errs)
		resp := <-resps
		assert.Contains(t, resp, "HTTP/1.1 101 Switching Protocols")
		assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
	})

	t.Run("hixie", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		resps := make(chan string, 1)
		errs := xsync.Go(func() error {
			resp, err := handshakeClient(clientConn, hixieRequest)
			if err != nil {
				resps <- resp
				return err
			}
			challenge := make([]byte, 16)
			_, err = io.ReadFull(clientConn, challenge)
			resps <- resp + string(challenge)
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)
		assert.Equal(t, "key3", []byte("^n:ds[4U"), req.Key3)

		err = s.AcceptRequest(req)
		assert.Success(t, err)
		if s.Protocol() != Hixie76 {
			t.Fatalf("expected hixie-76 but negotiated %v", s.Protocol())
		}
		assert.Equal(t, "features", FeatureSet(0), s.Protocol().Features())

		assert.Success(t, <-errs)
		resp := <-resps
		assert.Contains(t, resp, "HTTP/1.1 101 WebSocket Protocol Handshake")
		assert.Contains(t, resp, "Sec-WebSocket-Location: ws://example.com/demo")
		assert.Contains(t, resp, "8jKS'y:G*Co,Wxa-")
	})

	t.Run("unsupportedVersion", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		raw := strings.Replace(modernRequest, "Sec-WebSocket-Version: 13", "Sec-WebSocket-Version: 9", 1)
		resps := make(chan string, 1)
		errs := xsync.Go(func() error {
			resp, err := handshakeClientAll(clientConn, raw)
			resps <- resp
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)

		err = s.AcceptRequest(req)
		assert.ErrorIs(t, ErrNotSupported, err)
		assert.Equal(t, "state", StateClosed, s.State())

		assert.Success(t, <-errs)
		resp := <-resps
		assert.Contains(t, resp, "HTTP/1.1 400 Bad Request")
		assert.Contains(t, resp, "Sec-WebSocket-Version: 13, 8")
	})

	t.Run("invalidRequest", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		raw := strings.Replace(modernRequest, "Connection: Upgrade", "Connection: close", 1)
		resps := make(chan string, 1)
		errs := xsync.Go(func() error {
			resp, err := handshakeClientAll(clientConn, raw)
			resps <- resp
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)

		err = s.AcceptRequest(req)
		assert.Error(t, err)

		var mr *MalformedRequestError
		if !errors.As(err, &mr) {
			t.Fatalf("expected MalformedRequestError but got %T", err)
		}

		assert.Success(t, <-errs)
		assert.Contains(t, <-resps, "HTTP/1.1 400 Bad Request")
	})

	t.Run("garbageRequest", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		resps := make(chan string, 1)
		errs := xsync.Go(func() error {
			resp, err := handshakeClientAll(clientConn, "garbage\r\n\r\n")
			resps <- resp
			return err
		})

		_, err := s.ReadRequest()
		assert.Error(t, err)

		var mr *MalformedRequestError
		if !errors.As(err, &mr) {
			t.Fatalf("expected MalformedRequestError but got %T", err)
		}

		assert.Success(t, <-errs)
		assert.Contains(t, <-resps, "HTTP/1.1 400 Bad Request")
	})
}

func TestRejectRequest(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := net.Pipe()
	s := NewSession(serverConn, nil)

	resps := make(chan string, 1)
	errs := xsync.Go(func() error {
		resp, err := handshakeClientAll(clientConn, modernRequest)
		resps <- resp
		return err
	})

	req, err := s.ReadRequest()
	assert.Success(t, err)

	err = s.RejectRequest(req, "origin not allowed")
	assert.Error(t, err)

	var rej *RequestRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RequestRejectedError but got %T", err)
	}
	assert.Equal(t, "reason", "origin not allowed", rej.Reason)
	assert.Equal(t, "request", req, rej.Request)
	assert.Equal(t, "state", StateClosed, s.State())

	assert.Success(t, <-errs)
	resp := <-resps
	assert.Contains(t, resp, "HTTP/1.1 400 Bad Request")
	assert.Contains(t, resp, "origin not allowed")
}

func TestRequireFeatures(t *testing.T) {
	t.Parallel()

	t.Run("satisfied", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		errs := xsync.Go(func() error {
			_, err := handshakeClient(clientConn, modernRequest)
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)
		assert.Success(t, s.AcceptRequest(req))
		assert.Success(t, <-errs)

		err = s.RequireFeatures(FeatureBinaryMessages | FeatureCloseCodes | FeaturePingPong)
		assert.Success(t, err)
	})

	t.Run("missingOnLegacy", func(t *testing.T) {
		t.Parallel()

		clientConn, serverConn := net.Pipe()
		s := NewSession(serverConn, nil)

		errs := xsync.Go(func() error {
			resp, err := handshakeClient(clientConn, hixieRequest)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(resp, "HTTP/1.1 101 ") {
				return errors.New("expected protocol switch")
			}
			challenge := make([]byte, 16)
			_, err = io.ReadFull(clientConn, challenge)
			return err
		})

		req, err := s.ReadRequest()
		assert.Success(t, err)
		assert.Success(t, s.AcceptRequest(req))
		assert.Success(t, <-errs)

		resps := make(chan string, 1)
		errs = xsync.Go(func() error {
			resp, err := handshakeClientAll(clientConn, "")
			resps <- resp
			return err
		})

		err = s.RequireFeatures(FeatureBinaryMessages | FeaturePingPong)
		assert.Error(t, err)

		var mf *MissingFeaturesError
		if !errors.As(err, &mf) {
			t.Fatalf("expected MissingFeaturesError but got %T", err)
		}
		assert.Equal(t, "missing", FeatureBinaryMessages|FeaturePingPong, mf.Missing)

		assert.Success(t, <-errs)
		assert.Contains(t, <-resps, "HTTP/1.1 400 Bad Request")
	})
}
