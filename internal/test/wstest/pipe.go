// Package wstest provides utilities for testing sessions.
package wstest

import (
	"fmt"
	"net"
	"strings"

	"github.com/websock-dev/websock"
	"github.com/websock-dev/websock/internal/errd"
	"github.com/websock-dev/websock/internal/test/xrand"
)

// Pipe is used to create an in memory connection between two
// sessions, analogous to net.Pipe. The handshake runs over the real
// wire format of proto.
func Pipe(proto *websock.Protocol, opts *websock.SessionOptions) (_, _ *websock.Session, err error) {
	defer errd.Wrap(&err, "failed to create session pipe")

	clientConn, serverConn := net.Pipe()

	server := websock.NewSession(serverConn, opts)
	acceptErrs := make(chan error, 1)
	go func() {
		req, err := server.ReadRequest()
		if err != nil {
			acceptErrs <- err
			return
		}
		acceptErrs <- server.AcceptRequest(req)
	}()

	err = writeClientRequest(clientConn, proto)
	if err != nil {
		return nil, nil, err
	}
	err = readServerResponse(clientConn, proto)
	if err != nil {
		return nil, nil, err
	}

	err = <-acceptErrs
	if err != nil {
		return nil, nil, fmt.Errorf("failed to accept pipe handshake: %w", err)
	}

	client := websock.NewClientSession(clientConn, proto, opts)
	return client, server, nil
}

func writeClientRequest(w net.Conn, proto *websock.Protocol) error {
	var req string
	if proto.Version() > 0 {
		req = "GET / HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			fmt.Sprintf("Sec-WebSocket-Key: %s\r\n", xrand.Base64(16)) +
			fmt.Sprintf("Sec-WebSocket-Version: %d\r\n", proto.Version()) +
			"\r\n"
	} else {
		// The example handshake of the hixie-76 draft, section 1.2.
		req = "GET / HTTP/1.1\r\n" +
			"Host: example.com\r\n" +
			"Upgrade: WebSocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Key1: 4 @1  46546xW%0l 1 5\r\n" +
			"Sec-WebSocket-Key2: 12998 5 Y3 1  .P00\r\n" +
			"Origin: http://example.com\r\n" +
			"\r\n" +
			"^n:ds[4U"
	}
	_, err := w.Write([]byte(req))
	if err != nil {
		return fmt.Errorf("failed to write client handshake: %w", err)
	}
	return nil
}

// readServerResponse consumes the handshake response byte by byte so
// no session payload bytes are read past the response boundary.
func readServerResponse(r net.Conn, proto *websock.Protocol) error {
	var resp []byte
	b := make([]byte, 1)
	for !strings.HasSuffix(string(resp), "\r\n\r\n") {
		_, err := r.Read(b)
		if err != nil {
			return fmt.Errorf("failed to read server handshake: %w", err)
		}
		resp = append(resp, b[0])
	}

	if !strings.HasPrefix(string(resp), "HTTP/1.1 101 ") {
		return fmt.Errorf("server did not switch protocols: %q", resp)
	}

	if proto.Version() == 0 {
		// The 16 byte hixie-76 challenge response follows the headers.
		challenge := make([]byte, 16)
		for read := 0; read < len(challenge); {
			n, err := r.Read(challenge[read:])
			if err != nil {
				return fmt.Errorf("failed to read hixie-76 challenge response: %w", err)
			}
			read += n
		}
	} else if !strings.Contains(string(resp), "Sec-WebSocket-Accept: ") {
		return fmt.Errorf("server response is missing Sec-WebSocket-Accept: %q", resp)
	}

	return nil
}
