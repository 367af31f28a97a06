package websock

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// FeatureSet is a set of named protocol capabilities. A given
// protocol version supports some subset of them.
type FeatureSet uint

// Feature constants.
const (
	// FeatureBinaryMessages marks support for binary data messages.
	FeatureBinaryMessages FeatureSet = 1 << iota
	// FeatureCloseCodes marks support for structured close codes.
	FeatureCloseCodes
	// FeaturePingPong marks support for ping and pong control frames.
	FeaturePingPong
	// FeatureMasking marks that client to server frames are masked.
	FeatureMasking
)

// Has reports whether s contains every feature in fs.
func (s FeatureSet) Has(fs FeatureSet) bool {
	return s&fs == fs
}

func (s FeatureSet) String() string {
	if s == 0 {
		return "[]"
	}
	names := []string{}
	for _, f := range []struct {
		bit  FeatureSet
		name string
	}{
		{FeatureBinaryMessages, "BinaryMessages"},
		{FeatureCloseCodes, "CloseCodes"},
		{FeaturePingPong, "PingPong"},
		{FeatureMasking, "Masking"},
	} {
		if s&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Protocol identifies one WebSocket draft and owns its encode and
// decode rules, its feature set and its handshake accept response.
// Exactly one Protocol is selected per session and is immutable for
// the session's lifetime.
type Protocol struct {
	name     string
	version  int
	features FeatureSet

	readFrame      func(r *bufio.Reader, requireMask bool, limit int64) (Frame, error)
	writeFrame     func(w *bufio.Writer, f Frame, masked bool) error
	acceptResponse func(req *Request) (*Response, error)
}

// Name returns the draft name, e.g. "RFC 6455".
func (p *Protocol) Name() string { return p.name }

// Version returns the Sec-WebSocket-Version number, or 0 for the
// legacy draft which predates the version header.
func (p *Protocol) Version() int { return p.version }

// Features returns the capabilities this draft supports.
func (p *Protocol) Features() FeatureSet { return p.features }

func (p *Protocol) String() string { return p.name }

// The closed set of supported drafts, newest first.
var (
	// RFC6455 is the modern length-prefixed draft, version 13.
	RFC6455 = &Protocol{
		name:     "RFC 6455",
		version:  13,
		features: FeatureBinaryMessages | FeatureCloseCodes | FeaturePingPong | FeatureMasking,

		readFrame:      readModernFrame,
		writeFrame:     writeModernFrame,
		acceptResponse: modernAcceptResponse,
	}

	// Hybi08 is the draft-ietf-hybi-08 revision, version 8. It
	// shares the RFC 6455 wire format.
	Hybi08 = &Protocol{
		name:     "hybi-08",
		version:  8,
		features: FeatureBinaryMessages | FeatureCloseCodes | FeaturePingPong | FeatureMasking,

		readFrame:      readModernFrame,
		writeFrame:     writeModernFrame,
		acceptResponse: modernAcceptResponse,
	}

	// Hixie76 is the legacy delimiter-framed draft. Text only, no
	// masking, no close codes, no ping or pong.
	Hixie76 = &Protocol{
		name:     "hixie-76",
		version:  0,
		features: 0,

		readFrame:      readLegacyFrame,
		writeFrame:     writeLegacyFrame,
		acceptResponse: hixieAcceptResponse,
	}

	protocols = []*Protocol{RFC6455, Hybi08, Hixie76}
)

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// secWebSocketAccept computes the Sec-WebSocket-Accept digest of a
// client key. See https://tools.ietf.org/html/rfc6455#section-4.2.2
func secWebSocketAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write(keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func modernAcceptResponse(req *Request) (*Response, error) {
	resp := &Response{
		StatusCode: 101,
		Reason:     "Switching Protocols",
	}
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Accept", secWebSocketAccept(req.Header.Get("Sec-WebSocket-Key")))
	return resp, nil
}

func hixieAcceptResponse(req *Request) (*Response, error) {
	challenge, err := hixieChallenge(
		req.Header.Get("Sec-WebSocket-Key1"),
		req.Header.Get("Sec-WebSocket-Key2"),
		req.Key3,
	)
	if err != nil {
		return nil, errMalformed("failed to compute hixie-76 challenge: %v", err)
	}

	scheme := "ws"
	if req.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}

	resp := &Response{
		StatusCode: 101,
		Reason:     "WebSocket Protocol Handshake",
		Body:       challenge,
	}
	resp.Header.Set("Upgrade", "WebSocket")
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Sec-WebSocket-Origin", req.Header.Get("Origin"))
	resp.Header.Set("Sec-WebSocket-Location", scheme+"://"+req.Header.Get("Host")+req.Path)
	return resp, nil
}
