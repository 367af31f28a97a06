// Package websock implements a multi draft WebSocket protocol engine.
//
// The engine negotiates the opening handshake across the hixie-76,
// hybi-08 and RFC 6455 drafts, encodes and decodes wire frames for
// the negotiated draft, reassembles fragmented frames into complete
// messages while interleaving control frames, and exposes a Session
// that multiple concurrent senders may use safely.
//
// The engine treats the transport as an opaque io.ReadWriteCloser.
// Use NewSession followed by ReadRequest and AcceptRequest to serve a
// raw connection, or UpgradeHTTP to serve from a net/http handler.
//
// Use the wsjson and wspb subpackages to exchange JSON or protobuf
// payloads instead of raw bytes.
package websock // import "github.com/websock-dev/websock"
