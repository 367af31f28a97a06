package websock

import (
	"errors"
	"fmt"
)

// ErrConnectionClosed is returned by the receive methods once the
// peer has sent a close frame or the transport has reached
// end-of-stream. It denotes a terminal but clean end, as opposed to
// a ProtocolError. Use errors.As with *CloseError to inspect the
// close code and reason, if any.
var ErrConnectionClosed = errors.New("websock: connection closed")

// ErrNotSupported is returned by SelectProtocol and AcceptRequest
// when no protocol version is mutually supported.
var ErrNotSupported = errors.New("websock: no mutually supported protocol version")

// ProtocolError denotes a framing or ordering violation: a bad
// continuation sequence, an oversized control frame, non-zero
// reserved bits or a malformed length encoding. It is fatal for the
// session; the same connection must not be reused.
type ProtocolError struct {
	Detail string

	// status is the close code sent to the peer before failing.
	status StatusCode
}

func (e *ProtocolError) Error() string {
	return "websock: protocol violation: " + e.Detail
}

func errProtocol(f string, v ...interface{}) error {
	return &ProtocolError{
		Detail: fmt.Sprintf(f, v...),
		status: StatusProtocolError,
	}
}

func errTooBig(f string, v ...interface{}) error {
	return &ProtocolError{
		Detail: fmt.Sprintf(f, v...),
		status: StatusMessageTooBig,
	}
}

// MalformedRequestError is returned by ReadRequest and AcceptRequest
// when the handshake request is structurally invalid or is missing a
// required header.
type MalformedRequestError struct {
	Detail string
}

func (e *MalformedRequestError) Error() string {
	return "websock: malformed handshake request: " + e.Detail
}

func errMalformed(f string, v ...interface{}) error {
	return &MalformedRequestError{Detail: fmt.Sprintf(f, v...)}
}

// RequestRejectedError is returned by RejectRequest after the
// rejection response has been sent.
type RequestRejectedError struct {
	Request *Request
	Reason  string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("websock: handshake request rejected: %s", e.Reason)
}

// MissingFeaturesError is returned by RequireFeatures after the
// error response has been sent. Missing holds exactly the required
// features the negotiated protocol version lacks.
type MissingFeaturesError struct {
	Missing FeatureSet
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("websock: negotiated protocol version lacks features %v", e.Missing)
}
