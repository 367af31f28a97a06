package websock

import (
	"context"
	"errors"
	"fmt"

	"github.com/websock-dev/websock/internal/errd"
)

// ReadRequest parses the opening handshake request off the
// transport. A structurally invalid request is answered with a
// client-error response before MalformedRequestError is returned;
// the caller never sends its own error response.
func (s *Session) ReadRequest() (*Request, error) {
	if st := s.State(); st != StateHandshaking {
		return nil, fmt.Errorf("cannot read handshake request in state %v", st)
	}

	err := s.readMu.Lock(context.Background())
	if err != nil {
		return nil, err
	}
	defer s.readMu.Unlock()

	req, err := readRequest(s.br)
	if err != nil {
		var mr *MalformedRequestError
		if errors.As(err, &mr) {
			s.SendResponse(context.Background(), errorResponse(400, "Bad Request", mr.Detail))
		}
		s.close(err)
		return nil, err
	}
	return req, nil
}

// AcceptRequest validates req, negotiates the protocol version and
// sends the version specific accept response. After a successful
// return the session is Open. Every failure sends an appropriate
// client-error response before returning, per the handshake error
// contract.
func (s *Session) AcceptRequest(req *Request) (err error) {
	defer errd.Wrap(&err, "failed to accept handshake request")

	if st := s.State(); st != StateHandshaking {
		return fmt.Errorf("cannot accept handshake request in state %v", st)
	}

	err = validateRequest(req)
	if err != nil {
		s.SendResponse(context.Background(), errorResponse(400, "Bad Request", err.Error()))
		s.close(err)
		return err
	}

	p, err := SelectProtocol(req.Header)
	if err != nil {
		resp := errorResponse(400, "Bad Request", fmt.Sprintf("unsupported websocket version %q", req.Header.Get("Sec-WebSocket-Version")))
		resp.Header.Set("Sec-WebSocket-Version", supportedVersions())
		s.SendResponse(context.Background(), resp)
		s.close(err)
		return err
	}

	resp, err := p.acceptResponse(req)
	if err != nil {
		s.SendResponse(context.Background(), errorResponse(400, "Bad Request", err.Error()))
		s.close(err)
		return err
	}

	s.proto = p
	err = s.SendResponse(context.Background(), resp)
	if err != nil {
		return err
	}

	s.setState(StateOpen)
	s.startKeepalive()
	return nil
}

// RejectRequest sends a client-error response embedding reason and
// returns RequestRejectedError. The two always happen together. The
// transport is released afterwards.
func (s *Session) RejectRequest(req *Request, reason string) error {
	if st := s.State(); st != StateHandshaking {
		return fmt.Errorf("cannot reject handshake request in state %v", st)
	}

	rejErr := &RequestRejectedError{Request: req, Reason: reason}
	s.SendResponse(context.Background(), errorResponse(400, "Bad Request", reason))
	s.close(rejErr)
	return rejErr
}

// RequireFeatures checks the required features against the
// negotiated protocol version. When any are missing it sends a
// client-error response naming the versions that do support them and
// returns MissingFeaturesError holding exactly the missing set;
// otherwise it succeeds silently.
func (s *Session) RequireFeatures(required FeatureSet) error {
	if st := s.State(); st != StateOpen {
		return fmt.Errorf("cannot check features in state %v", st)
	}

	missing := required &^ s.proto.features
	if missing == 0 {
		return nil
	}

	resp := errorResponse(400, "Bad Request",
		fmt.Sprintf("%s does not support features %v", s.proto, missing))
	if vs := versionsSupporting(required); vs != "" {
		resp.Header.Set("Sec-WebSocket-Version", vs)
	}
	s.SendResponse(context.Background(), resp)

	return &MissingFeaturesError{Missing: missing}
}
