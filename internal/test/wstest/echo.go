package wstest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/websock-dev/websock"
	"github.com/websock-dev/websock/internal/test/xrand"
)

// EchoLoop echos every data message received from s until an error
// occurs and returns that error.
func EchoLoop(ctx context.Context, s *websock.Session) error {
	defer s.Close(websock.StatusInternalError, "")

	for {
		m, err := s.ReceiveDataMessage(ctx)
		if err != nil {
			return err
		}

		err = s.SendDataMessage(ctx, m)
		if err != nil {
			return err
		}
	}
}

// Echo writes a random message of length n on s and checks it is
// echoed back intact.
func Echo(ctx context.Context, s *websock.Session, n int) error {
	p := []byte(xrand.String(n))

	err := s.SendText(ctx, p)
	if err != nil {
		return err
	}

	m, err := s.ReceiveDataMessage(ctx)
	if err != nil {
		return err
	}

	if m.Type != websock.MessageText {
		return fmt.Errorf("expected text message but got %v", m.Type)
	}
	if !bytes.Equal(p, m.Payload) {
		return fmt.Errorf("expected %q but got %q", p, m.Payload)
	}
	return nil
}
