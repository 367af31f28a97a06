// Package wspb provides helpers for reading and writing protobuf
// messages over a session.
package wspb

import (
	"context"
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/websock-dev/websock"
)

// Read reads a protobuf binary message from s into v.
func Read(ctx context.Context, s *websock.Session, v proto.Message) error {
	err := read(ctx, s, v)
	if err != nil {
		return fmt.Errorf("failed to read protobuf: %w", err)
	}
	return nil
}

func read(ctx context.Context, s *websock.Session, v proto.Message) error {
	m, err := s.ReceiveDataMessage(ctx)
	if err != nil {
		return err
	}

	if m.Type != websock.MessageBinary {
		return fmt.Errorf("unexpected message type for protobuf (expected %v): %v", websock.MessageBinary, m.Type)
	}

	err = proto.Unmarshal(m.Payload, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}

// Write writes v as a protobuf binary message to s. The session's
// protocol version must support binary messages; check with
// RequireFeatures(websock.FeatureBinaryMessages) after the
// handshake.
func Write(ctx context.Context, s *websock.Session, v proto.Message) error {
	err := write(ctx, s, v)
	if err != nil {
		return fmt.Errorf("failed to write protobuf: %w", err)
	}
	return nil
}

func write(ctx context.Context, s *websock.Session, v proto.Message) error {
	p, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	return s.SendBinary(ctx, p)
}
