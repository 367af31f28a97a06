// Package wsjson provides helpers for reading and writing JSON
// messages over a session.
package wsjson

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/websock-dev/websock"
)

// Read reads a JSON text message from s into v.
func Read(ctx context.Context, s *websock.Session, v interface{}) error {
	err := read(ctx, s, v)
	if err != nil {
		return fmt.Errorf("failed to read json: %w", err)
	}
	return nil
}

func read(ctx context.Context, s *websock.Session, v interface{}) error {
	m, err := s.ReceiveDataMessage(ctx)
	if err != nil {
		return err
	}

	if m.Type != websock.MessageText {
		return fmt.Errorf("unexpected message type for json (expected %v): %v", websock.MessageText, m.Type)
	}

	err = json.Unmarshal(m.Payload, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return nil
}

// Write writes v as a JSON text message to s.
func Write(ctx context.Context, s *websock.Session, v interface{}) error {
	err := write(ctx, s, v)
	if err != nil {
		return fmt.Errorf("failed to write json: %w", err)
	}
	return nil
}

func write(ctx context.Context, s *websock.Session, v interface{}) error {
	p, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal json: %w", err)
	}
	return s.SendText(ctx, p)
}
