package websock

import "context"

// Sender is a send-only handle bound to a session. It routes every
// call through the session's exclusive write section, so it is safe
// to hand to any number of goroutines without racing the codec or
// the receive loop.
type Sender struct {
	s *Session
}

// MessageSender returns a handle for sending messages from other
// goroutines.
func (s *Session) MessageSender() *Sender {
	return &Sender{s: s}
}

// SendText sends p as one complete text frame.
func (sn *Sender) SendText(ctx context.Context, p []byte) error {
	return sn.s.SendText(ctx, p)
}

// SendBinary sends p as one complete binary frame.
func (sn *Sender) SendBinary(ctx context.Context, p []byte) error {
	return sn.s.SendBinary(ctx, p)
}

// Ping sends a ping control frame.
func (sn *Sender) Ping(ctx context.Context, payload []byte) error {
	return sn.s.Ping(ctx, payload)
}

// SendFrame sends one validated frame.
func (sn *Sender) SendFrame(ctx context.Context, f Frame) error {
	return sn.s.SendFrame(ctx, f)
}
