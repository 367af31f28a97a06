package websock

import (
	"errors"
	"testing"

	"github.com/websock-dev/websock/internal/test/assert"
)

func TestDemuxStep(t *testing.T) {
	t.Parallel()

	t.Run("singleFrameMessage", func(t *testing.T) {
		t.Parallel()

		m, st, err := demuxStep(nil, Frame{Fin: true, Opcode: OpText, Payload: []byte("hi")})
		assert.Success(t, err)
		assert.Equal(t, "state", (*demuxState)(nil), st)
		assert.Equal(t, "message", DataMessage{Type: MessageText, Payload: []byte("hi")}, m)
	})

	t.Run("fragmentedText", func(t *testing.T) {
		t.Parallel()

		frames := []Frame{
			{Fin: false, Opcode: OpText, Payload: []byte("he")},
			{Fin: false, Opcode: OpContinuation, Payload: []byte("llo ")},
			{Fin: true, Opcode: OpContinuation, Payload: []byte("world")},
		}

		var (
			st   *demuxState
			msgs []Message
		)
		for _, f := range frames {
			var m Message
			var err error
			m, st, err = demuxStep(st, f)
			assert.Success(t, err)
			if m != nil {
				msgs = append(msgs, m)
			}
		}

		assert.Equal(t, "state", (*demuxState)(nil), st)
		assert.Equal(t, "messages", []Message{
			DataMessage{Type: MessageText, Payload: []byte("hello world")},
		}, msgs)
	})

	t.Run("pingInterleavedMidFragment", func(t *testing.T) {
		t.Parallel()

		m, st, err := demuxStep(nil, Frame{Fin: false, Opcode: OpBinary, Payload: []byte{1, 2}})
		assert.Success(t, err)
		assert.Equal(t, "mid-fragment message", nil, m)

		m, st, err = demuxStep(st, Frame{Fin: true, Opcode: OpPing, Payload: []byte("hb")})
		assert.Success(t, err)
		assert.Equal(t, "ping", PingMessage{Payload: []byte("hb")}, m)
		if st == nil {
			t.Fatal("control frame cleared reassembly state")
		}

		m, st, err = demuxStep(st, Frame{Fin: true, Opcode: OpContinuation, Payload: []byte{3}})
		assert.Success(t, err)
		assert.Equal(t, "state", (*demuxState)(nil), st)
		assert.Equal(t, "message", DataMessage{Type: MessageBinary, Payload: []byte{1, 2, 3}}, m)
	})

	t.Run("orphanContinuation", func(t *testing.T) {
		t.Parallel()

		_, _, err := demuxStep(nil, Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("x")})
		assert.Error(t, err)

		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError but got %T", err)
		}
		assert.Contains(t, err, "without text or binary frame")
	})

	t.Run("newDataMidFragment", func(t *testing.T) {
		t.Parallel()

		_, st, err := demuxStep(nil, Frame{Fin: false, Opcode: OpText, Payload: []byte("he")})
		assert.Success(t, err)

		_, st2, err := demuxStep(st, Frame{Fin: true, Opcode: OpText, Payload: []byte("oops")})
		assert.Error(t, err)

		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError but got %T", err)
		}
		// The in-progress state survives so the session decides how to fail.
		assert.Equal(t, "state", st, st2)
	})

	t.Run("closeFrame", func(t *testing.T) {
		t.Parallel()

		m, st, err := demuxStep(nil, Frame{Fin: true, Opcode: OpClose, Payload: []byte{0x03, 0xe8, 'b', 'y', 'e'}})
		assert.Success(t, err)
		assert.Equal(t, "state", (*demuxState)(nil), st)
		assert.Equal(t, "message", CloseMessage{Code: StatusNormalClosure, Reason: "bye"}, m)
	})

	t.Run("invalidClosePayload", func(t *testing.T) {
		t.Parallel()

		_, _, err := demuxStep(nil, Frame{Fin: true, Opcode: OpClose, Payload: []byte{0x03}})
		assert.Error(t, err)

		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError but got %T", err)
		}
	})
}
