package websock

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/websock-dev/websock/internal/bpool"
	"github.com/websock-dev/websock/internal/errd"
)

// Frame is one wire-level unit: a header plus payload. Control
// frames (Close, Ping, Pong) must have Fin set and a payload of at
// most 125 bytes. Masking is applied and removed by the codec and
// never surfaces here.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

func (f Frame) validate() error {
	if !f.Opcode.known() {
		return errProtocol("unknown opcode %v", int(f.Opcode))
	}
	if f.Opcode.controlOp() {
		if !f.Fin {
			return errProtocol("fragmented control frame %v", f.Opcode)
		}
		if len(f.Payload) > maxControlPayload {
			return errProtocol("control frame payload of %v bytes exceeds %v", len(f.Payload), maxControlPayload)
		}
	}
	return nil
}

// header represents a WebSocket frame header for the length-prefixed
// drafts. See https://tools.ietf.org/html/rfc6455#section-5.2.
type header struct {
	fin    bool
	rsv1   bool
	rsv2   bool
	rsv3   bool
	opcode Opcode

	payloadLength int64

	masked  bool
	maskKey uint32
}

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// connClosed maps transport end-of-stream onto ErrConnectionClosed.
// Hitting EOF part way into a frame is still a transport level end,
// distinct from a structurally invalid frame.
func connClosed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return err
}

// readFrameHeader reads a header from the reader.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
func readFrameHeader(r *bufio.Reader) (h header, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return header{}, err
	}

	h.fin = b&(1<<7) != 0
	h.rsv1 = b&(1<<6) != 0
	h.rsv2 = b&(1<<5) != 0
	h.rsv3 = b&(1<<4) != 0

	h.opcode = Opcode(b & 0xf)

	b, err = r.ReadByte()
	if err != nil {
		return header{}, err
	}

	h.masked = b&(1<<7) != 0

	payloadLength := b &^ (1 << 7)
	switch {
	case payloadLength < 126:
		h.payloadLength = int64(payloadLength)
	case payloadLength == 126:
		var pl uint16
		err = binary.Read(r, binary.BigEndian, &pl)
		h.payloadLength = int64(pl)
	case payloadLength == 127:
		err = binary.Read(r, binary.BigEndian, &h.payloadLength)
	}
	if err != nil {
		return header{}, err
	}

	if h.masked {
		err = binary.Read(r, binary.LittleEndian, &h.maskKey)
		if err != nil {
			return header{}, err
		}
	}

	return h, nil
}

// writeFrameHeader writes the bytes of the header to w using the
// minimal length encoding for the payload size.
// See https://tools.ietf.org/html/rfc6455#section-5.2
func writeFrameHeader(h header, w *bufio.Writer) (err error) {
	defer errd.Wrap(&err, "failed to write frame header")

	var b byte
	if h.fin {
		b |= 1 << 7
	}
	if h.rsv1 {
		b |= 1 << 6
	}
	if h.rsv2 {
		b |= 1 << 5
	}
	if h.rsv3 {
		b |= 1 << 4
	}

	b |= byte(h.opcode)

	err = w.WriteByte(b)
	if err != nil {
		return err
	}

	lengthByte := byte(0)
	if h.masked {
		lengthByte |= 1 << 7
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		lengthByte |= 127
	case h.payloadLength > 125:
		lengthByte |= 126
	case h.payloadLength >= 0:
		lengthByte |= byte(h.payloadLength)
	}
	err = w.WriteByte(lengthByte)
	if err != nil {
		return err
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		err = binary.Write(w, binary.BigEndian, h.payloadLength)
	case h.payloadLength > 125:
		err = binary.Write(w, binary.BigEndian, uint16(h.payloadLength))
	}
	if err != nil {
		return err
	}

	if h.masked {
		err = binary.Write(w, binary.LittleEndian, h.maskKey)
		if err != nil {
			return err
		}
	}

	return nil
}

// readModernFrame reads exactly one frame of the length-prefixed
// drafts. requireMask enforces the client-to-server masking rule.
// EOF before a complete frame maps to ErrConnectionClosed; every
// structural violation is a ProtocolError.
func readModernFrame(r *bufio.Reader, requireMask bool, limit int64) (Frame, error) {
	h, err := readFrameHeader(r)
	if err != nil {
		return Frame{}, connClosed(err)
	}

	if h.rsv1 || h.rsv2 || h.rsv3 {
		return Frame{}, errProtocol("received header with unexpected rsv bits set: %v:%v:%v", h.rsv1, h.rsv2, h.rsv3)
	}
	if !h.opcode.known() {
		return Frame{}, errProtocol("received unknown opcode %v", int(h.opcode))
	}
	if h.opcode.controlOp() {
		if !h.fin {
			return Frame{}, errProtocol("received fragmented control frame %v", h.opcode)
		}
		if h.payloadLength > maxControlPayload {
			return Frame{}, errProtocol("received control frame payload with invalid length: %d", h.payloadLength)
		}
	}
	if h.payloadLength < 0 {
		return Frame{}, errProtocol("received header with negative payload length: %d", h.payloadLength)
	}
	if h.masked != requireMask {
		if requireMask {
			return Frame{}, errProtocol("received unmasked frame from client")
		}
		return Frame{}, errProtocol("received masked frame from server")
	}
	if limit > 0 && h.payloadLength > limit {
		return Frame{}, errTooBig("received frame payload of %d bytes, limit is %d", h.payloadLength, limit)
	}

	p := make([]byte, h.payloadLength)
	_, err = io.ReadFull(r, p)
	if err != nil {
		return Frame{}, connClosed(fmt.Errorf("failed to read frame payload: %w", err))
	}

	if h.masked {
		mask(h.maskKey, p)
	}

	return Frame{
		Fin:     h.fin,
		Opcode:  h.opcode,
		Payload: p,
	}, nil
}

// writeModernFrame writes f as one frame of the length-prefixed
// drafts. If masked, a fresh key is generated and the payload is
// masked in a scratch copy so the caller's buffer is untouched.
// The caller flushes.
func writeModernFrame(w *bufio.Writer, f Frame, masked bool) (err error) {
	defer errd.Wrap(&err, "failed to write frame")

	err = f.validate()
	if err != nil {
		return err
	}

	h := header{
		fin:           f.Fin,
		opcode:        f.Opcode,
		masked:        masked,
		payloadLength: int64(len(f.Payload)),
	}

	p := f.Payload
	if masked {
		err = binary.Read(rand.Reader, binary.LittleEndian, &h.maskKey)
		if err != nil {
			return fmt.Errorf("failed to generate masking key: %w", err)
		}

		buf := bpool.Get()
		defer bpool.Put(buf)
		buf.Write(f.Payload)
		p = buf.Bytes()
		mask(h.maskKey, p)
	}

	err = writeFrameHeader(h, w)
	if err != nil {
		return err
	}

	_, err = w.Write(p)
	if err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}

	return nil
}
