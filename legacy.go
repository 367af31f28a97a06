package websock

import (
	"bufio"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/websock-dev/websock/internal/errd"
)

// The hixie-76 draft has no frame header. A text frame is the
// payload sandwiched between a 0x00 start marker and a 0xFF end
// marker; the byte pair 0xFF 0x00 closes the connection. There is no
// masking, no length field and no binary, ping or pong frames.
const (
	legacyFrameStart = 0x00
	legacyFrameEnd   = 0xFF
)

// readLegacyFrame reads exactly one delimited frame.
func readLegacyFrame(r *bufio.Reader, _ bool, limit int64) (Frame, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Frame{}, connClosed(err)
	}

	switch b {
	case legacyFrameStart:
		var p []byte
		for {
			b, err = r.ReadByte()
			if err != nil {
				return Frame{}, connClosed(fmt.Errorf("failed to read frame payload: %w", err))
			}
			if b == legacyFrameEnd {
				return Frame{
					Fin:     true,
					Opcode:  OpText,
					Payload: p,
				}, nil
			}
			if limit > 0 && int64(len(p)) >= limit {
				return Frame{}, errTooBig("received frame payload beyond %d bytes, limit reached", limit)
			}
			p = append(p, b)
		}
	case legacyFrameEnd:
		b, err = r.ReadByte()
		if err != nil {
			return Frame{}, connClosed(err)
		}
		if b != legacyFrameStart {
			return Frame{}, errProtocol("received closing byte 0xFF followed by 0x%02X, not 0x00", b)
		}
		return Frame{
			Fin:    true,
			Opcode: OpClose,
		}, nil
	default:
		return Frame{}, errProtocol("received frame starting with 0x%02X, not a frame marker", b)
	}
}

// writeLegacyFrame writes f as one delimited frame. Only text and
// close frames exist on this draft. The caller flushes.
func writeLegacyFrame(w *bufio.Writer, f Frame, _ bool) (err error) {
	defer errd.Wrap(&err, "failed to write frame")

	switch f.Opcode {
	case OpText:
		err = w.WriteByte(legacyFrameStart)
		if err != nil {
			return err
		}
		_, err = w.Write(f.Payload)
		if err != nil {
			return err
		}
		return w.WriteByte(legacyFrameEnd)
	case OpClose:
		err = w.WriteByte(legacyFrameEnd)
		if err != nil {
			return err
		}
		return w.WriteByte(legacyFrameStart)
	}
	return fmt.Errorf("opcode %v cannot be encoded on the hixie-76 draft", f.Opcode)
}

// hixieChallenge computes the 16 byte hixie-76 handshake challenge
// response: MD5 over the two key numbers (digits divided by the space
// count, big endian) concatenated with the 8 key bytes that follow
// the request headers.
// See https://tools.ietf.org/html/draft-hixie-thewebsocketprotocol-76#section-1.3
func hixieChallenge(key1, key2 string, key3 []byte) ([]byte, error) {
	if len(key3) != 8 {
		return nil, fmt.Errorf("key3 must be 8 bytes but got %d", len(key3))
	}

	n1, err := hixieKeyNumber(key1)
	if err != nil {
		return nil, fmt.Errorf("bad Sec-WebSocket-Key1: %w", err)
	}
	n2, err := hixieKeyNumber(key2)
	if err != nil {
		return nil, fmt.Errorf("bad Sec-WebSocket-Key2: %w", err)
	}

	var b [16]byte
	binary.BigEndian.PutUint32(b[0:], n1)
	binary.BigEndian.PutUint32(b[4:], n2)
	copy(b[8:], key3)

	sum := md5.Sum(b[:])
	return sum[:], nil
}

// hixieKeyNumber extracts the digits of a hixie-76 key header and
// divides the resulting number by the count of space characters.
func hixieKeyNumber(key string) (uint32, error) {
	var digits uint64
	var spaces uint64
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			digits = digits*10 + uint64(r-'0')
			if digits > 1<<32-1 {
				return 0, fmt.Errorf("key digits in %q overflow 32 bits", key)
			}
		case r == ' ':
			spaces++
		}
	}
	if spaces == 0 {
		return 0, fmt.Errorf("key %q contains no spaces", key)
	}
	if digits%spaces != 0 {
		return 0, fmt.Errorf("key %q digits are not an integral multiple of its spaces", key)
	}
	return uint32(digits / spaces), nil
}

// validHixieKey reports whether a key header has the shape the
// challenge requires.
func validHixieKey(key string) bool {
	if !strings.Contains(key, " ") || !strings.ContainsAny(key, "0123456789") {
		return false
	}
	_, err := hixieKeyNumber(key)
	return err == nil
}
