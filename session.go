package websock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

// Session lifecycle. Every transition is one way: Handshaking to
// Open on the accept response, Open to Closing on sending or
// receiving a close frame, Closing to Closed once the transport is
// released. Any transport failure jumps straight to Closed.
const (
	StateHandshaking SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "Handshaking"
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// SessionOptions configures a Session. The zero value is usable.
type SessionOptions struct {
	// OnPong is invoked from the receive loop for every pong frame,
	// before the loop continues reading. Pongs are never surfaced
	// through the data message methods.
	OnPong func(payload []byte)

	// ReadLimit caps the byte size of a single message, counted
	// across fragments. 0 means the default of 32768 and a negative
	// value disables the limit. When the limit is hit the session is
	// closed with StatusMessageTooBig.
	ReadLimit int64

	// KeepaliveInterval starts a background ticker emitting ping
	// frames on the serialized send path once the session is open.
	// 0 disables keepalive. The ticker stops when the session
	// reaches Closed.
	KeepaliveInterval time.Duration

	// ReadRateLimiter, if set, is waited on before every frame read.
	ReadRateLimiter *rate.Limiter
}

// Session owns the negotiated protocol version, the reassembly state
// and the serialized write path of one WebSocket connection.
//
// All send methods may be called concurrently; each frame is written
// atomically with respect to the wire. There is exactly one logical
// receiver per session: a receive started while another is in
// progress fails immediately.
type Session struct {
	rwc    io.ReadWriteCloser
	br     *bufio.Reader
	bw     *bufio.Writer
	client bool
	opts   SessionOptions

	// proto is nil until negotiation and immutable afterwards.
	proto *Protocol

	state int32 // SessionState, atomic

	writeMu mu
	readMu  mu

	// demux is owned by the receive loop under readMu.
	demux *demuxState

	closed       chan struct{}
	closeMu      sync.Mutex
	closeErrOnce sync.Once
	closeErr     error
}

// NewSession wraps an accepted transport connection in a server side
// Session in the Handshaking state. Use ReadRequest and
// AcceptRequest or RejectRequest to drive the handshake.
func NewSession(rwc io.ReadWriteCloser, opts *SessionOptions) *Session {
	return newSession(rwc, nil, false, StateHandshaking, opts)
}

// NewClientSession wraps a transport whose handshake already
// happened elsewhere in a client side Session speaking proto.
// Outgoing frames are masked when the draft requires it.
func NewClientSession(rwc io.ReadWriteCloser, proto *Protocol, opts *SessionOptions) *Session {
	s := newSession(rwc, proto, true, StateOpen, opts)
	s.startKeepalive()
	return s
}

func newSession(rwc io.ReadWriteCloser, proto *Protocol, client bool, state SessionState, opts *SessionOptions) *Session {
	s := &Session{
		rwc:    rwc,
		br:     bufio.NewReader(rwc),
		bw:     bufio.NewWriter(rwc),
		client: client,
		proto:  proto,
		state:  int32(state),
		closed: make(chan struct{}),
	}
	if opts != nil {
		s.opts = *opts
	}
	return s
}

// Protocol returns the negotiated protocol version, or nil while the
// session is still handshaking.
func (s *Session) Protocol() *Protocol { return s.proto }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st SessionState) {
	atomic.StoreInt32(&s.state, int32(st))
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) setCloseErr(err error) {
	s.closeErrOnce.Do(func() {
		s.closeErr = fmt.Errorf("websock session closed: %w", err)
	})
}

// close is the single terminal transition. It is idempotent and
// safe from any goroutine; the keepalive ticker and all pending
// sends observe s.closed.
func (s *Session) close(err error) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.isClosed() {
		return
	}
	s.setCloseErr(err)
	s.setState(StateClosed)
	close(s.closed)

	s.rwc.Close()
}

// Close sends a close frame with the given status and reason and
// then releases the transport. On drafts without structured close
// codes the code and reason are dropped and the bare close token is
// sent. Close is safe to call multiple times and concurrently with
// the receive loop.
func (s *Session) Close(code StatusCode, reason string) error {
	if s.isClosed() {
		return nil
	}
	if s.State() == StateHandshaking {
		s.close(fmt.Errorf("%w: closed before handshake completion", ErrConnectionClosed))
		return nil
	}

	f := Frame{Fin: true, Opcode: OpClose}
	if s.proto.features.Has(FeatureCloseCodes) {
		p, err := CloseError{Code: code, Reason: reason}.bytes()
		if err != nil {
			return fmt.Errorf("failed to marshal close frame: %w", err)
		}
		f.Payload = p
	}

	s.setState(StateClosing)
	sendErr := s.sendFrame(context.Background(), f)
	s.close(fmt.Errorf("%w: sent close frame with status %v", ErrConnectionClosed, code))
	if sendErr != nil && !errors.Is(sendErr, ErrConnectionClosed) {
		return fmt.Errorf("failed to send close frame: %w", sendErr)
	}
	return nil
}

// SendFrame validates f and writes it on the serialized send path as
// one atomic wire write.
func (s *Session) SendFrame(ctx context.Context, f Frame) error {
	if st := s.State(); st != StateOpen && st != StateClosing {
		return fmt.Errorf("cannot send frame in state %v", st)
	}
	if err := f.validate(); err != nil {
		return err
	}
	if f.Opcode == OpBinary && !s.proto.features.Has(FeatureBinaryMessages) {
		return fmt.Errorf("%s does not support binary messages", s.proto)
	}
	if (f.Opcode == OpPing || f.Opcode == OpPong) && !s.proto.features.Has(FeaturePingPong) {
		return fmt.Errorf("%s does not support ping and pong frames", s.proto)
	}
	return s.sendFrame(ctx, f)
}

// sendFrame is the exclusive write section every outgoing frame
// routes through. Whole frames only; the engine never fragments
// outgoing data, so per frame exclusion is all the atomicity the
// wire needs.
func (s *Session) sendFrame(ctx context.Context, f Frame) error {
	err := s.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return s.closeErr
	}

	err = s.proto.writeFrame(s.bw, f, s.client)
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		s.close(err)
		return err
	}
	return nil
}

// SendDataMessage sends m as one complete frame of its type.
func (s *Session) SendDataMessage(ctx context.Context, m DataMessage) error {
	err := s.SendFrame(ctx, Frame{Fin: true, Opcode: m.Type.opcode(), Payload: m.Payload})
	if err != nil {
		return fmt.Errorf("failed to send %v: %w", m.Type, err)
	}
	return nil
}

// SendText sends p as one complete text frame.
func (s *Session) SendText(ctx context.Context, p []byte) error {
	err := s.SendFrame(ctx, Frame{Fin: true, Opcode: OpText, Payload: p})
	if err != nil {
		return fmt.Errorf("failed to send text message: %w", err)
	}
	return nil
}

// SendBinary sends p as one complete binary frame. It fails on
// drafts without binary support.
func (s *Session) SendBinary(ctx context.Context, p []byte) error {
	err := s.SendFrame(ctx, Frame{Fin: true, Opcode: OpBinary, Payload: p})
	if err != nil {
		return fmt.Errorf("failed to send binary message: %w", err)
	}
	return nil
}

// Ping sends a ping control frame. Pongs are observed through
// SessionOptions.OnPong by whichever goroutine runs the receive
// loop.
func (s *Session) Ping(ctx context.Context, payload []byte) error {
	err := s.SendFrame(ctx, Frame{Fin: true, Opcode: OpPing, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}
	return nil
}

// SendResponse writes a handshake response on the serialized send
// path.
func (s *Session) SendResponse(ctx context.Context, resp *Response) error {
	err := s.writeMu.Lock(ctx)
	if err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return s.closeErr
	}

	err = resp.write(s.bw)
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		s.close(err)
		return err
	}
	return nil
}

func (s *Session) readLimit() int64 {
	switch {
	case s.opts.ReadLimit == 0:
		return 32768
	case s.opts.ReadLimit < 0:
		return 0
	}
	return s.opts.ReadLimit
}

// ReceiveFrame reads exactly one validated frame off the transport.
// Most callers want ReceiveDataMessage or ReceiveData instead, which
// handle control frames.
func (s *Session) ReceiveFrame(ctx context.Context) (Frame, error) {
	if !s.readMu.TryLock() {
		return Frame{}, errReceiveInProgress
	}
	defer s.readMu.Unlock()

	return s.receiveFrame(ctx)
}

// errReceiveInProgress enforces the single receiver contract: a
// second concurrent receive fails fast instead of queueing behind the
// first.
var errReceiveInProgress = errors.New("websock: another receive is in progress")

// receiveFrame requires readMu.
func (s *Session) receiveFrame(ctx context.Context) (Frame, error) {
	if s.isClosed() {
		return Frame{}, s.closeErr
	}
	if s.State() == StateHandshaking {
		return Frame{}, errors.New("cannot receive frame before handshake completion")
	}

	if rl := s.opts.ReadRateLimiter; rl != nil {
		err := rl.Wait(ctx)
		if err != nil {
			return Frame{}, err
		}
	}

	requireMask := !s.client && s.proto.features.Has(FeatureMasking)
	f, err := s.proto.readFrame(s.br, requireMask, s.readLimit())
	if err != nil {
		return Frame{}, s.fail(err)
	}
	return f, nil
}

// fail terminates the session on a receive path error. Framing and
// ordering violations send a close frame naming the violation first,
// so the peer learns why; a transport end has no one left to tell.
func (s *Session) fail(err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		s.writeError(pe.status, err)
	}
	s.close(err)
	return err
}

// writeError sends a best effort close frame describing err.
func (s *Session) writeError(code StatusCode, err error) {
	if s.isClosed() || !s.State().writable() {
		return
	}
	f := Frame{Fin: true, Opcode: OpClose}
	if s.proto.features.Has(FeatureCloseCodes) {
		reason := err.Error()
		if len(reason) > maxControlPayload-2 {
			reason = reason[:maxControlPayload-2]
		}
		p, err := CloseError{Code: code, Reason: reason}.bytes()
		if err != nil {
			return
		}
		f.Payload = p
	}
	s.setState(StateClosing)
	s.sendFrame(context.Background(), f)
}

func (st SessionState) writable() bool {
	return st == StateOpen || st == StateClosing
}

// ReceiveMessage reads frames until the demultiplexer completes a
// message and returns it. Ping and pong frames surface as messages;
// a close frame is answered with a matching close frame, moves the
// session to Closed and returns an error matching
// ErrConnectionClosed (inspect it with errors.As and *CloseError).
func (s *Session) ReceiveMessage(ctx context.Context) (Message, error) {
	if !s.readMu.TryLock() {
		return nil, errReceiveInProgress
	}
	defer s.readMu.Unlock()

	return s.receiveMessage(ctx)
}

// receiveMessage requires readMu.
func (s *Session) receiveMessage(ctx context.Context) (Message, error) {
	for {
		f, err := s.receiveFrame(ctx)
		if err != nil {
			return nil, err
		}

		msg, st, err := demuxStep(s.demux, f)
		s.demux = st
		if err != nil {
			return nil, s.fail(err)
		}

		if limit := s.readLimit(); limit > 0 && s.demux != nil && int64(len(s.demux.buf)) > limit {
			s.demux = nil
			return nil, s.fail(errTooBig("message beyond %d bytes, limit reached", limit))
		}

		if msg == nil {
			continue
		}
		if cm, ok := msg.(CloseMessage); ok {
			return nil, s.handleClose(cm)
		}
		return msg, nil
	}
}

// handleClose answers a received close frame with a matching close
// frame before finalizing, then reports the close to the caller.
func (s *Session) handleClose(cm CloseMessage) error {
	s.demux = nil

	echo := Frame{Fin: true, Opcode: OpClose}
	if s.proto.features.Has(FeatureCloseCodes) && validWireCloseCode(cm.Code) {
		if p, err := (CloseError{Code: cm.Code, Reason: cm.Reason}).bytes(); err == nil {
			echo.Payload = p
		}
	}
	s.setState(StateClosing)
	s.sendFrame(context.Background(), echo)

	err := fmt.Errorf("received close frame: %w", CloseError{Code: cm.Code, Reason: cm.Reason})
	s.close(err)
	return err
}

// ReceiveDataMessage reads until a complete data message arrives.
// Pings are answered with pongs on the serialized send path, pongs
// invoke the OnPong callback, and neither is surfaced.
func (s *Session) ReceiveDataMessage(ctx context.Context) (DataMessage, error) {
	if !s.readMu.TryLock() {
		return DataMessage{}, errReceiveInProgress
	}
	defer s.readMu.Unlock()

	for {
		msg, err := s.receiveMessage(ctx)
		if err != nil {
			return DataMessage{}, err
		}

		switch m := msg.(type) {
		case DataMessage:
			return m, nil
		case PingMessage:
			err = s.sendFrame(ctx, Frame{Fin: true, Opcode: OpPong, Payload: m.Payload})
			if err != nil {
				return DataMessage{}, fmt.Errorf("failed to answer ping: %w", err)
			}
		case PongMessage:
			if s.opts.OnPong != nil {
				s.opts.OnPong(m.Payload)
			}
		}
	}
}

// ReceiveData is a convenience wrapper around ReceiveDataMessage
// returning only the payload.
func (s *Session) ReceiveData(ctx context.Context) ([]byte, error) {
	m, err := s.ReceiveDataMessage(ctx)
	if err != nil {
		return nil, err
	}
	return m.Payload, nil
}

func (s *Session) startKeepalive() {
	if s.opts.KeepaliveInterval <= 0 || !s.proto.features.Has(FeaturePingPong) {
		return
	}
	go s.keepalive()
}

// keepalive emits pings at the configured interval on the serialized
// send path until the session reaches Closed. A failed ping has
// already closed the session, so the ticker simply stops.
func (s *Session) keepalive() {
	t := time.NewTicker(s.opts.KeepaliveInterval)
	defer t.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
		}

		err := s.sendFrame(context.Background(), Frame{Fin: true, Opcode: OpPing})
		if err != nil {
			return
		}
	}
}

// mu is a context aware mutex.
type mu struct {
	once sync.Once
	ch   chan struct{}
}

func (m *mu) init() {
	m.once.Do(func() {
		m.ch = make(chan struct{}, 1)
	})
}

func (m *mu) Lock(ctx context.Context) error {
	m.init()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.ch <- struct{}{}:
		return nil
	}
}

func (m *mu) TryLock() bool {
	m.init()
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *mu) Unlock() {
	<-m.ch
}
