package websock

// demuxState tracks a fragmented data message in progress. It exists
// only between the initiating frame and the fin-marked continuation;
// completion and session close both clear it.
type demuxState struct {
	typ MessageType
	buf []byte
}

// demuxStep feeds one frame into the reassembly state machine and
// returns the completed message, if any, plus the next state.
//
// Control frames pass straight through without touching the state,
// so they may interleave freely with an in-progress fragmented data
// message. Violations of the fragmentation ordering rules return a
// ProtocolError.
func demuxStep(st *demuxState, f Frame) (Message, *demuxState, error) {
	switch {
	case f.Opcode.controlOp():
		msg, err := controlMessage(f)
		if err != nil {
			return nil, st, err
		}
		return msg, st, nil

	case f.Opcode == OpContinuation:
		if st == nil {
			return nil, nil, errProtocol("received continuation frame without text or binary frame")
		}
		st.buf = append(st.buf, f.Payload...)
		if !f.Fin {
			return nil, st, nil
		}
		return DataMessage{
			Type:    st.typ,
			Payload: st.buf,
		}, nil, nil

	case f.Opcode.dataOp():
		if st != nil {
			return nil, st, errProtocol("received new data frame without finishing the previous message")
		}
		typ := MessageText
		if f.Opcode == OpBinary {
			typ = MessageBinary
		}
		if f.Fin {
			return DataMessage{
				Type:    typ,
				Payload: f.Payload,
			}, nil, nil
		}
		return nil, &demuxState{
			typ: typ,
			buf: append([]byte(nil), f.Payload...),
		}, nil

	default:
		return nil, st, errProtocol("received unknown opcode %v", int(f.Opcode))
	}
}

func controlMessage(f Frame) (Message, error) {
	switch f.Opcode {
	case OpPing:
		return PingMessage{Payload: f.Payload}, nil
	case OpPong:
		return PongMessage{Payload: f.Payload}, nil
	}

	ce, err := parseClosePayload(f.Payload)
	if err != nil {
		return nil, errProtocol("received invalid close payload: %v", err)
	}
	return CloseMessage{
		Code:   ce.Code,
		Reason: ce.Reason,
	}, nil
}
