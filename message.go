package websock

// MessageType represents the type of a WebSocket data message.
// See https://tools.ietf.org/html/rfc6455#section-5.6
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = iota + 1
	// MessageBinary is for binary messages like Protobufs.
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "MessageText"
	case MessageBinary:
		return "MessageBinary"
	}
	return "MessageInvalid"
}

func (t MessageType) opcode() Opcode {
	if t == MessageBinary {
		return OpBinary
	}
	return OpText
}

// Message is an application visible unit, either a complete data
// payload or a control signal, possibly assembled from multiple
// frames. It is one of DataMessage, PingMessage, PongMessage or
// CloseMessage.
type Message interface {
	message()
}

// DataMessage is a complete text or binary message.
type DataMessage struct {
	Type    MessageType
	Payload []byte
}

// PingMessage is a received ping control frame.
type PingMessage struct {
	Payload []byte
}

// PongMessage is a received pong control frame.
type PongMessage struct {
	Payload []byte
}

// CloseMessage is a received close control frame.
// For drafts without structured close codes the code is
// StatusNoStatusRcvd.
type CloseMessage struct {
	Code   StatusCode
	Reason string
}

func (DataMessage) message()  {}
func (PingMessage) message()  {}
func (PongMessage) message()  {}
func (CloseMessage) message() {}
