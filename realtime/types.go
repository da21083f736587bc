package realtime

import "github.com/Thejuampi/realtime-client-go/wire"

// ConnectionState is the state of the connection state machine. The same
// values name the connection events delivered to listeners registered with On.
type ConnectionState int32

const (
	StateUninitialized ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
	StateClosing
	StateClosed
	StateFailed
)

func (state ConnectionState) String() string {
	switch state {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports states from which no automatic attempt follows.
func (state ConnectionState) terminal() bool {
	return state == StateClosed || state == StateFailed
}

// Session identifies one accepted connection. It is replaced on every reconnect.
type Session struct {
	SessionID string
	SocketID  string
}

// ErrorEvent is the payload of the error connection event.
type ErrorEvent = wire.ErrorEvent

// ListenerID identifies a registered callback so it can be removed later.
type ListenerID uint64

// ExceptionListener receives errors that are not tied to a connection event,
// such as undecodable frames or panicking callbacks.
type ExceptionListener interface {
	ExceptionThrown(error)
}

// ExceptionListenerFunc adapts a function to ExceptionListener.
type ExceptionListenerFunc func(error)

func (f ExceptionListenerFunc) ExceptionThrown(err error) { f(err) }

// Message is a channel message handed to subscribers.
type Message struct {
	ID      string
	Channel string
	Name    string
	Data    []byte

	encoding wire.Encoding
}

// Decode unmarshals the message payload with the client's encoding.
func (message Message) Decode(value any) error {
	if err := wire.Unmarshal(message.encoding, message.Data, value); err != nil {
		return NewError(EncodingError, err)
	}
	return nil
}

// MessageHandler receives channel messages.
type MessageHandler func(Message)
