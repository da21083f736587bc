package wire

import "strconv"

// EventType identifies the inner event carried by an Envelope.
type EventType int

const (
	EventUnknown EventType = iota
	EventAck
	EventConnected
	EventAttach
	EventDetach
	EventSubscribe
	EventUnsubscribe
	EventMessage
	EventHeartbeat
	EventDisconnect
	EventError
)

// Valid reports whether the event type is part of the protocol.
func (eventType EventType) Valid() bool {
	return eventType >= EventAck && eventType <= EventError
}

func (eventType EventType) String() string {
	switch eventType {
	case EventAck:
		return "ack"
	case EventConnected:
		return "connected"
	case EventAttach:
		return "attach"
	case EventDetach:
		return "detach"
	case EventSubscribe:
		return "subscribe"
	case EventUnsubscribe:
		return "unsubscribe"
	case EventMessage:
		return "message"
	case EventHeartbeat:
		return "heartbeat"
	case EventDisconnect:
		return "disconnect"
	case EventError:
		return "error"
	default:
		return "unknown(" + strconv.Itoa(int(eventType)) + ")"
	}
}
