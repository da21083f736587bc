package wire

// Event is implemented by every typed inner event.
type Event interface {
	EventType() EventType
}

// Envelope is the outer wire structure.
type Envelope struct {
	EventType EventType `json:"event_type" msgpack:"event_type"`
	Event     []byte    `json:"event" msgpack:"event"`
}

// ConnectedEvent is sent by the broker once a socket is accepted.
type ConnectedEvent struct {
	SessionID string `json:"session_id" msgpack:"session_id"`
	SocketID  string `json:"socket_id" msgpack:"socket_id"`
}

type AttachEvent struct {
	Channel string `json:"channel" msgpack:"channel"`
}

type DetachEvent struct {
	Channel string `json:"channel" msgpack:"channel"`
}

// SubscribeEvent asks the broker to deliver channel messages after Position.
type SubscribeEvent struct {
	Channel  string `json:"channel" msgpack:"channel"`
	Name     string `json:"name" msgpack:"name"`
	Position string `json:"position" msgpack:"position"`
}

type UnsubscribeEvent struct {
	Channel string `json:"channel" msgpack:"channel"`
}

// MessageEvent carries one channel message. Data holds the publisher's
// already-encoded payload; ID is assigned by the broker.
type MessageEvent struct {
	ID      string `json:"id,omitempty" msgpack:"id,omitempty"`
	Channel string `json:"channel" msgpack:"channel"`
	Name    string `json:"name" msgpack:"name"`
	Data    []byte `json:"data" msgpack:"data"`
}

type HeartbeatEvent struct{}

type DisconnectEvent struct {
	Channel string `json:"channel" msgpack:"channel"`
}

// ErrorEvent is a broker or client side failure report.
type ErrorEvent struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

type AckEvent struct{}

func (*ConnectedEvent) EventType() EventType   { return EventConnected }
func (*AttachEvent) EventType() EventType      { return EventAttach }
func (*DetachEvent) EventType() EventType      { return EventDetach }
func (*SubscribeEvent) EventType() EventType   { return EventSubscribe }
func (*UnsubscribeEvent) EventType() EventType { return EventUnsubscribe }
func (*MessageEvent) EventType() EventType     { return EventMessage }
func (*HeartbeatEvent) EventType() EventType   { return EventHeartbeat }
func (*DisconnectEvent) EventType() EventType  { return EventDisconnect }
func (*ErrorEvent) EventType() EventType       { return EventError }
func (*AckEvent) EventType() EventType         { return EventAck }

func (event *ErrorEvent) Error() string {
	return event.Message
}

func newEvent(eventType EventType) Event {
	switch eventType {
	case EventConnected:
		return &ConnectedEvent{}
	case EventAttach:
		return &AttachEvent{}
	case EventDetach:
		return &DetachEvent{}
	case EventSubscribe:
		return &SubscribeEvent{}
	case EventUnsubscribe:
		return &UnsubscribeEvent{}
	case EventMessage:
		return &MessageEvent{}
	case EventHeartbeat:
		return &HeartbeatEvent{}
	case EventDisconnect:
		return &DisconnectEvent{}
	case EventError:
		return &ErrorEvent{}
	case EventAck:
		return &AckEvent{}
	}
	return nil
}
