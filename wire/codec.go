package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the serialization used for every layer of a frame.
type Encoding int

const (
	EncodingMsgpack Encoding = iota
	EncodingJSON
)

var (
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrUnsupportedEncoding = errors.New("only json and msgpack encoding supported")
	ErrMalformedFrame      = errors.New("malformed frame")
)

func (encoding Encoding) String() string {
	switch encoding {
	case EncodingMsgpack:
		return "msgpack"
	case EncodingJSON:
		return "json"
	default:
		return "unsupported"
	}
}

// Text reports whether frames of this encoding travel as websocket text messages.
func (encoding Encoding) Text() bool {
	return encoding == EncodingJSON
}

// ParseEncoding maps the msg-encoding query value to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "msgpack", "":
		return EncodingMsgpack, nil
	case "json":
		return EncodingJSON, nil
	}
	return EncodingMsgpack, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// Marshal serializes one layer of a frame.
func Marshal(encoding Encoding, value any) ([]byte, error) {
	switch encoding {
	case EncodingMsgpack:
		return msgpack.Marshal(value)
	case EncodingJSON:
		return json.Marshal(value)
	}
	return nil, ErrUnsupportedEncoding
}

// Unmarshal deserializes one layer of a frame.
func Unmarshal(encoding Encoding, data []byte, value any) error {
	switch encoding {
	case EncodingMsgpack:
		return msgpack.Unmarshal(data, value)
	case EncodingJSON:
		return json.Unmarshal(data, value)
	}
	return ErrUnsupportedEncoding
}

// EncodeEnvelope wraps an already serialized inner event.
func EncodeEnvelope(encoding Encoding, eventType EventType, payload []byte) ([]byte, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(eventType))
	}
	return Marshal(encoding, &Envelope{EventType: eventType, Event: payload})
}

// DecodeEnvelope parses the outer layer of a frame and validates its event type.
func DecodeEnvelope(encoding Encoding, raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := Unmarshal(encoding, raw, &envelope); err != nil {
		if errors.Is(err, ErrUnsupportedEncoding) {
			return Envelope{}, err
		}
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !envelope.EventType.Valid() {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownEventType, int(envelope.EventType))
	}
	return envelope, nil
}

// Encode serializes a typed event and its envelope.
func Encode(encoding Encoding, event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrUnknownEventType)
	}
	payload, err := Marshal(encoding, event)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(encoding, event.EventType(), payload)
}

// Decode parses both layers of a frame.
func Decode(encoding Encoding, raw []byte) (Event, error) {
	envelope, err := DecodeEnvelope(encoding, raw)
	if err != nil {
		return nil, err
	}
	return DecodeEvent(encoding, envelope)
}

// DecodeEvent parses the inner event of a validated envelope.
func DecodeEvent(encoding Encoding, envelope Envelope) (Event, error) {
	event := newEvent(envelope.EventType)
	if event == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(envelope.EventType))
	}
	if len(envelope.Event) == 0 {
		return event, nil
	}
	if err := Unmarshal(encoding, envelope.Event, event); err != nil {
		return nil, fmt.Errorf("%w: %s event: %v", ErrMalformedFrame, envelope.EventType, err)
	}
	return event, nil
}
