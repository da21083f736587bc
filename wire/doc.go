// Package wire implements the realtime protocol codec.
//
// Every frame is an Envelope carrying an event type and an opaque inner event.
// The inner event is serialized first and embedded as bytes, then the envelope
// itself is serialized under the same Encoding. Message payloads are serialized
// a third time by the publisher, so user data is opaque to both outer layers.
//
// Two encodings are supported: EncodingMsgpack produces binary frames and
// EncodingJSON produces text frames where embedded bytes travel as base64.
package wire
