package realtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Thejuampi/realtime-client-go/wire"
)

// Channel is a handle on one named channel. Handles are cheap and safe for
// concurrent use; every operation is handed to the client's executor and
// returns without waiting for the network.
type Channel struct {
	name   string
	client *Client
}

// Name returns the channel name.
func (channel *Channel) Name() string {
	return channel.name
}

// Attach sends an attach frame unless the channel is already attached.
func (channel *Channel) Attach() {
	channel.client.executor.post(func() {
		channel.client.channels.attach(channel.name)
	})
}

// Detach sends a detach frame if the channel is attached. Subscriptions and
// the replay position are kept.
func (channel *Channel) Detach() {
	channel.client.executor.post(func() {
		channel.client.channels.detach(channel.name)
	})
}

// Subscribe registers handler for messages named messageName, attaching the
// channel if needed. Only the first subscription of the channel sends a
// subscribe frame. The returned id removes the handler via Unsubscribe.
// A nil handler is reported to the exception listener and yields id 0.
func (channel *Channel) Subscribe(messageName string, handler MessageHandler) ListenerID {
	if handler == nil {
		channel.client.executor.post(func() {
			channel.client.reportException(NewError(MessageHandlerError, fmt.Sprintf("nil handler for %s/%s", channel.name, messageName)))
		})
		return 0
	}
	id := channel.client.newListenerID()
	channel.client.executor.post(func() {
		channel.client.channels.subscribe(channel.name, messageName, id, handler)
	})
	return id
}

// Unsubscribe removes one handler. The channel is unsubscribed once no
// handler is left.
func (channel *Channel) Unsubscribe(messageName string, id ListenerID) {
	channel.client.executor.post(func() {
		channel.client.channels.unsubscribe(channel.name, messageName, id)
	})
}

// UnsubscribeAll removes every handler of the channel.
func (channel *Channel) UnsubscribeAll() {
	channel.client.executor.post(func() {
		channel.client.channels.unsubscribeAll(channel.name)
	})
}

// UnsubscribeAllFrom removes every handler registered under messageName.
func (channel *Channel) UnsubscribeAllFrom(messageName string) {
	channel.client.executor.post(func() {
		channel.client.channels.unsubscribeAllFrom(channel.name, messageName)
	})
}

// Publish encodes data with the client encoding and hands a message frame to
// the send path. It returns once the frame is handed off; frames published
// while offline are queued and flushed on the next connection.
func (channel *Channel) Publish(messageName string, data any) error {
	client := channel.client
	payload, err := wire.Marshal(client.config.Encoding, data)
	if err != nil {
		return NewError(EncodingError, err)
	}

	_, span := client.tracer.Start(context.Background(), "realtime.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("realtime.channel", channel.name),
			attribute.String("realtime.message_name", messageName),
			attribute.Int("realtime.payload_bytes", len(payload)),
		),
	)
	client.executor.post(func() {
		defer span.End()
		span.SetAttributes(attribute.String("realtime.state", client.transport.state.String()))
		client.transport.sendEvent(channel.name, &wire.MessageEvent{
			Channel: channel.name,
			Name:    messageName,
			Data:    payload,
		})
	})
	return nil
}
