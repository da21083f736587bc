package realtime

import (
	"sync"
	"testing"

	"github.com/Thejuampi/realtime-client-go/wire"
)

func TestSubscribeSendsAttachThenSubscribeOnce(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	channel := client.Channel("orders")
	channel.Subscribe("first", func(Message) {})
	channel.Subscribe("second", func(Message) {})
	channel.Attach()
	channel.Attach()
	syncExecutor(t, client)

	events := socket.events(t)
	if len(events) != 2 {
		t.Fatalf("expected attach and subscribe only, got %v", socket.eventTypes(t))
	}
	attach, ok := events[0].(*wire.AttachEvent)
	if !ok || attach.Channel != "orders" {
		t.Fatalf("expected attach for orders first, got %#v", events[0])
	}
	subscribe, ok := events[1].(*wire.SubscribeEvent)
	if !ok || subscribe.Channel != "orders" || subscribe.Name != "first" || subscribe.Position != startPosition {
		t.Fatalf("unexpected subscribe frame %#v", events[1])
	}
}

func TestDetachThenAttachDoesNotResubscribe(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingMsgpack, nil)
	socket := connectClient(t, client, factory, "session-1")

	channel := client.Channel("orders")
	channel.Subscribe("first", func(Message) {})
	channel.Detach()
	channel.Detach()
	channel.Attach()
	if err := channel.Publish("first", "hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	syncExecutor(t, client)

	expected := []wire.EventType{wire.EventAttach, wire.EventSubscribe, wire.EventDetach, wire.EventAttach, wire.EventMessage}
	got := socket.eventTypes(t)
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for index := range expected {
		if got[index] != expected[index] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}

func TestUnsubscribeSendsOnlyWhenNoListenerRemains(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	channel := client.Channel("orders")
	first := channel.Subscribe("first", func(Message) {})
	second := channel.Subscribe("second", func(Message) {})
	channel.Unsubscribe("first", first)
	syncExecutor(t, client)
	if socket.count(t, wire.EventUnsubscribe) != 0 {
		t.Fatalf("unsubscribe sent while a listener remains")
	}

	channel.Unsubscribe("second", second)
	channel.Unsubscribe("second", second)
	channel.UnsubscribeAll()
	syncExecutor(t, client)
	if count := socket.count(t, wire.EventUnsubscribe); count != 1 {
		t.Fatalf("expected one unsubscribe, got %d", count)
	}
}

func TestUnsubscribeAllFrom(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	channel := client.Channel("orders")
	channel.Subscribe("first", func(Message) {})
	channel.Subscribe("first", func(Message) {})
	channel.Subscribe("second", func(Message) {})

	channel.UnsubscribeAllFrom("first")
	syncExecutor(t, client)
	if socket.count(t, wire.EventUnsubscribe) != 0 {
		t.Fatalf("unsubscribe sent while second still has a listener")
	}

	channel.UnsubscribeAllFrom("second")
	syncExecutor(t, client)
	if count := socket.count(t, wire.EventUnsubscribe); count != 1 {
		t.Fatalf("expected one unsubscribe, got %d", count)
	}
}

func TestResubscribeCarriesLastPosition(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	channel := client.Channel("orders")
	id := channel.Subscribe("first", func(Message) {})
	syncExecutor(t, client)
	socket.deliver(t, &wire.MessageEvent{ID: "7", Channel: "orders", Name: "first", Data: mustMarshal(t, wire.EncodingJSON, "a")})
	channel.Unsubscribe("first", id)
	channel.Subscribe("first", func(Message) {})
	syncExecutor(t, client)

	var subscribes []*wire.SubscribeEvent
	for _, event := range socket.events(t) {
		if subscribe, ok := event.(*wire.SubscribeEvent); ok {
			subscribes = append(subscribes, subscribe)
		}
	}
	if len(subscribes) != 2 {
		t.Fatalf("expected two subscribe frames, got %d", len(subscribes))
	}
	if subscribes[1].Position != "7" {
		t.Fatalf("expected resubscribe from position 7, got %q", subscribes[1].Position)
	}
}

func TestDeliveryByMessageNameInOrder(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingMsgpack, nil)
	socket := connectClient(t, client, factory, "session-1")

	var lock sync.Mutex
	var calls []string
	record := func(tag string) MessageHandler {
		return func(message Message) {
			var text string
			if err := message.Decode(&text); err != nil {
				t.Errorf("decode: %v", err)
			}
			lock.Lock()
			calls = append(calls, tag+":"+text)
			lock.Unlock()
		}
	}

	channel := client.Channel("orders")
	channel.Subscribe("created", record("a"))
	channel.Subscribe("created", record("b"))
	channel.Subscribe("deleted", record("c"))
	syncExecutor(t, client)

	socket.deliver(t, &wire.MessageEvent{ID: "1", Channel: "orders", Name: "created", Data: mustMarshal(t, wire.EncodingMsgpack, "x")})
	socket.deliver(t, &wire.MessageEvent{ID: "2", Channel: "orders", Name: "updated", Data: mustMarshal(t, wire.EncodingMsgpack, "y")})
	socket.deliver(t, &wire.MessageEvent{ID: "3", Channel: "orders", Name: "deleted", Data: mustMarshal(t, wire.EncodingMsgpack, "z")})
	syncExecutor(t, client)

	lock.Lock()
	defer lock.Unlock()
	expected := []string{"a:x", "b:x", "c:z"}
	if len(calls) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, calls)
	}
	for index := range expected {
		if calls[index] != expected[index] {
			t.Fatalf("expected %v, got %v", expected, calls)
		}
	}
}

func TestMessageForUnknownChannelEmitsError(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	errorsSeen := make(chan ErrorEvent, 1)
	client.OnError(func(event ErrorEvent) { errorsSeen <- event })
	client.Channel("attached-only").Attach()
	syncExecutor(t, client)

	socket.deliver(t, &wire.MessageEvent{ID: "1", Channel: "attached-only", Name: "x"})
	syncExecutor(t, client)

	select {
	case event := <-errorsSeen:
		if event.Code != UnknownChannelError {
			t.Fatalf("expected UnknownChannelError, got %d", event.Code)
		}
	default:
		t.Fatalf("expected an error event")
	}
	if client.State() != StateConnected {
		t.Fatalf("error event must not change state, got %s", client.State())
	}
}

func TestPanickingListenerIsReported(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	reported := make(chan error, 1)
	client.SetExceptionListener(ExceptionListenerFunc(func(err error) { reported <- err }))

	delivered := make(chan struct{}, 1)
	channel := client.Channel("orders")
	channel.Subscribe("first", func(Message) { panic("boom") })
	channel.Subscribe("first", func(Message) { delivered <- struct{}{} })
	syncExecutor(t, client)

	socket.deliver(t, &wire.MessageEvent{ID: "1", Channel: "orders", Name: "first"})
	syncExecutor(t, client)

	select {
	case err := <-reported:
		if ErrorCode(err) != MessageHandlerError {
			t.Fatalf("expected MessageHandlerError, got %v", err)
		}
	default:
		t.Fatalf("expected the panic to be reported")
	}
	select {
	case <-delivered:
	default:
		t.Fatalf("second listener should still run")
	}
}

func TestPublishRejectsUnencodableData(t *testing.T) {
	client, _ := newTestClient(t, wire.EncodingJSON, nil)
	err := client.Channel("orders").Publish("first", make(chan int))
	if ErrorCode(err) != EncodingError {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}

func mustMarshal(t *testing.T, encoding wire.Encoding, value any) []byte {
	t.Helper()
	data, err := wire.Marshal(encoding, value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestSubscribeWithNilHandlerIsReported(t *testing.T) {
	client, factory := newTestClient(t, wire.EncodingJSON, nil)
	socket := connectClient(t, client, factory, "session-1")

	reported := make(chan error, 1)
	client.SetExceptionListener(ExceptionListenerFunc(func(err error) { reported <- err }))

	if id := client.Channel("orders").Subscribe("first", nil); id != 0 {
		t.Fatalf("expected listener id 0, got %d", id)
	}
	syncExecutor(t, client)

	select {
	case err := <-reported:
		if ErrorCode(err) != MessageHandlerError {
			t.Fatalf("expected MessageHandlerError, got %v", err)
		}
	default:
		t.Fatalf("expected the nil handler to be reported")
	}
	if frames := socket.eventTypes(t); len(frames) != 0 {
		t.Fatalf("expected no frames for a nil handler, got %v", frames)
	}
}
