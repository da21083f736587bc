package realtime

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thejuampi/realtime-client-go/internal/fakebroker"
	"github.com/Thejuampi/realtime-client-go/wire"
)

func startFakeBroker(t *testing.T) (*fakebroker.Broker, *httptest.Server) {
	t.Helper()
	broker := fakebroker.New(fakebroker.Options{})
	server := httptest.NewServer(broker)
	t.Cleanup(func() {
		broker.Close()
		server.Close()
	})
	return broker, server
}

func newBrokerClient(t *testing.T, server *httptest.Server, encoding wire.Encoding, configure func(*Config)) *Client {
	t.Helper()
	config := Config{
		URL:              server.URL,
		Project:          "test",
		Encoding:         encoding,
		HeartbeatTimeout: time.Hour,
		ReconnectDelay:   5 * time.Millisecond,
		Logger:           NewLogger(LogLevelError, io.Discard),
	}
	if configure != nil {
		configure(&config)
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = client.Shutdown(ctx)
	})
	return client
}

func connectOrFail(t *testing.T, client *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

type received struct {
	lock   sync.Mutex
	values []string
}

func (r *received) handler(t *testing.T) MessageHandler {
	return func(message Message) {
		var value string
		if err := message.Decode(&value); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		r.lock.Lock()
		r.values = append(r.values, value)
		r.lock.Unlock()
	}
}

func (r *received) snapshot() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.values...)
}

func (r *received) waitFor(t *testing.T, expected ...string) {
	t.Helper()
	waitFor(t, "messages", func() bool { return len(r.snapshot()) >= len(expected) })
	got := r.snapshot()
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for index := range expected {
		if got[index] != expected[index] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}

func TestBrokerPublishAndReceive(t *testing.T) {
	for _, encoding := range []wire.Encoding{wire.EncodingMsgpack, wire.EncodingJSON} {
		t.Run(encoding.String(), func(t *testing.T) {
			broker, server := startFakeBroker(t)
			client := newBrokerClient(t, server, encoding, nil)
			connectOrFail(t, client)

			var messages received
			channel := client.Channel("greetings")
			channel.Subscribe("first", messages.handler(t))
			if err := channel.Publish("first", "hello"); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			messages.waitFor(t, "hello")

			channel.Detach()
			channel.Attach()
			if err := channel.Publish("first", "again"); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			messages.waitFor(t, "hello", "again")

			if got := len(broker.HistoryOf(wire.EventSubscribe)); got != 1 {
				t.Fatalf("expected one subscribe frame, got %d", got)
			}
			if got := len(broker.HistoryOf(wire.EventAttach)); got != 2 {
				t.Fatalf("expected two attach frames, got %d", got)
			}
		})
	}
}

func TestBrokerOfflinePublishOrder(t *testing.T) {
	broker, server := startFakeBroker(t)
	client := newBrokerClient(t, server, wire.EncodingMsgpack, nil)

	channel := client.Channel("orders")
	for _, value := range []string{"msg1", "msg2", "msg3"} {
		if err := channel.Publish("created", value); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	syncExecutor(t, client)
	if frames := len(broker.History()); frames != 0 {
		t.Fatalf("expected no frames before connect, got %d", frames)
	}

	connectOrFail(t, client)
	waitFor(t, "three published messages", func() bool {
		return len(broker.HistoryOf(wire.EventMessage)) == 3
	})

	var messages received
	client.Channel("orders").Subscribe("created", messages.handler(t))
	messages.waitFor(t, "msg1", "msg2", "msg3")
}

func TestBrokerRecoversAfterDisconnect(t *testing.T) {
	broker, server := startFakeBroker(t)
	client := newBrokerClient(t, server, wire.EncodingJSON, nil)
	connectOrFail(t, client)

	var messages received
	channel := client.Channel("orders")
	channel.Subscribe("created", messages.handler(t))
	for _, value := range []string{"msg1", "msg2"} {
		if err := channel.Publish("created", value); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	messages.waitFor(t, "msg1", "msg2")

	firstSession := client.Session()
	connecting := signalOn(client, StateConnecting)
	connected := signalOn(client, StateConnected)
	syncExecutor(t, client)
	if !broker.CloseConnection(firstSession.SocketID) {
		t.Fatalf("socket %s not found", firstSession.SocketID)
	}
	for _, value := range []string{"msg3", "msg4"} {
		payload, _ := wire.Marshal(wire.EncodingJSON, value)
		broker.Publish("orders", "created", payload, wire.EncodingJSON)
	}
	awaitSignal(t, connecting, "reconnect attempt")
	if err := channel.Publish("created", "msg5"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	awaitSignal(t, connected, "reconnect")
	messages.waitFor(t, "msg1", "msg2", "msg3", "msg4", "msg5")

	if client.SessionID() != firstSession.SessionID {
		t.Fatalf("expected the session to be resumed")
	}
	if client.SocketID() == firstSession.SocketID {
		t.Fatalf("expected a new socket id")
	}
	time.Sleep(50 * time.Millisecond)
	if got := messages.snapshot(); len(got) != 5 {
		t.Fatalf("duplicate delivery after resume: %v", got)
	}
}

func TestBrokerRejectingEveryConnectionFails(t *testing.T) {
	const maxRetries = 2
	broker, server := startFakeBroker(t)
	broker.RejectConnectionsWith("go away")

	registry := prometheus.NewRegistry()
	client := newBrokerClient(t, server, wire.EncodingJSON, func(config *Config) {
		config.MaxRetries = maxRetries
		config.Registerer = registry
	})

	var failed atomic.Int32
	var brokerErrors atomic.Int32
	client.On(StateFailed, func(ConnectionEvent) { failed.Add(1) })
	client.OnError(func(event ErrorEvent) {
		if event.Code == fakebroker.RejectedCode {
			brokerErrors.Add(1)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := client.Connect(ctx); ErrorCode(err) != RetriesExhaustedError {
		t.Fatalf("expected RetriesExhaustedError, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if attempts := broker.ConnectionAttempts(); attempts != maxRetries+1 {
		t.Fatalf("expected %d connection attempts, got %d", maxRetries+1, attempts)
	}
	if failed.Load() != 1 {
		t.Fatalf("expected one failed event, got %d", failed.Load())
	}
	if brokerErrors.Load() == 0 {
		t.Fatalf("expected the rejection error frame to surface")
	}
	if got := counterValue(t, registry, "realtime_connect_attempts_total"); got != maxRetries+1 {
		t.Fatalf("connect attempts metric is %v", got)
	}
}

func TestBrokerHeartbeat(t *testing.T) {
	broker, server := startFakeBroker(t)
	client := newBrokerClient(t, server, wire.EncodingMsgpack, func(config *Config) {
		config.HeartbeatTimeout = 30 * time.Millisecond
	})
	connectOrFail(t, client)

	waitFor(t, "heartbeats at the broker", func() bool {
		return len(broker.HistoryOf(wire.EventHeartbeat)) >= 2
	})
}

func TestBrokerCloseSendsDisconnect(t *testing.T) {
	broker, server := startFakeBroker(t)
	client := newBrokerClient(t, server, wire.EncodingJSON, nil)
	connectOrFail(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitFor(t, "disconnect frame", func() bool {
		return len(broker.HistoryOf(wire.EventDisconnect)) == 1
	})
	if client.State() != StateClosed {
		t.Fatalf("expected closed, got %s", client.State())
	}
}

func TestBrokerWithCoderSocket(t *testing.T) {
	_, server := startFakeBroker(t)
	client := newBrokerClient(t, server, wire.EncodingMsgpack, func(config *Config) {
		config.SocketFactory = NewCoderSocketFactory(nil)
	})
	connectOrFail(t, client)

	var messages received
	channel := client.Channel("coder")
	channel.Subscribe("ping", messages.handler(t))
	if err := channel.Publish("ping", "pong"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	messages.waitFor(t, "pong")
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
