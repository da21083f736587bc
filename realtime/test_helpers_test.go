package realtime

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thejuampi/realtime-client-go/wire"
)

const testTimeout = 2 * time.Second

type fakeSocket struct {
	lock     sync.Mutex
	url      string
	handler  SocketHandler
	encoding wire.Encoding
	sent     [][]byte
	open     bool
	closed   bool
	sendErr  error
}

func (socket *fakeSocket) Send(data []byte, text bool) error {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	if !socket.open {
		return ErrSocketNotOpen
	}
	if socket.sendErr != nil {
		return socket.sendErr
	}
	if text != socket.encoding.Text() {
		return errors.New("frame kind does not match encoding")
	}
	socket.sent = append(socket.sent, append([]byte(nil), data...))
	return nil
}

func (socket *fakeSocket) Close() error {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return nil
	}
	socket.closed = true
	socket.open = false
	socket.lock.Unlock()

	socket.handler.OnClose(nil)
	return nil
}

// accept opens the socket and sends the connected frame.
func (socket *fakeSocket) accept(t *testing.T, sessionID string, socketID string) {
	t.Helper()
	socket.lock.Lock()
	socket.open = true
	socket.lock.Unlock()

	socket.handler.OnOpen()
	socket.deliver(t, &wire.ConnectedEvent{SessionID: sessionID, SocketID: socketID})
}

func (socket *fakeSocket) deliver(t *testing.T, event wire.Event) {
	t.Helper()
	frame, err := wire.Encode(socket.encoding, event)
	if err != nil {
		t.Fatalf("encode %T: %v", event, err)
	}
	socket.handler.OnMessage(frame)
}

// drop simulates the broker going away.
func (socket *fakeSocket) drop(err error) {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return
	}
	socket.closed = true
	socket.open = false
	socket.lock.Unlock()

	socket.handler.OnClose(err)
}

func (socket *fakeSocket) isClosed() bool {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	return socket.closed
}

func (socket *fakeSocket) events(t *testing.T) []wire.Event {
	t.Helper()
	socket.lock.Lock()
	frames := append([][]byte(nil), socket.sent...)
	socket.lock.Unlock()

	events := make([]wire.Event, 0, len(frames))
	for _, frame := range frames {
		event, err := wire.Decode(socket.encoding, frame)
		if err != nil {
			t.Fatalf("decode sent frame: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func (socket *fakeSocket) eventTypes(t *testing.T) []wire.EventType {
	t.Helper()
	events := socket.events(t)
	types := make([]wire.EventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType())
	}
	return types
}

func (socket *fakeSocket) count(t *testing.T, eventType wire.EventType) int {
	t.Helper()
	count := 0
	for _, current := range socket.eventTypes(t) {
		if current == eventType {
			count++
		}
	}
	return count
}

type fakeSocketFactory struct {
	lock     sync.Mutex
	encoding wire.Encoding
	sockets  []*fakeSocket
	created  chan *fakeSocket
	dialErr  error
	attempts int
}

func newFakeSocketFactory(encoding wire.Encoding) *fakeSocketFactory {
	return &fakeSocketFactory{encoding: encoding, created: make(chan *fakeSocket, 64)}
}

func (factory *fakeSocketFactory) dial(url string, handler SocketHandler) (Socket, error) {
	factory.lock.Lock()
	defer factory.lock.Unlock()
	factory.attempts++
	if factory.dialErr != nil {
		return nil, factory.dialErr
	}
	socket := &fakeSocket{url: url, handler: handler, encoding: factory.encoding}
	factory.sockets = append(factory.sockets, socket)
	factory.created <- socket
	return socket, nil
}

func (factory *fakeSocketFactory) attemptCount() int {
	factory.lock.Lock()
	defer factory.lock.Unlock()
	return factory.attempts
}

func (factory *fakeSocketFactory) next(t *testing.T) *fakeSocket {
	t.Helper()
	select {
	case socket := <-factory.created:
		return socket
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for a connection attempt")
		return nil
	}
}

func newTestClient(t *testing.T, encoding wire.Encoding, configure func(*Config)) (*Client, *fakeSocketFactory) {
	t.Helper()
	factory := newFakeSocketFactory(encoding)
	config := Config{
		URL:              "ws://broker.test",
		Project:          "test",
		Encoding:         encoding,
		HeartbeatTimeout: time.Hour,
		ReconnectDelay:   time.Millisecond,
		Logger:           NewLogger(LogLevelError, io.Discard),
		SocketFactory:    factory.dial,
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
		syncExecutor(t, client)
	})
	return client, factory
}

// connectClient runs Connect against the next fake socket.
func connectClient(t *testing.T, client *Client, factory *fakeSocketFactory, sessionID string) *fakeSocket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- client.Connect(ctx) }()

	socket := factory.next(t)
	socket.accept(t, sessionID, "socket-"+sessionID)
	if err := <-result; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return socket
}

// syncExecutor waits until every task posted so far has run.
func syncExecutor(t *testing.T, client *Client) {
	t.Helper()
	done := make(chan struct{})
	client.executor.post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("executor did not drain")
	}
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type eventRecorder struct {
	lock   sync.Mutex
	events []ConnectionEvent
}

func recordEvents(client *Client, states ...ConnectionState) *eventRecorder {
	recorder := &eventRecorder{}
	for _, state := range states {
		client.On(state, func(event ConnectionEvent) {
			recorder.lock.Lock()
			recorder.events = append(recorder.events, event)
			recorder.lock.Unlock()
		})
	}
	return recorder
}

func (recorder *eventRecorder) snapshot() []ConnectionEvent {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return append([]ConnectionEvent(nil), recorder.events...)
}

func (recorder *eventRecorder) states() string {
	names := make([]string, 0)
	for _, event := range recorder.snapshot() {
		names = append(names, event.State.String())
	}
	return strings.Join(names, ",")
}

// signalOn registers a listener that signals every occurrence of state.
func signalOn(client *Client, state ConnectionState) <-chan ConnectionEvent {
	signals := make(chan ConnectionEvent, 16)
	client.On(state, func(event ConnectionEvent) {
		select {
		case signals <- event:
		default:
		}
	})
	return signals
}

func awaitSignal(t *testing.T, signals <-chan ConnectionEvent, description string) ConnectionEvent {
	t.Helper()
	select {
	case event := <-signals:
		return event
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", description)
		return ConnectionEvent{}
	}
}
