package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Thejuampi/realtime-client-go/realtime"

// Client is the realtime client facade. All methods are safe for concurrent
// use and none of them blocks on the network except Connect, Once and
// Shutdown, which wait on the caller's context.
type Client struct {
	config    Config
	executor  *serialExecutor
	events    *eventRegistry
	channels  *subscriptionManager
	transport *transport
	metrics   *Metrics
	tracer    trace.Tracer

	nextListenerID atomic.Uint64

	lock              sync.Mutex
	handles           map[string]*Channel
	exceptionListener ExceptionListener
}

// New builds a client from config. With AutoConnect set the first connection
// attempt starts immediately.
func New(config Config) (*Client, error) {
	config.applyDefaults()
	if _, err := config.endpoint(); err != nil {
		return nil, err
	}

	client := &Client{
		config:   config,
		executor: &serialExecutor{},
		handles:  make(map[string]*Channel),
		metrics:  NewMetrics(config.MetricsNamespace, config.Registerer),
		tracer:   config.Tracer,
	}
	if client.tracer == nil {
		client.tracer = otel.Tracer(tracerName)
	}
	client.executor.panics = func(recovered any) {
		client.reportException(NewError(UnknownError, fmt.Sprintf("task panicked: %v", recovered)))
	}
	client.events = &eventRegistry{report: client.reportException}
	client.channels = newSubscriptionManager(config.Encoding, config.Logger, client.metrics)
	client.channels.report = client.reportException
	client.transport = newTransport(&client.config, client.executor, client.events, client.channels, client.metrics, client.tracer, client.reportException)

	if config.AutoConnect {
		client.executor.post(client.transport.establishConnection)
	}
	return client, nil
}

func (client *Client) newListenerID() ListenerID {
	return ListenerID(client.nextListenerID.Add(1))
}

// Connect starts a connection if the client is not connected or connecting and
// waits until it is connected. It fails when the client gives up, is closed
// meanwhile, or ctx is done.
func (client *Client) Connect(ctx context.Context) error {
	id := client.newListenerID()
	result := make(chan error, 1)

	client.executor.post(func() {
		switch client.transport.state {
		case StateConnected:
			result <- nil
			return
		case StateClosing:
			result <- NewError(InvalidStateError, "client is closing")
			return
		}

		client.events.addAny(id, func(event ConnectionEvent) {
			var err error
			switch event.State {
			case StateConnected:
			case StateFailed:
				err = eventError(event, RetriesExhaustedError)
			case StateClosed:
				err = NewError(DisconnectedError, "client closed while connecting")
			default:
				return
			}
			client.events.remove(id)
			result <- err
		})
		client.transport.establishConnection()
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		client.Off(id)
		return ctx.Err()
	}
}

func eventError(event ConnectionEvent, fallback int) error {
	if event.Error == nil {
		return NewError(fallback)
	}
	return NewError(event.Error.Code, event.Error.Message)
}

// Close stops the heartbeat and any pending reconnect, sends a best-effort
// disconnect and closes the socket. Channel state is kept, so a later Connect
// resumes the same subscriptions.
func (client *Client) Close() error {
	client.executor.post(client.transport.closeConnection)
	return nil
}

// Shutdown closes the client and waits for the closed state.
func (client *Client) Shutdown(ctx context.Context) error {
	id := client.newListenerID()
	done := make(chan struct{})

	client.executor.post(func() {
		client.transport.closeConnection()
		if client.transport.state == StateClosed {
			close(done)
			return
		}
		client.events.add(id, StateClosed, func(ConnectionEvent) {
			client.events.remove(id)
			close(done)
		})
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		client.Off(id)
		return ctx.Err()
	}
}

// Channel returns the handle of the named channel, creating its state on first
// use. Channel state lives as long as the client.
func (client *Client) Channel(name string) *Channel {
	client.lock.Lock()
	defer client.lock.Unlock()

	if handle, exists := client.handles[name]; exists {
		return handle
	}
	handle := &Channel{name: name, client: client}
	client.handles[name] = handle
	client.executor.post(func() { client.channels.ensure(name) })
	return handle
}

// On registers handler for one connection event.
func (client *Client) On(state ConnectionState, handler ConnectionHandler) ListenerID {
	if handler == nil {
		return 0
	}
	id := client.newListenerID()
	client.executor.post(func() { client.events.add(id, state, handler) })
	return id
}

// OnError registers handler for error events.
func (client *Client) OnError(handler func(ErrorEvent)) ListenerID {
	if handler == nil {
		return 0
	}
	return client.On(StateError, func(event ConnectionEvent) {
		if event.Error != nil {
			handler(*event.Error)
		}
	})
}

// Off removes a connection listener registered with On, OnError or Once.
func (client *Client) Off(id ListenerID) {
	client.executor.post(func() { client.events.remove(id) })
}

// Once waits for the next occurrence of a connection event.
func (client *Client) Once(ctx context.Context, state ConnectionState) (ConnectionEvent, error) {
	id := client.newListenerID()
	result := make(chan ConnectionEvent, 1)

	client.executor.post(func() {
		client.events.add(id, state, func(event ConnectionEvent) {
			client.events.remove(id)
			result <- event
		})
	})

	select {
	case event := <-result:
		return event, nil
	case <-ctx.Done():
		client.Off(id)
		return ConnectionEvent{}, ctx.Err()
	}
}

// State returns the current connection state.
func (client *Client) State() ConnectionState {
	return client.transport.currentState()
}

// Session returns the session of the last accepted connection.
func (client *Client) Session() Session {
	return client.transport.currentSession()
}

// SessionID returns the current session id, empty before the first connection.
func (client *Client) SessionID() string {
	return client.Session().SessionID
}

// SocketID returns the broker's id for the current socket.
func (client *Client) SocketID() string {
	return client.Session().SocketID
}

// Metrics returns the collectors updated by this client.
func (client *Client) Metrics() *Metrics {
	return client.metrics
}

// SetExceptionListener sets the listener for background errors such as
// undecodable frames and panicking callbacks.
func (client *Client) SetExceptionListener(listener ExceptionListener) *Client {
	client.lock.Lock()
	client.exceptionListener = listener
	client.lock.Unlock()
	return client
}

// ExceptionListener returns the current exception listener.
func (client *Client) ExceptionListener() ExceptionListener {
	client.lock.Lock()
	defer client.lock.Unlock()
	return client.exceptionListener
}

func (client *Client) reportException(err error) {
	if err == nil {
		return
	}
	client.config.Logger.Error("realtime client error", "error", err)
	if listener := client.ExceptionListener(); listener != nil {
		listener.ExceptionThrown(err)
	}
}
