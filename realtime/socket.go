package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSocketNotOpen is returned by Socket.Send before the socket opened or
// after it closed. The transport queues replayable frames on this error.
var ErrSocketNotOpen = errors.New("socket not open")

// SocketHandler receives socket callbacks. Callbacks may arrive on any
// goroutine; OnClose is delivered exactly once per socket.
type SocketHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(err error)
}

// Socket is a duplex, message-oriented connection.
type Socket interface {
	Send(data []byte, text bool) error
	Close() error
}

// SocketFactory starts connecting to url and returns immediately. Connection
// progress is reported through handler.
type SocketFactory func(url string, handler SocketHandler) (Socket, error)

const (
	socketCloseGrace = time.Second
	// socketWriteTimeout bounds one frame write. A write that times out
	// closes the socket, which starts a reconnect.
	socketWriteTimeout = 5 * time.Second
)

type websocketSocket struct {
	lock      sync.Mutex
	conn      *websocket.Conn
	closed    bool
	cancel    context.CancelFunc
	handler   SocketHandler
	closeOnce sync.Once

	writeTimeout time.Duration
}

// NewWebSocketFactory returns the default SocketFactory backed by
// gorilla/websocket. A nil dialer uses websocket.DefaultDialer.
func NewWebSocketFactory(dialer *websocket.Dialer) SocketFactory {
	return newWebSocketFactory(dialer, socketWriteTimeout)
}

func newWebSocketFactory(dialer *websocket.Dialer, writeTimeout time.Duration) SocketFactory {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(url string, handler SocketHandler) (Socket, error) {
		ctx, cancel := context.WithCancel(context.Background())
		socket := &websocketSocket{cancel: cancel, handler: handler, writeTimeout: writeTimeout}
		go socket.run(ctx, dialer, url)
		return socket, nil
	}
}

func (socket *websocketSocket) run(ctx context.Context, dialer *websocket.Dialer, url string) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if !socket.isClosed() {
			socket.handler.OnError(NewError(ConnectionRefusedError, err))
		}
		socket.finish(err)
		return
	}

	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		_ = conn.Close()
		socket.finish(nil)
		return
	}
	socket.conn = conn
	socket.lock.Unlock()

	socket.handler.OnOpen()

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			socket.finish(readErr)
			return
		}
		socket.handler.OnMessage(data)
	}
}

func (socket *websocketSocket) isClosed() bool {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	return socket.closed
}

func (socket *websocketSocket) finish(err error) {
	socket.lock.Lock()
	conn := socket.conn
	socket.conn = nil
	closedLocally := socket.closed
	socket.closed = true
	socket.lock.Unlock()

	socket.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if closedLocally || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = nil
	}
	socket.closeOnce.Do(func() {
		socket.handler.OnClose(err)
	})
}

func (socket *websocketSocket) Send(data []byte, text bool) error {
	socket.lock.Lock()
	defer socket.lock.Unlock()

	if socket.conn == nil {
		return ErrSocketNotOpen
	}
	messageType := websocket.BinaryMessage
	if text {
		messageType = websocket.TextMessage
	}
	_ = socket.conn.SetWriteDeadline(time.Now().Add(socket.writeTimeout))
	if err := socket.conn.WriteMessage(messageType, data); err != nil {
		// The connection is unusable after a failed write; the read pump
		// sees the close and reports it.
		_ = socket.conn.Close()
		return err
	}
	return nil
}

func (socket *websocketSocket) Close() error {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return nil
	}
	socket.closed = true
	conn := socket.conn
	socket.conn = nil
	socket.lock.Unlock()

	socket.cancel()
	if conn == nil {
		return nil
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(socketCloseGrace))
	return conn.Close()
}
