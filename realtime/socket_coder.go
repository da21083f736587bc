package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const coderReadLimit = 4 << 20

type coderSocket struct {
	lock      sync.Mutex
	conn      *websocket.Conn
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	handler   SocketHandler
	closeOnce sync.Once
}

// NewCoderSocketFactory returns a SocketFactory backed by coder/websocket.
func NewCoderSocketFactory(options *websocket.DialOptions) SocketFactory {
	return func(url string, handler SocketHandler) (Socket, error) {
		ctx, cancel := context.WithCancel(context.Background())
		socket := &coderSocket{ctx: ctx, cancel: cancel, handler: handler}
		go socket.run(url, options)
		return socket, nil
	}
}

func (socket *coderSocket) run(url string, options *websocket.DialOptions) {
	conn, _, err := websocket.Dial(socket.ctx, url, options)
	if err != nil {
		if !socket.isClosed() {
			socket.handler.OnError(NewError(ConnectionRefusedError, err))
		}
		socket.finish(err)
		return
	}
	conn.SetReadLimit(coderReadLimit)

	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		_ = conn.CloseNow()
		socket.finish(nil)
		return
	}
	socket.conn = conn
	socket.lock.Unlock()

	socket.handler.OnOpen()

	for {
		_, data, readErr := conn.Read(socket.ctx)
		if readErr != nil {
			socket.finish(readErr)
			return
		}
		socket.handler.OnMessage(data)
	}
}

func (socket *coderSocket) isClosed() bool {
	socket.lock.Lock()
	defer socket.lock.Unlock()
	return socket.closed
}

func (socket *coderSocket) finish(err error) {
	socket.lock.Lock()
	conn := socket.conn
	socket.conn = nil
	closedLocally := socket.closed
	socket.closed = true
	socket.lock.Unlock()

	socket.cancel()
	if conn != nil {
		_ = conn.CloseNow()
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		err = nil
	}
	if closedLocally {
		err = nil
	}
	socket.closeOnce.Do(func() {
		socket.handler.OnClose(err)
	})
}

func (socket *coderSocket) Send(data []byte, text bool) error {
	socket.lock.Lock()
	defer socket.lock.Unlock()

	if socket.conn == nil {
		return ErrSocketNotOpen
	}
	messageType := websocket.MessageBinary
	if text {
		messageType = websocket.MessageText
	}
	ctx, cancel := context.WithTimeout(socket.ctx, socketWriteTimeout)
	defer cancel()
	return socket.conn.Write(ctx, messageType, data)
}

func (socket *coderSocket) Close() error {
	socket.lock.Lock()
	if socket.closed {
		socket.lock.Unlock()
		return nil
	}
	socket.closed = true
	conn := socket.conn
	socket.conn = nil
	socket.lock.Unlock()

	if conn == nil {
		socket.cancel()
		return nil
	}
	// The close handshake needs the read loop, so it runs off the caller's goroutine.
	go func() {
		timer := time.AfterFunc(socketCloseGrace, func() { _ = conn.CloseNow() })
		_ = conn.Close(websocket.StatusNormalClosure, "")
		timer.Stop()
		socket.cancel()
	}()
	return nil
}
