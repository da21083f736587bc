// Package fakebroker is an in-process realtime broker for tests and local
// development. It speaks the wire protocol over websockets, keeps every
// channel message for replay, and serves the REST endpoints of the realtime
// API. It is not a production server.
package fakebroker

import (
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Thejuampi/realtime-client-go/wire"
)

// BasePattern is the chi route of the realtime endpoint.
const BasePattern = "/v1/projects/{project}/realtime"

// RejectedCode is the error code sent to connections refused by RejectConnectionsWith.
const RejectedCode = 1

// Options configures a Broker.
type Options struct {
	// Logger receives connection logs. Nil discards them.
	Logger *log.Logger
	// WriteTimeout bounds every websocket write.
	WriteTimeout time.Duration
}

// Frame is one inbound frame recorded in the broker history.
type Frame struct {
	SocketID  string
	EventType wire.EventType
	Event     wire.Event
	Received  time.Time
}

// StoredMessage is a channel message kept for replay.
type StoredMessage struct {
	Sequence  uint64
	Channel   string
	Name      string
	Data      []byte
	Encoding  wire.Encoding
	Published time.Time
}

// ID is the wire id of the message.
func (message StoredMessage) ID() string {
	return strconv.FormatUint(message.Sequence, 10)
}

type session struct {
	id         string
	attached   map[string]bool
	subscribed map[string]bool
}

type peer struct {
	conn      *websocket.Conn
	socketID  string
	session   *session
	encoding  wire.Encoding
	writeLock sync.Mutex
}

// Broker is a fake realtime broker. It implements http.Handler.
type Broker struct {
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       *log.Logger
	writeTimeout time.Duration

	lock        sync.Mutex
	sessions    map[string]*session
	connections map[string]*peer
	messages    map[string][]StoredMessage
	history     []Frame
	sequence    uint64
	rejectWith  string
	closed      bool

	attempts atomic.Int64
	handlers sync.WaitGroup
}

// New returns a broker with its routes mounted.
func New(options Options) *Broker {
	logger := options.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	writeTimeout := options.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	broker := &Broker{
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:       logger,
		writeTimeout: writeTimeout,
		sessions:     make(map[string]*session),
		connections:  make(map[string]*peer),
		messages:     make(map[string][]StoredMessage),
	}
	broker.router.Get(BasePattern, broker.handleWebSocket)
	broker.registerRESTRoutes(broker.router)
	return broker
}

func (broker *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	broker.router.ServeHTTP(w, r)
}

// ConnectionAttempts counts websocket upgrade requests, rejected ones included.
func (broker *Broker) ConnectionAttempts() int {
	return int(broker.attempts.Load())
}

// History returns every inbound frame in arrival order.
func (broker *Broker) History() []Frame {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	return append([]Frame(nil), broker.history...)
}

// HistoryOf returns the inbound frames of one event type.
func (broker *Broker) HistoryOf(eventType wire.EventType) []Frame {
	frames := make([]Frame, 0)
	for _, frame := range broker.History() {
		if frame.EventType == eventType {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Messages returns the stored messages of a channel with a sequence above after.
func (broker *Broker) Messages(channel string, after uint64) []StoredMessage {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	return broker.messagesAfterLocked(channel, after)
}

func (broker *Broker) messagesAfterLocked(channel string, after uint64) []StoredMessage {
	stored := broker.messages[channel]
	index := sort.Search(len(stored), func(i int) bool { return stored[i].Sequence > after })
	return append([]StoredMessage(nil), stored[index:]...)
}

// SocketIDs returns the ids of the open connections.
func (broker *Broker) SocketIDs() []string {
	broker.lock.Lock()
	defer broker.lock.Unlock()
	ids := make([]string, 0, len(broker.connections))
	for id := range broker.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RejectConnectionsWith makes the broker answer every new connection with an
// error frame carrying message and close it. An empty message accepts again.
func (broker *Broker) RejectConnectionsWith(message string) {
	broker.lock.Lock()
	broker.rejectWith = message
	broker.lock.Unlock()
}

// CloseConnection drops one connection without a close handshake.
func (broker *Broker) CloseConnection(socketID string) bool {
	broker.lock.Lock()
	connection, exists := broker.connections[socketID]
	broker.lock.Unlock()
	if !exists {
		return false
	}
	_ = connection.conn.Close()
	return true
}

// Publish stores a message and fans it out to every connection subscribed to
// the channel. It returns the stored message.
func (broker *Broker) Publish(channel string, name string, data []byte, encoding wire.Encoding) StoredMessage {
	broker.lock.Lock()
	defer broker.lock.Unlock()

	broker.sequence++
	message := StoredMessage{
		Sequence:  broker.sequence,
		Channel:   channel,
		Name:      name,
		Data:      append([]byte(nil), data...),
		Encoding:  encoding,
		Published: time.Now(),
	}
	broker.messages[channel] = append(broker.messages[channel], message)

	for _, connection := range broker.connections {
		if connection.session.subscribed[channel] {
			broker.deliver(connection, message)
		}
	}
	return message
}

// Close drops every connection and waits for their handlers to return.
func (broker *Broker) Close() {
	broker.lock.Lock()
	broker.closed = true
	connections := make([]*peer, 0, len(broker.connections))
	for _, connection := range broker.connections {
		connections = append(connections, connection)
	}
	broker.lock.Unlock()

	for _, connection := range connections {
		_ = connection.conn.Close()
	}
	broker.handlers.Wait()
}

func (broker *Broker) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	broker.attempts.Add(1)

	encoding, err := wire.ParseEncoding(r.URL.Query().Get("msg-encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	broker.lock.Lock()
	closed := broker.closed
	rejectWith := broker.rejectWith
	if !closed {
		broker.handlers.Add(1)
	}
	broker.lock.Unlock()
	if closed {
		http.Error(w, "broker closed", http.StatusServiceUnavailable)
		return
	}
	defer broker.handlers.Done()

	conn, err := broker.upgrader.Upgrade(w, r, nil)
	if err != nil {
		broker.logger.Printf("fakebroker: upgrade failed: %v", err)
		return
	}

	if rejectWith != "" {
		rejected := &peer{conn: conn, encoding: encoding}
		broker.write(rejected, &wire.ErrorEvent{Code: RejectedCode, Message: rejectWith})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, rejectWith),
			time.Now().Add(broker.writeTimeout))
		_ = conn.Close()
		broker.logger.Printf("fakebroker: rejected connection: %s", rejectWith)
		return
	}

	connection := broker.register(conn, encoding, r.URL.Query().Get("sessionId"))
	defer broker.unregister(connection)

	broker.logger.Printf("fakebroker: connected socket=%s session=%s encoding=%s", connection.socketID, connection.session.id, encoding)
	broker.write(connection, &wire.ConnectedEvent{SessionID: connection.session.id, SocketID: connection.socketID})
	broker.readLoop(connection)
}

// register resumes the hinted session when it is known.
func (broker *Broker) register(conn *websocket.Conn, encoding wire.Encoding, sessionHint string) *peer {
	broker.lock.Lock()
	defer broker.lock.Unlock()

	current, exists := broker.sessions[sessionHint]
	if !exists {
		current = &session{
			id:         uuid.NewString(),
			attached:   make(map[string]bool),
			subscribed: make(map[string]bool),
		}
		broker.sessions[current.id] = current
	}
	connection := &peer{
		conn:     conn,
		socketID: uuid.NewString(),
		session:  current,
		encoding: encoding,
	}
	broker.connections[connection.socketID] = connection
	return connection
}

func (broker *Broker) unregister(connection *peer) {
	broker.lock.Lock()
	if broker.connections[connection.socketID] == connection {
		delete(broker.connections, connection.socketID)
	}
	broker.lock.Unlock()
	_ = connection.conn.Close()
	broker.logger.Printf("fakebroker: disconnected socket=%s", connection.socketID)
}

func (broker *Broker) readLoop(connection *peer) {
	for {
		_, data, err := connection.conn.ReadMessage()
		if err != nil {
			return
		}
		event, err := wire.Decode(connection.encoding, data)
		if err != nil {
			broker.logger.Printf("fakebroker: socket=%s bad frame: %v", connection.socketID, err)
			broker.write(connection, &wire.ErrorEvent{Code: http.StatusBadRequest, Message: err.Error()})
			continue
		}
		broker.handle(connection, event)
	}
}

func (broker *Broker) handle(connection *peer, event wire.Event) {
	broker.lock.Lock()
	broker.history = append(broker.history, Frame{
		SocketID:  connection.socketID,
		EventType: event.EventType(),
		Event:     event,
		Received:  time.Now(),
	})
	broker.lock.Unlock()

	switch event := event.(type) {
	case *wire.AttachEvent:
		broker.lock.Lock()
		connection.session.attached[event.Channel] = true
		broker.lock.Unlock()
	case *wire.DetachEvent:
		broker.lock.Lock()
		delete(connection.session.attached, event.Channel)
		broker.lock.Unlock()
	case *wire.SubscribeEvent:
		broker.subscribe(connection, event)
	case *wire.UnsubscribeEvent:
		broker.lock.Lock()
		delete(connection.session.subscribed, event.Channel)
		broker.lock.Unlock()
	case *wire.MessageEvent:
		broker.Publish(event.Channel, event.Name, event.Data, connection.encoding)
	case *wire.HeartbeatEvent:
		broker.write(connection, &wire.HeartbeatEvent{})
	case *wire.DisconnectEvent:
		broker.logger.Printf("fakebroker: socket=%s sent disconnect", connection.socketID)
	}
}

// subscribe replays the messages after the requested position and starts live
// delivery in one step, so nothing is missed or sent twice.
func (broker *Broker) subscribe(connection *peer, event *wire.SubscribeEvent) {
	position, err := strconv.ParseUint(event.Position, 10, 64)
	if err != nil {
		position = 0
	}

	broker.lock.Lock()
	defer broker.lock.Unlock()
	connection.session.subscribed[event.Channel] = true
	for _, message := range broker.messagesAfterLocked(event.Channel, position) {
		broker.deliver(connection, message)
	}
}

func (broker *Broker) deliver(connection *peer, message StoredMessage) {
	data, err := transcode(message.Data, message.Encoding, connection.encoding)
	if err != nil {
		broker.logger.Printf("fakebroker: transcode message %d: %v", message.Sequence, err)
		return
	}
	broker.write(connection, &wire.MessageEvent{
		ID:      message.ID(),
		Channel: message.Channel,
		Name:    message.Name,
		Data:    data,
	})
}

func (broker *Broker) write(connection *peer, event wire.Event) {
	frame, err := wire.Encode(connection.encoding, event)
	if err != nil {
		broker.logger.Printf("fakebroker: encode %s: %v", event.EventType(), err)
		return
	}
	messageType := websocket.BinaryMessage
	if connection.encoding.Text() {
		messageType = websocket.TextMessage
	}

	connection.writeLock.Lock()
	defer connection.writeLock.Unlock()
	_ = connection.conn.SetWriteDeadline(time.Now().Add(broker.writeTimeout))
	if err := connection.conn.WriteMessage(messageType, frame); err != nil {
		broker.logger.Printf("fakebroker: write socket=%s: %v", connection.socketID, err)
	}
}

// transcode re-encodes an opaque payload for a subscriber using another encoding.
func transcode(data []byte, from wire.Encoding, to wire.Encoding) ([]byte, error) {
	if from == to || len(data) == 0 {
		return data, nil
	}
	var value any
	if err := wire.Unmarshal(from, data, &value); err != nil {
		return nil, err
	}
	return wire.Marshal(to, value)
}
