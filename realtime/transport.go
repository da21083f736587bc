package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Thejuampi/realtime-client-go/wire"
)

// transport is the connection state machine. It owns the socket, the session,
// the outbound queue and the heartbeat and backoff timers. Every method except
// the mirror readers must run on the executor.
type transport struct {
	config   *Config
	executor *serialExecutor
	strategy ReconnectDelayStrategy
	logger   Logger
	metrics  *Metrics
	tracer   trace.Tracer
	events   *eventRegistry
	channels *subscriptionManager
	report   func(error)

	state      ConnectionState
	session    Session
	socket     Socket
	generation uint64
	retryCount int
	queue      messageQueue

	heartbeat      *time.Timer
	heartbeatToken uint64
	backoff        *time.Timer
	backoffToken   uint64
	connectSpan    trace.Span

	stateMirror   atomic.Int32
	sessionMirror atomic.Pointer[Session]
}

func newTransport(config *Config, executor *serialExecutor, events *eventRegistry, channels *subscriptionManager, metrics *Metrics, tracer trace.Tracer, report func(error)) *transport {
	machine := &transport{
		config:   config,
		executor: executor,
		strategy: config.ReconnectStrategy,
		logger:   config.Logger,
		metrics:  metrics,
		tracer:   tracer,
		events:   events,
		channels: channels,
		report:   report,
	}
	machine.sessionMirror.Store(&Session{})
	channels.send = machine.sendEvent
	channels.emitError = machine.emitError
	return machine
}

func (transport *transport) currentState() ConnectionState {
	return ConnectionState(transport.stateMirror.Load())
}

func (transport *transport) currentSession() Session {
	return *transport.sessionMirror.Load()
}

func (transport *transport) setState(state ConnectionState) {
	transport.state = state
	transport.stateMirror.Store(int32(state))
	transport.metrics.connectionState.Set(float64(state))
}

func (transport *transport) emit(state ConnectionState, errorEvent *ErrorEvent) {
	if errorEvent != nil {
		transport.logger.Event("connection event", "event", state.String(), "code", errorEvent.Code, "message", errorEvent.Message)
	} else {
		transport.logger.Event("connection event", "event", state.String())
	}
	transport.events.emit(ConnectionEvent{State: state, Error: errorEvent})
}

func (transport *transport) transition(state ConnectionState, errorEvent *ErrorEvent) {
	transport.setState(state)
	transport.emit(state, errorEvent)
}

// emitError reports a non-fatal failure without leaving the current state.
func (transport *transport) emitError(code int, message string) {
	transport.emit(StateError, &ErrorEvent{Code: code, Message: message})
}

// establishConnection starts a connection from uninitialized, closed or
// failed. In any other state it does nothing.
func (transport *transport) establishConnection() {
	switch transport.state {
	case StateUninitialized, StateClosed, StateFailed:
	default:
		return
	}

	transport.retryCount = 0
	transport.strategy.Reset()
	transport.transition(StateConnecting, nil)
	transport.openSocket()
}

func (transport *transport) openSocket() {
	transport.generation++
	generation := transport.generation

	target, err := transport.config.connectURL(transport.session.SessionID)
	if err != nil {
		transport.logger.Error("invalid realtime URL", "error", err)
		transport.transition(StateFailed, &ErrorEvent{Code: ErrorCode(err), Message: err.Error()})
		return
	}

	transport.metrics.connectAttempts.Inc()
	transport.startConnectSpan()
	transport.logger.Info("connecting", "url", target, "attempt", transport.retryCount+1)

	socket, err := transport.config.SocketFactory(target, &socketEvents{transport: transport, generation: generation})
	if err != nil {
		transport.onSocketClose(generation, err)
		return
	}
	transport.socket = socket
}

func (transport *transport) startConnectSpan() {
	transport.endConnectSpan(NewError(ConnectionError, "superseded by a new attempt"))
	_, span := transport.tracer.Start(context.Background(), "realtime.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("realtime.attempt", transport.retryCount+1),
			attribute.Bool("realtime.resume", transport.session.SessionID != ""),
			attribute.String("realtime.encoding", transport.config.Encoding.String()),
		),
	)
	transport.connectSpan = span
}

func (transport *transport) endConnectSpan(err error) {
	span := transport.connectSpan
	if span == nil {
		return
	}
	transport.connectSpan = nil
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("realtime.socket_id", transport.session.SocketID))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// socketEvents forwards socket callbacks onto the executor, tagged with the
// generation of the socket that produced them.
type socketEvents struct {
	transport  *transport
	generation uint64
}

func (events *socketEvents) OnOpen() {
	events.transport.executor.post(func() { events.transport.onSocketOpen(events.generation) })
}

func (events *socketEvents) OnMessage(data []byte) {
	events.transport.executor.post(func() { events.transport.onSocketMessage(events.generation, data) })
}

func (events *socketEvents) OnError(err error) {
	events.transport.executor.post(func() { events.transport.onSocketError(events.generation, err) })
}

func (events *socketEvents) OnClose(err error) {
	events.transport.executor.post(func() { events.transport.onSocketClose(events.generation, err) })
}

func (transport *transport) onSocketOpen(generation uint64) {
	if generation != transport.generation {
		return
	}
	transport.logger.Debug("socket open, waiting for session")
}

func (transport *transport) onSocketMessage(generation uint64, data []byte) {
	if generation != transport.generation {
		return
	}

	envelope, err := wire.DecodeEnvelope(transport.config.Encoding, data)
	if err != nil {
		transport.report(NewError(ProtocolError, err))
		return
	}
	event, err := wire.DecodeEvent(transport.config.Encoding, envelope)
	if err != nil {
		transport.report(NewError(ProtocolError, err))
		return
	}
	transport.metrics.framesReceived.WithLabelValues(envelope.EventType.String()).Inc()

	switch event := event.(type) {
	case *wire.ConnectedEvent:
		transport.onConnected(event)
	case *wire.MessageEvent:
		transport.channels.deliver(event)
	case *wire.ErrorEvent:
		transport.logger.Warn("broker error", "code", event.Code, "message", event.Message)
		transport.emitError(event.Code, event.Message)
	case *wire.HeartbeatEvent:
		transport.logger.Debug("heartbeat received")
	default:
		transport.logger.Debug("frame received", "event_type", envelope.EventType.String())
	}
}

// onConnected replaces the session, replays channel state, flushes the queue
// and only then announces the connected state.
func (transport *transport) onConnected(event *wire.ConnectedEvent) {
	if transport.state == StateClosing || transport.state.terminal() {
		return
	}

	resumed := transport.session.SessionID != "" && transport.session.SessionID == event.SessionID
	session := Session{SessionID: event.SessionID, SocketID: event.SocketID}
	transport.session = session
	transport.sessionMirror.Store(&session)
	transport.retryCount = 0
	transport.strategy.Reset()
	transport.stopBackoff()
	transport.setState(StateConnected)
	transport.armHeartbeat()

	covered, err := transport.channels.replay(resumed, func(channel string, event wire.Event) error {
		frame, err := transport.encodeFrame(channel, event, true)
		if err != nil {
			return err
		}
		return transport.write(frame)
	})
	if err != nil {
		transport.logger.Warn("channel replay interrupted", "error", err)
	} else if err := transport.queue.drain(func(frame outboundFrame) error {
		if frame.control() && covered[frame.channel] {
			transport.drop(frame, "superseded")
			return nil
		}
		return transport.write(frame)
	}); err != nil {
		transport.logger.Warn("queue flush interrupted", "error", err, "pending", transport.queue.len())
	}

	transport.endConnectSpan(nil)
	transport.logger.Info("connected", "session_id", session.SessionID, "socket_id", session.SocketID, "resumed", resumed)
	transport.emit(StateConnected, nil)
}

func (transport *transport) onSocketError(generation uint64, err error) {
	if generation != transport.generation {
		return
	}
	if transport.state == StateClosing || transport.state.terminal() {
		return
	}
	transport.logger.Warn("socket error", "error", err)
	transport.transition(StateError, &ErrorEvent{Code: ConnectionError, Message: err.Error()})
}

func (transport *transport) onSocketClose(generation uint64, err error) {
	if generation != transport.generation {
		return
	}
	transport.socket = nil
	transport.stopHeartbeat()

	if transport.state == StateClosing {
		transport.endConnectSpan(NewError(DisconnectedError, "client closed"))
		transport.logger.Info("closed")
		transport.transition(StateClosed, nil)
		return
	}
	if transport.state.terminal() {
		return
	}

	if err == nil {
		err = NewError(DisconnectedError, "socket closed by peer")
	}
	transport.endConnectSpan(err)
	transport.logger.Warn("socket closed unexpectedly", "error", err, "retry", transport.retryCount)

	delay, retryErr := transport.strategy.GetConnectWaitDuration(transport.retryCount)
	if retryErr != nil {
		transport.logger.Error("giving up reconnecting", "error", retryErr, "attempts", transport.retryCount+1)
		transport.transition(StateFailed, &ErrorEvent{Code: ErrorCode(retryErr), Message: retryErr.Error()})
		return
	}
	transport.retryCount++
	if transport.state != StateConnecting {
		transport.transition(StateConnecting, nil)
	}
	transport.scheduleReconnect(delay)
}

func (transport *transport) scheduleReconnect(delay time.Duration) {
	transport.stopBackoff()
	token := transport.backoffToken
	transport.logger.Debug("reconnect scheduled", "delay", delay, "retry", transport.retryCount)
	transport.backoff = time.AfterFunc(delay, func() {
		transport.executor.post(func() {
			if token != transport.backoffToken || transport.state != StateConnecting {
				return
			}
			transport.backoff = nil
			transport.openSocket()
		})
	})
}

func (transport *transport) stopBackoff() {
	transport.backoffToken++
	if transport.backoff != nil {
		transport.backoff.Stop()
		transport.backoff = nil
	}
}

// armHeartbeat restarts the single heartbeat timer. It fires after
// HeartbeatTimeout of outbound silence.
func (transport *transport) armHeartbeat() {
	transport.stopHeartbeat()
	if transport.state != StateConnected || transport.config.HeartbeatTimeout <= 0 {
		return
	}
	token := transport.heartbeatToken
	transport.heartbeat = time.AfterFunc(transport.config.HeartbeatTimeout, func() {
		transport.executor.post(func() {
			if token != transport.heartbeatToken || transport.state != StateConnected {
				return
			}
			transport.heartbeat = nil
			transport.sendHeartbeat()
		})
	})
}

func (transport *transport) stopHeartbeat() {
	transport.heartbeatToken++
	if transport.heartbeat != nil {
		transport.heartbeat.Stop()
		transport.heartbeat = nil
	}
}

func (transport *transport) sendHeartbeat() {
	frame, err := transport.encodeFrame("", &wire.HeartbeatEvent{}, false)
	if err != nil {
		transport.report(NewError(EncodingError, err))
		return
	}
	if err := transport.write(frame); err != nil {
		transport.drop(frame, "not_open")
	}
}

func (transport *transport) encodeFrame(channel string, event wire.Event, replayable bool) (outboundFrame, error) {
	data, err := wire.Encode(transport.config.Encoding, event)
	if err != nil {
		return outboundFrame{}, err
	}
	return outboundFrame{
		eventType:  event.EventType(),
		channel:    channel,
		data:       data,
		text:       transport.config.Encoding.Text(),
		replayable: replayable,
	}, nil
}

// sendEvent encodes a replayable channel frame and sends or queues it.
func (transport *transport) sendEvent(channel string, event wire.Event) {
	frame, err := transport.encodeFrame(channel, event, true)
	if err != nil {
		transport.report(NewError(EncodingError, err))
		return
	}
	transport.send(frame)
}

// send writes frame now when connected and nothing is queued ahead of it.
// Replayable frames that cannot be written are queued; others are dropped.
func (transport *transport) send(frame outboundFrame) {
	if frame.replayable && (transport.state != StateConnected || transport.queue.len() > 0) {
		transport.enqueue(frame)
		return
	}
	if err := transport.write(frame); err != nil {
		if frame.replayable {
			transport.enqueue(frame)
			return
		}
		transport.drop(frame, "not_open")
	}
}

func (transport *transport) write(frame outboundFrame) error {
	if transport.socket == nil {
		return ErrSocketNotOpen
	}
	if err := transport.socket.Send(frame.data, frame.text); err != nil {
		return err
	}
	transport.metrics.framesSent.WithLabelValues(frame.eventType.String()).Inc()
	transport.armHeartbeat()
	return nil
}

func (transport *transport) enqueue(frame outboundFrame) {
	transport.queue.push(frame)
	transport.metrics.framesQueued.Inc()
	transport.logger.Debug("frame queued", "event_type", frame.eventType.String(), "channel", frame.channel, "pending", transport.queue.len())
}

func (transport *transport) drop(frame outboundFrame, reason string) {
	transport.metrics.framesDropped.WithLabelValues(reason).Inc()
	transport.logger.Debug("frame dropped", "event_type", frame.eventType.String(), "reason", reason)
}

// closeConnection cancels timers, sends a best-effort disconnect and closes
// the socket. The close callback completes the move to closed.
func (transport *transport) closeConnection() {
	switch transport.state {
	case StateClosing:
		return
	case StateUninitialized, StateClosed, StateFailed:
		transport.stopHeartbeat()
		transport.stopBackoff()
		if transport.state != StateClosed {
			transport.transition(StateClosed, nil)
		}
		return
	}

	transport.stopHeartbeat()
	transport.stopBackoff()
	transport.transition(StateClosing, nil)

	socket := transport.socket
	if socket == nil {
		transport.endConnectSpan(NewError(DisconnectedError, "client closed"))
		transport.transition(StateClosed, nil)
		return
	}

	if frame, err := transport.encodeFrame("", &wire.DisconnectEvent{}, false); err == nil {
		if err := socket.Send(frame.data, frame.text); err == nil {
			transport.metrics.framesSent.WithLabelValues(frame.eventType.String()).Inc()
		}
	}
	if err := socket.Close(); err != nil {
		transport.logger.Debug("socket close failed", "error", err)
	}
}
