package realtime

import (
	"fmt"

	"github.com/Thejuampi/realtime-client-go/wire"
)

// startPosition asks the broker for a channel's full retained history.
const startPosition = "0"

type messageListener struct {
	id      ListenerID
	handler MessageHandler
}

// channelState is the per-channel attach/subscribe bookkeeping. It lives for
// the client's lifetime once created.
type channelState struct {
	name           string
	attached       bool
	everAttached   bool
	subscribed     bool
	everSubscribed bool
	position       string
	listeners      map[string][]messageListener
}

func (state *channelState) hasListeners() bool {
	for _, listeners := range state.listeners {
		if len(listeners) > 0 {
			return true
		}
	}
	return false
}

// subscriptionManager owns every channelState. All methods run on the
// client's executor.
type subscriptionManager struct {
	channels map[string]*channelState
	order    []string
	encoding wire.Encoding

	send      func(channel string, event wire.Event)
	emitError func(code int, message string)
	report    func(error)

	logger  Logger
	metrics *Metrics
}

func newSubscriptionManager(encoding wire.Encoding, logger Logger, metrics *Metrics) *subscriptionManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &subscriptionManager{
		channels: make(map[string]*channelState),
		encoding: encoding,
		logger:   logger,
		metrics:  metrics,
	}
}

func (manager *subscriptionManager) ensure(name string) *channelState {
	if state, exists := manager.channels[name]; exists {
		return state
	}
	state := &channelState{
		name:      name,
		position:  startPosition,
		listeners: make(map[string][]messageListener),
	}
	manager.channels[name] = state
	manager.order = append(manager.order, name)
	return state
}

func (manager *subscriptionManager) lookup(name string) (*channelState, bool) {
	state, exists := manager.channels[name]
	return state, exists
}

func (manager *subscriptionManager) attach(name string) {
	state := manager.ensure(name)
	if state.attached {
		return
	}
	state.attached = true
	state.everAttached = true
	manager.send(name, &wire.AttachEvent{Channel: name})
}

// detach keeps subscription state and position: a later attach does not mean
// the broker forgot the subscription.
func (manager *subscriptionManager) detach(name string) {
	state := manager.ensure(name)
	if !state.attached {
		return
	}
	state.attached = false
	manager.send(name, &wire.DetachEvent{Channel: name})
}

func (manager *subscriptionManager) subscribe(name string, messageName string, id ListenerID, handler MessageHandler) {
	state := manager.ensure(name)
	if !state.attached {
		manager.attach(name)
	}

	state.listeners[messageName] = append(state.listeners[messageName], messageListener{id: id, handler: handler})

	if state.subscribed {
		return
	}
	state.subscribed = true
	state.everSubscribed = true
	manager.send(name, &wire.SubscribeEvent{Channel: name, Name: messageName, Position: state.position})
}

func (manager *subscriptionManager) unsubscribe(name string, messageName string, id ListenerID) {
	state, exists := manager.lookup(name)
	if !exists {
		return
	}
	listeners := state.listeners[messageName]
	for index, listener := range listeners {
		if listener.id == id {
			listeners = append(listeners[:index:index], listeners[index+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(state.listeners, messageName)
	} else {
		state.listeners[messageName] = listeners
	}
	manager.maybeUnsubscribe(state)
}

func (manager *subscriptionManager) unsubscribeAll(name string) {
	state, exists := manager.lookup(name)
	if !exists {
		return
	}
	state.listeners = make(map[string][]messageListener)
	manager.maybeUnsubscribe(state)
}

func (manager *subscriptionManager) unsubscribeAllFrom(name string, messageName string) {
	state, exists := manager.lookup(name)
	if !exists {
		return
	}
	delete(state.listeners, messageName)
	manager.maybeUnsubscribe(state)
}

func (manager *subscriptionManager) maybeUnsubscribe(state *channelState) {
	if !state.subscribed || state.hasListeners() {
		return
	}
	state.subscribed = false
	manager.send(state.name, &wire.UnsubscribeEvent{Channel: state.name})
}

// replay rebuilds the broker's view of every channel that was ever attached,
// in creation order: attach when attached, subscribe from the stored position
// when subscribed. A resumed session may still hold state the client dropped
// while offline, so detach and unsubscribe are sent for it too. Queued control
// frames of the returned channels are superseded by the replay.
func (manager *subscriptionManager) replay(resumed bool, send func(channel string, event wire.Event) error) (map[string]bool, error) {
	covered := make(map[string]bool)
	for _, name := range manager.order {
		state := manager.channels[name]
		if !state.everAttached {
			continue
		}
		covered[name] = true

		var events []wire.Event
		switch {
		case state.attached:
			events = append(events, &wire.AttachEvent{Channel: name})
		case resumed:
			events = append(events, &wire.DetachEvent{Channel: name})
		}
		switch {
		case state.subscribed:
			events = append(events, &wire.SubscribeEvent{Channel: name, Name: firstMessageName(state), Position: state.position})
		case resumed && state.everSubscribed:
			events = append(events, &wire.UnsubscribeEvent{Channel: name})
		}

		for _, event := range events {
			if err := send(name, event); err != nil {
				return covered, err
			}
		}
	}
	return covered, nil
}

func firstMessageName(state *channelState) string {
	first := ""
	for messageName, listeners := range state.listeners {
		if len(listeners) == 0 {
			continue
		}
		if first == "" || messageName < first {
			first = messageName
		}
	}
	return first
}

// deliver advances the channel position and invokes the listeners registered
// under the message name, in registration order.
func (manager *subscriptionManager) deliver(event *wire.MessageEvent) {
	state, exists := manager.lookup(event.Channel)
	if !exists || !state.everSubscribed {
		manager.logger.Warn("message for unknown channel", "channel", event.Channel, "name", event.Name)
		if manager.emitError != nil {
			manager.emitError(UnknownChannelError, fmt.Sprintf("no subscription for channel %q", event.Channel))
		}
		return
	}

	if event.ID != "" {
		state.position = event.ID
	}

	listeners := append([]messageListener(nil), state.listeners[event.Name]...)
	if len(listeners) == 0 {
		return
	}

	message := Message{
		ID:       event.ID,
		Channel:  event.Channel,
		Name:     event.Name,
		Data:     event.Data,
		encoding: manager.encoding,
	}
	for _, listener := range listeners {
		manager.invoke(listener.handler, message)
	}
	if manager.metrics != nil {
		manager.metrics.messagesDelivered.WithLabelValues(event.Channel).Add(float64(len(listeners)))
	}
}

func (manager *subscriptionManager) invoke(handler MessageHandler, message Message) {
	defer func() {
		if recovered := recover(); recovered != nil && manager.report != nil {
			manager.report(NewError(MessageHandlerError, fmt.Sprintf("listener for %s/%s panicked: %v", message.Channel, message.Name, recovered)))
		}
	}()
	handler(message)
}
