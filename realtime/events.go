package realtime

import "fmt"

// ConnectionEvent is delivered to connection listeners. Error is set for the
// error and failed events.
type ConnectionEvent struct {
	State ConnectionState
	Error *ErrorEvent
}

// ConnectionHandler receives connection events.
type ConnectionHandler func(ConnectionEvent)

type connectionListener struct {
	id      ListenerID
	state   ConnectionState
	any     bool
	handler ConnectionHandler
}

// eventRegistry maps connection events to ordered listener lists. It is only
// touched from the client's executor.
type eventRegistry struct {
	listeners []connectionListener
	report    func(error)
}

func (registry *eventRegistry) add(id ListenerID, state ConnectionState, handler ConnectionHandler) {
	if handler == nil {
		return
	}
	registry.listeners = append(registry.listeners, connectionListener{id: id, state: state, handler: handler})
}

func (registry *eventRegistry) addAny(id ListenerID, handler ConnectionHandler) {
	if handler == nil {
		return
	}
	registry.listeners = append(registry.listeners, connectionListener{id: id, any: true, handler: handler})
}

func (registry *eventRegistry) remove(id ListenerID) {
	for index, listener := range registry.listeners {
		if listener.id == id {
			registry.listeners = append(registry.listeners[:index:index], registry.listeners[index+1:]...)
			return
		}
	}
}

func (registry *eventRegistry) emit(event ConnectionEvent) {
	listeners := append([]connectionListener(nil), registry.listeners...)
	for _, listener := range listeners {
		if !listener.any && listener.state != event.State {
			continue
		}
		registry.invoke(listener.handler, event)
	}
}

func (registry *eventRegistry) invoke(handler ConnectionHandler, event ConnectionEvent) {
	defer func() {
		if recovered := recover(); recovered != nil && registry.report != nil {
			registry.report(NewError(UnknownError, fmt.Sprintf("%s listener panicked: %v", event.State, recovered)))
		}
	}()
	handler(event)
}
