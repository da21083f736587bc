package realtime

import "github.com/Thejuampi/realtime-client-go/wire"

// outboundFrame is an encoded frame waiting to be written.
type outboundFrame struct {
	eventType  wire.EventType
	channel    string
	data       []byte
	text       bool
	replayable bool
}

// control reports channel control frames, which the resume step regenerates
// from channel state.
func (frame outboundFrame) control() bool {
	switch frame.eventType {
	case wire.EventAttach, wire.EventDetach, wire.EventSubscribe, wire.EventUnsubscribe:
		return true
	default:
		return false
	}
}

// messageQueue holds replayable frames until the next connection. It is only
// touched from the client's executor.
type messageQueue struct {
	frames []outboundFrame
}

func (queue *messageQueue) push(frame outboundFrame) {
	queue.frames = append(queue.frames, frame)
}

func (queue *messageQueue) len() int {
	return len(queue.frames)
}

// drain hands frames to send in FIFO order. It stops at the first error and
// keeps that frame and everything after it.
func (queue *messageQueue) drain(send func(outboundFrame) error) error {
	for len(queue.frames) > 0 {
		if err := send(queue.frames[0]); err != nil {
			return err
		}
		queue.frames[0] = outboundFrame{}
		queue.frames = queue.frames[1:]
	}
	queue.frames = nil
	return nil
}
