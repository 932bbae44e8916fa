package chat

import (
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Sink is the outbound side of one connection.
type Sink interface {
	// Deliver queues frame without blocking and reports whether it was accepted.
	Deliver(frame []byte) bool

	// Close ends the outbound stream, telling the peer why.
	Close(code int, reason string)
}

// outbox holds the sink of every live connection. A sink that refuses a frame is
// recorded in overflowed and disconnected by the Hub after the current step.
type outbox struct {
	sinks      map[ConnID]Sink
	overflowed []ConnID
	now        func() time.Time
	logger     zerolog.Logger
}

func newOutbox(now func() time.Time, logger zerolog.Logger) *outbox {
	return &outbox{
		sinks:  make(map[ConnID]Sink),
		now:    now,
		logger: logger,
	}
}

func (o *outbox) encode(event string, payload any) ([]byte, bool) {
	frame, err := encodeFrame(event, payload, o.now())
	if err != nil {
		o.logger.Error().Err(err).Str("event", event).Msg("Failed to encode outbound frame.")
		return nil, false
	}
	return frame, true
}

func (o *outbox) send(id ConnID, frame []byte) bool {
	sink, ok := o.sinks[id]
	if !ok {
		return false
	}
	if !sink.Deliver(frame) {
		o.logger.Warn().Str("conn_id", string(id)).Msg("Send queue full, scheduling disconnect.")
		o.overflowed = append(o.overflowed, id)
		return false
	}
	return true
}

// emit encodes and sends one event to a single connection.
func (o *outbox) emit(id ConnID, event string, payload any) bool {
	frame, ok := o.encode(event, payload)
	if !ok {
		return false
	}
	return o.send(id, frame)
}

func (o *outbox) takeOverflowed() []ConnID {
	ids := o.overflowed
	o.overflowed = nil
	return ids
}

// Dispatcher fans events out to every occupant of a scope. It runs on the Hub
// goroutine, so events of one scope reach each occupant in invocation order.
type Dispatcher struct {
	index *Index
	out   *outbox
}

func newDispatcher(index *Index, out *outbox) *Dispatcher {
	return &Dispatcher{index: index, out: out}
}

// Broadcast sends event to the occupants of scope except the excluded connections and
// returns how many frames were queued. The frame is encoded once.
func (d *Dispatcher) Broadcast(scope ScopeID, event string, payload any, exclude ...ConnID) int {
	occupants := d.index.Occupants(scope)
	if len(occupants) == 0 {
		return 0
	}

	frame, ok := d.out.encode(event, payload)
	if !ok {
		return 0
	}

	delivered := 0
	for _, id := range occupants {
		if slices.Contains(exclude, id) {
			continue
		}
		if d.out.send(id, frame) {
			delivered++
		}
	}
	return delivered
}
