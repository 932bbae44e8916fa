package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"huddle/internal/app/slowmode"
	"huddle/internal/pkg/logx"
)

const (
	opsChannelBuffer = 1024

	// DefaultHistoryLimit is the number of messages replayed when none is configured.
	DefaultHistoryLimit = 50

	// CloseSlowConsumer is sent to a connection whose send queue overflowed.
	CloseSlowConsumer = 4002
)

// ErrHubStopped is returned by operations submitted after Stop.
var ErrHubStopped = errors.New("chat: hub stopped")

// Deps are the collaborators of the Hub.
type Deps struct {
	Authorizer Authorizer
	Messages   MessageStore
	Channels   ChannelStore
	Servers    ServerDirectory

	// Timers backs slow mode. Nil selects an in-process store.
	Timers slowmode.Store

	HistoryLimit int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time

	// Logger is the parent of the Hub and Client loggers. Nil means the global logger.
	Logger *zerolog.Logger
}

// Hub is the single coordinator of presence, membership and delivery. Every state
// transition runs as one step on the Hub goroutine; collaborator I/O happens on the
// caller's goroutine before the step is submitted.
type Hub struct {
	registry   *Registry
	index      *Index
	out        *outbox
	dispatcher *Dispatcher
	relay      *Relay
	policy     *PolicyEngine

	authz    Authorizer
	messages MessageStore
	channels ChannelStore
	servers  ServerDirectory

	historyLimit int
	now          func() time.Time

	ops      chan func()
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	baseLogger zerolog.Logger
	logger     zerolog.Logger
}

// NewHub wires the core components. Call Run to start processing.
func NewHub(deps Deps) *Hub {
	base := logx.Logger()
	if deps.Logger != nil {
		base = deps.Logger
	}
	logger := base.With().Str("component", "Hub").Logger()

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	timers := deps.Timers
	if timers == nil {
		timers = slowmode.NewMemoryStore()
	}
	historyLimit := deps.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	registry := NewRegistry()
	index := NewIndex()
	out := newOutbox(now, logger)
	dispatcher := newDispatcher(index, out)

	return &Hub{
		registry:     registry,
		index:        index,
		out:          out,
		dispatcher:   dispatcher,
		relay:        newRelay(registry, dispatcher, out),
		policy:       NewPolicyEngine(timers, now),
		authz:        deps.Authorizer,
		messages:     deps.Messages,
		channels:     deps.Channels,
		servers:      deps.Servers,
		historyLimit: historyLimit,
		now:          now,
		ops:          make(chan func(), opsChannelBuffer),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
		baseLogger:   *base,
		logger:       logger,
	}
}

// componentLogger returns a child of the Hub's parent logger tagged with name.
func (h *Hub) componentLogger(name string) zerolog.Logger {
	return h.baseLogger.With().Str("component", name).Logger()
}

// Run processes operations until Stop is called. All sinks are closed on exit.
func (h *Hub) Run() {
	defer func() {
		for id, sink := range h.out.sinks {
			sink.Close(websocket.CloseGoingAway, "server shutting down")
			delete(h.out.sinks, id)
		}
		h.logger.Info().Msg("Hub Run loop finished.")
		close(h.done)
	}()

	h.logger.Info().Msg("Hub Run loop started.")

	for {
		select {
		case op := <-h.ops:
			op()
			h.evictOverflowed()

		case <-h.stopChan:
			h.logger.Info().Msg("Hub stop requested.")
			return
		}
	}
}

// Stop terminates Run and waits for it to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	<-h.done
}

// submit queues op without waiting for it.
func (h *Hub) submit(op func()) error {
	select {
	case <-h.stopChan:
		return ErrHubStopped
	default:
	}

	select {
	case h.ops <- op:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// do runs op on the Hub goroutine and waits for it to finish.
func (h *Hub) do(op func()) error {
	finished := make(chan struct{})
	if err := h.submit(func() {
		defer close(finished)
		op()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// evictOverflowed disconnects every connection whose send queue refused a frame during
// the last step. Disconnecting may overflow further sinks, hence the loop.
func (h *Hub) evictOverflowed() {
	for {
		ids := h.out.takeOverflowed()
		if len(ids) == 0 {
			return
		}
		for _, id := range ids {
			h.disconnect(id, CloseSlowConsumer, "send queue overflow")
		}
	}
}

// Lookup returns a snapshot of the presence record of id.
func (h *Hub) Lookup(id ConnID) (Record, bool) {
	var (
		rec Record
		ok  bool
	)
	if err := h.do(func() { rec, ok = h.registry.Lookup(id) }); err != nil {
		return Record{}, false
	}
	return rec, ok
}

// Occupants returns a snapshot of the connections of scope in join order.
func (h *Hub) Occupants(scope ScopeID) []ConnID {
	var ids []ConnID
	_ = h.do(func() { ids = h.index.Occupants(scope) })
	return ids
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	n := 0
	_ = h.do(func() { n = h.registry.Len() })
	return n
}

// send delivers one event to a single connection.
func (h *Hub) send(id ConnID, event string, payload any) {
	if err := h.do(func() { h.out.emit(id, event, payload) }); err != nil {
		h.logger.Debug().Err(err).Str("event", event).Msg("Dropped event for stopped hub.")
	}
}
