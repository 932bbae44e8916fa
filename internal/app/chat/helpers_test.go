package chat

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"huddle/internal/app/store"
)

type receivedFrame struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// recorder is a Sink that keeps every frame. A positive capacity makes Deliver refuse
// frames once that many are held.
type recorder struct {
	mu        sync.Mutex
	frames    []receivedFrame
	capacity  int
	closed    bool
	closeCode int
}

func (r *recorder) Deliver(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity > 0 && len(r.frames) >= r.capacity {
		return false
	}

	var f receivedFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic(err)
	}
	r.frames = append(r.frames, f)
	return true
}

func (r *recorder) Close(code int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.closeCode = code
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Type)
	}
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events() {
		if e == event {
			n++
		}
	}
	return n
}

// last decodes the payload of the newest frame of event into dst.
func (r *recorder) last(t *testing.T, event string, dst any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Type == event {
			require.NoError(t, json.Unmarshal(r.frames[i].Payload, dst))
			return
		}
	}
	t.Fatalf("no %q frame received; got %v", event, r.typesLocked())
}

func (r *recorder) typesLocked() []string {
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingMessages wraps a MessageStore and fails every persist.
type failingMessages struct {
	MessageStore
}

func (failingMessages) PersistMessage(context.Context, string, string, string) (store.Message, error) {
	return store.Message{}, errors.New("disk full")
}

type harness struct {
	t     *testing.T
	hub   *Hub
	store *store.MemoryStore
	clock *fakeClock
	ctx   context.Context
}

type harnessOption func(*Deps)

func withLogger(logger zerolog.Logger) harnessOption {
	return func(d *Deps) { d.Logger = &logger }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	st := store.NewMemoryStore()
	st.SeedDemo()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	quiet := testLogger()
	deps := Deps{
		Authorizer: st,
		Messages:   st,
		Channels:   st,
		Servers:    st,
		Now:        clock.Now,
		Logger:     &quiet,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	hub := NewHub(deps)
	go hub.Run()
	t.Cleanup(hub.Stop)

	return &harness{t: t, hub: hub, store: st, clock: clock, ctx: context.Background()}
}

// connect opens an anonymous connection.
func (h *harness) connect() (ConnID, *recorder) {
	h.t.Helper()
	sink := &recorder{}
	id, err := h.hub.Connect(sink)
	require.NoError(h.t, err)
	return id, sink
}

// join opens a connection identified as username in the demo server.
func (h *harness) join(username string) (ConnID, *recorder) {
	h.t.Helper()
	id, sink := h.connect()
	h.hub.JoinServer(h.ctx, id, username, store.DemoServerID)
	rec, ok := h.hub.Lookup(id)
	require.True(h.t, ok)
	require.True(h.t, rec.Identified(), "join-server failed: %v", sink.events())
	return id, sink
}

func (h *harness) voiceChannel(name string, userLimit int) string {
	h.t.Helper()
	ch, err := h.store.CreateChannel(h.ctx, store.DemoServerID, name, store.ChannelVoice, store.ChannelSettings{UserLimit: userLimit})
	require.NoError(h.t, err)
	return ch.ID
}

func (h *harness) setSettings(channelID string, patch store.SettingsPatch) {
	h.t.Helper()
	_, err := h.store.UpdateChannelSettings(h.ctx, channelID, patch)
	require.NoError(h.t, err)
}

// assertConsistent checks that presence records and the membership index describe the
// same memberships.
func (h *harness) assertConsistent() {
	h.t.Helper()

	fromRecords := make(map[ConnID][]ScopeID)
	fromIndex := make(map[ConnID][]ScopeID)
	var dangling []ConnID

	require.NoError(h.t, h.hub.do(func() {
		for id := range h.hub.registry.records {
			scopes := h.hub.registry.scopes(id)
			slices.Sort(scopes)
			fromRecords[id] = append([]ScopeID{}, scopes...)
			fromIndex[id] = h.hub.index.Scopes(id)
		}
		for _, occupants := range h.hub.index.scopes {
			for id := range occupants {
				if _, ok := h.hub.registry.records[id]; !ok {
					dangling = append(dangling, id)
				}
			}
		}
	}))

	require.Empty(h.t, dangling, "index holds unregistered connections")
	require.Equal(h.t, fromRecords, fromIndex)
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }
