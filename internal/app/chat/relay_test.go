package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferIsPointToPointAndOpaque(t *testing.T) {
	h := newHarness(t)
	a, aSink := h.join("alice")
	b, bSink := h.join("bob")
	_, cSink := h.join("carol")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1\r\n","extra":[1,2,{"x":null}]}`)
	h.hub.Signal(a, EventOffer, b, payload)

	var got RelayedSignalPayload
	bSink.last(t, EventOffer, &got)
	assert.Equal(t, a, got.Sender)
	assert.Equal(t, string(payload), string(got.Payload), "payload is byte-identical")

	assert.Zero(t, aSink.count(EventOffer))
	assert.Zero(t, cSink.count(EventOffer))
}

func TestOfferKeepsPayloadWhitespace(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join("alice")
	b, bSink := h.join("bob")

	payload := json.RawMessage("{ \"type\" : \"offer\",\n  \"sdp\": \"v=0\\r\\n\",\n\t\"payload\":null}")
	h.hub.Signal(a, EventOffer, b, payload)

	var got RelayedSignalPayload
	bSink.last(t, EventOffer, &got)
	assert.Equal(t, a, got.Sender)
	assert.Equal(t, string(payload), string(got.Payload))
}

func TestEncodeSignalFrame(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	t.Run("splices payload verbatim", func(t *testing.T) {
		payload := json.RawMessage(" [1,\n 2 ,{\"a\" : \"<b>\"}] ")
		frame, err := encodeSignalFrame(EventICECandidate, "conn-1", payload, now)
		require.NoError(t, err)
		require.True(t, json.Valid(frame))

		assert.Contains(t, string(frame), `"payload":{"sender":"conn-1","payload":`+string(payload)+`},"timestamp":1700000000123}`)

		var f receivedFrame
		require.NoError(t, json.Unmarshal(frame, &f))
		assert.Equal(t, EventICECandidate, f.Type)
		assert.NotEmpty(t, f.ID)
	})

	t.Run("empty payload becomes null", func(t *testing.T) {
		frame, err := encodeSignalFrame(EventAnswer, "conn-1", nil, now)
		require.NoError(t, err)
		assert.Contains(t, string(frame), `"payload":{"sender":"conn-1","payload":null}`)
	})

	t.Run("invalid payload is rejected", func(t *testing.T) {
		_, err := encodeSignalFrame(EventOffer, "conn-1", json.RawMessage(`{"sdp":`), now)
		assert.ErrorIs(t, err, errInvalidSignalPayload)
	})
}

func TestSignalKindsKeepTheirNames(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join("alice")
	b, bSink := h.join("bob")

	h.hub.Signal(a, EventAnswer, b, json.RawMessage(`{"sdp":"x"}`))
	h.hub.Signal(a, EventICECandidate, b, json.RawMessage(`{"candidate":"c"}`))
	h.hub.Signal(a, EventJoinVoice, b, json.RawMessage(`{}`))

	assert.Equal(t, 1, bSink.count(EventAnswer))
	assert.Equal(t, 1, bSink.count(EventICECandidate))
	assert.Zero(t, bSink.count(EventJoinVoice), "only signaling events are relayed")
}

func TestSignalToUnknownTargetIsDropped(t *testing.T) {
	h := newHarness(t)
	a, aSink := h.join("alice")
	b, _ := h.join("bob")
	h.hub.Disconnect(b)
	aSink.reset()

	h.hub.Signal(a, EventOffer, b, json.RawMessage(`{}`))
	h.hub.Signal(a, EventOffer, "nobody", json.RawMessage(`{}`))

	assert.Empty(t, aSink.events(), "the sender is not told")
}

func TestSignalNeedsNoSharedRoom(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect()
	b, bSink := h.connect()

	h.hub.Signal(a, EventOffer, b, json.RawMessage(`{"sdp":"x"}`))
	assert.Equal(t, 1, bSink.count(EventOffer))
}

func TestTogglesGoToVoiceRoom(t *testing.T) {
	h := newHarness(t)
	a, aSink := h.join("alice")
	b, bSink := h.join("bob")
	_, cSink := h.join("carol")
	h.hub.JoinVoice(h.ctx, a, "voice1")
	h.hub.JoinVoice(h.ctx, b, "voice1")

	h.hub.Toggle(a, EventToggleCamera, true)
	h.hub.Toggle(a, EventToggleMicrophone, false)

	var cam ToggledPayload
	bSink.last(t, EventCameraToggled, &cam)
	assert.Equal(t, ToggledPayload{ConnID: a, Enabled: true}, cam)

	var mic ToggledPayload
	bSink.last(t, EventMicrophoneToggled, &mic)
	assert.False(t, mic.Enabled)

	assert.Zero(t, aSink.count(EventCameraToggled), "the sender is excluded")
	assert.Zero(t, cSink.count(EventCameraToggled), "non-occupants are not told")
}

func TestToggleOutsideVoiceIsIgnored(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join("alice")
	b, bSink := h.join("bob")
	h.hub.JoinVoice(h.ctx, b, "voice1")

	h.hub.Toggle(a, EventToggleCamera, true)
	assert.Zero(t, bSink.count(EventCameraToggled))
}

func TestRelayForwardRejectsNonSignalEvents(t *testing.T) {
	registry := NewRegistry()
	index := NewIndex()
	out := newOutbox(time.Now, testLogger())
	relay := newRelay(registry, newDispatcher(index, out), out)

	target := registry.Register()
	sink := &recorder{}
	out.sinks[target] = sink

	require.False(t, relay.Forward(EventNewMessage, "s", target, json.RawMessage(`{}`)))
	assert.Empty(t, sink.events())
}
