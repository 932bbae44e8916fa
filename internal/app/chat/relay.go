package chat

import (
	"encoding/json"
)

// Relay forwards WebRTC signaling. Offers, answers and ICE candidates go point to point
// with the payload untouched; camera and microphone toggles go to the sender's voice room.
type Relay struct {
	registry   *Registry
	dispatcher *Dispatcher
	out        *outbox
}

func newRelay(registry *Registry, dispatcher *Dispatcher, out *outbox) *Relay {
	return &Relay{registry: registry, dispatcher: dispatcher, out: out}
}

// IsSignal reports whether event is relayed point to point.
func IsSignal(event string) bool {
	return event == EventOffer || event == EventAnswer || event == EventICECandidate
}

// Forward delivers {sender, payload} to target under the same event name. Targets need
// not share a room with the sender. An unknown target drops the frame and returns false.
func (r *Relay) Forward(event string, sender, target ConnID, payload json.RawMessage) bool {
	if !IsSignal(event) {
		return false
	}
	if _, ok := r.registry.Lookup(target); !ok {
		return false
	}

	frame, err := encodeSignalFrame(event, sender, payload, r.out.now())
	if err != nil {
		r.out.logger.Warn().Err(err).Str("event", event).Str("sender", string(sender)).Msg("Dropping signaling frame.")
		return false
	}
	return r.out.send(target, frame)
}

// Toggle announces a camera or microphone change to the other occupants of the sender's
// voice room. Senders outside voice are ignored.
func (r *Relay) Toggle(event string, sender ConnID, enabled bool) int {
	var outbound string
	switch event {
	case EventToggleCamera:
		outbound = EventCameraToggled
	case EventToggleMicrophone:
		outbound = EventMicrophoneToggled
	default:
		return 0
	}

	rec, ok := r.registry.Lookup(sender)
	if !ok || rec.VoiceID == "" {
		return 0
	}

	return r.dispatcher.Broadcast(VoiceScope(rec.VoiceID), outbound, ToggledPayload{ConnID: sender, Enabled: enabled}, sender)
}
