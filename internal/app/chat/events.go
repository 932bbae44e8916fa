/*
Package chat is the real-time core: it tracks which connections are present, which
server, channel and voice room each one occupies, fans events out to those scopes and
relays WebRTC signaling between peers.

This file defines the wire envelope and the event payloads exchanged over the socket.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"huddle/internal/app/store"
)

// Inbound event names (client -> server).
const (
	EventJoinServer            = "join-server"
	EventJoinChannel           = "join-channel"
	EventLeaveChannel          = "leave-channel"
	EventGetMessages           = "get-messages"
	EventSendMessage           = "send-message"
	EventJoinVoice             = "join-voice"
	EventLeaveVoice            = "leave-voice"
	EventOffer                 = "offer"
	EventAnswer                = "answer"
	EventICECandidate          = "ice-candidate"
	EventToggleCamera          = "toggle-camera"
	EventToggleMicrophone      = "toggle-microphone"
	EventUpdateChannelSettings = "update-channel-settings"
	EventDeleteChannel         = "delete-channel"
	EventAvatarChanged         = "avatar-changed"
)

// Outbound event names (server -> client).
const (
	EventConnected              = "connected"
	EventUserList               = "user-list"
	EventNewMessage             = "new-message"
	EventMessageAck             = "message-ack"
	EventMessagesHistory        = "messages-history"
	EventExistingVoiceUsers     = "existing-voice-users"
	EventVoiceUsersUpdated      = "voice-users-updated"
	EventUserJoinedVoice        = "user-joined-voice"
	EventUserLeftVoice          = "user-left-voice"
	EventCameraToggled          = "camera-toggled"
	EventMicrophoneToggled      = "microphone-toggled"
	EventChannelAdded           = "channel-added"
	EventChannelRemoved         = "channel-removed"
	EventChannelSettingsUpdated = "channel-settings-updated"
	EventAdminsUpdated          = "admins-updated"
	EventAvatarUpdated          = "avatar-updated"

	EventMessageError    = "message-error"
	EventVoiceError      = "voice-error"
	EventPermissionError = "permission-error"
	EventServerError     = "server-error"
)

// InboundFrame is the envelope of every client frame.
type InboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempId,omitempty"`
}

// OutboundFrame is the envelope of every server frame.
type OutboundFrame struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// encodeFrame serialises an outbound frame. HTML escaping is off so relayed payloads
// keep their bytes.
func encodeFrame(event string, payload any, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(OutboundFrame{
		ID:        uuid.NewString(),
		Type:      event,
		Payload:   payload,
		Timestamp: now.UnixMilli(),
	}); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// signalPayloadSlot marks where encodeSignalFrame splices the relayed payload.
var signalPayloadSlot = []byte(`"payload":null}`)

// errInvalidSignalPayload is returned for signaling payloads that are not a JSON value.
var errInvalidSignalPayload = errors.New("chat: signaling payload is not valid JSON")

// encodeSignalFrame builds a relayed offer/answer/ice-candidate frame with payload written
// verbatim. Marshaling a RawMessage would compact it, so the envelope is encoded around a
// null slot and the original bytes are spliced in.
func encodeSignalFrame(event string, sender ConnID, payload json.RawMessage, now time.Time) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return nil, errInvalidSignalPayload
	}

	frame, err := encodeFrame(event, RelayedSignalPayload{Sender: sender}, now)
	if err != nil {
		return nil, err
	}

	at := bytes.Index(frame, signalPayloadSlot)
	if at < 0 {
		return nil, fmt.Errorf("chat: no payload slot in %s frame", event)
	}

	out := make([]byte, 0, len(frame)+len(payload))
	out = append(out, frame[:at]...)
	out = append(out, `"payload":`...)
	out = append(out, payload...)
	out = append(out, frame[at+len(signalPayloadSlot)-1:]...)
	return out, nil
}

// --- inbound payloads ---

type JoinServerPayload struct {
	Username string `json:"username"`
	ServerID string `json:"serverId"`
}

type ChannelRefPayload struct {
	ChannelID string `json:"channelId"`
}

type SendMessagePayload struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

// SignalPayload carries an offer, answer or ICE candidate. Payload is never inspected.
type SignalPayload struct {
	Target  ConnID          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

type TogglePayload struct {
	Enabled bool `json:"enabled"`
}

type UpdateChannelSettingsPayload struct {
	ChannelID string              `json:"channelId"`
	Settings  store.SettingsPatch `json:"settings"`
}

// --- outbound payloads ---

type ConnectedPayload struct {
	ConnID ConnID `json:"connId"`
}

type UserListPayload struct {
	ServerID string   `json:"serverId"`
	Members  []string `json:"members"`
}

type NewMessagePayload struct {
	ChannelID string        `json:"channelId"`
	Message   store.Message `json:"message"`
}

type MessageAckPayload struct {
	TempID    string `json:"tempId"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type HistoryPayload struct {
	ChannelID string          `json:"channelId"`
	Messages  []store.Message `json:"messages"`
}

// Peer identifies one connection of a voice room.
type Peer struct {
	ConnID   ConnID `json:"connId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type VoiceUsersPayload struct {
	ChannelID string `json:"channelId"`
	Users     []Peer `json:"users"`
}

type RelayedSignalPayload struct {
	Sender  ConnID          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

type ToggledPayload struct {
	ConnID  ConnID `json:"connId"`
	Enabled bool   `json:"enabled"`
}

type ChannelAddedPayload struct {
	ChannelType store.ChannelType `json:"channelType"`
	Channel     store.Channel     `json:"channel"`
}

type ChannelRemovedPayload struct {
	ChannelID string `json:"channelId"`
}

type ChannelSettingsPayload struct {
	ChannelID string                `json:"channelId"`
	Settings  store.ChannelSettings `json:"settings"`
}

type AdminsUpdatedPayload struct {
	ServerID string   `json:"serverId"`
	Admins   []string `json:"admins"`
}

type AvatarUpdatedPayload struct {
	Username string `json:"username"`
}

// ErrorPayload is the body of message-error, voice-error, permission-error and server-error.
type ErrorPayload struct {
	ScopeID ScopeID `json:"scopeId,omitempty"`
	Reason  string  `json:"reason"`
	Code    int     `json:"code"`
}
