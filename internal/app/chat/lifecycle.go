package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gorilla/websocket"

	"huddle/internal/app/store"
	"huddle/internal/app/user"
	"huddle/internal/pkg/errs"
)

// MaxContentBytes is the maximum size of a message text.
const MaxContentBytes = 5000

// Connect registers a new connection with its outbound sink and greets it with its id.
func (h *Hub) Connect(sink Sink) (ConnID, error) {
	var id ConnID
	err := h.do(func() {
		id = h.registry.Register()
		h.out.sinks[id] = sink
		h.out.emit(id, EventConnected, ConnectedPayload{ConnID: id})
	})
	if err != nil {
		return "", err
	}

	h.logger.Debug().Str("conn_id", string(id)).Msg("Connection registered.")
	return id, nil
}

// Disconnect runs the terminal cleanup for id. Calling it again is a no-op.
func (h *Hub) Disconnect(id ConnID) {
	_ = h.do(func() { h.disconnect(id, websocket.CloseNormalClosure, "") })
}

// JoinServer identifies the connection and enters the server scope. Switching to another
// server or username first leaves every scope held under the old identity.
func (h *Hub) JoinServer(ctx context.Context, id ConnID, username, serverID string) {
	scope := ServerScope(serverID)

	if err := user.ValidateUsername(username); err != nil || serverID == "" {
		h.reject(id, EventServerError, scope, errs.NewError(errs.ErrInvalidParams))
		return
	}

	if _, err := h.servers.GetServer(ctx, serverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errs.NewError(errs.ErrServerNotFound)
		}
		h.reject(id, EventServerError, scope, err)
		return
	}

	if err := h.servers.EnsureMember(ctx, serverID, username); err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	_ = h.do(func() {
		rec, ok := h.registry.Lookup(id)
		if !ok {
			return
		}

		if rec.Username != "" && (rec.Username != username || rec.ServerID != serverID) {
			h.leaveVoice(id)
			h.leaveChannel(id)
			h.leaveServer(id)
		}

		h.registry.SetIdentity(id, username, serverID)
		h.index.Join(scope, id)
		h.broadcastUserList(serverID)
	})

	h.logger.Info().
		Str("conn_id", string(id)).
		Str("username", username).
		Str("server_id", serverID).
		Msg("Connection joined server.")
}

// JoinChannel makes channelID the connection's current text channel and replays its history.
func (h *Hub) JoinChannel(ctx context.Context, id ConnID, channelID string) {
	rec, ch, ok := h.resolveTextChannel(ctx, id, channelID)
	if !ok {
		return
	}

	history, err := h.messages.ListMessages(ctx, ch.ID, h.historyLimit)
	if err != nil {
		h.reject(id, EventMessageError, ChannelScope(ch.ID), err)
		return
	}

	_ = h.do(func() {
		cur, ok := h.registry.Lookup(id)
		if !ok || cur.ServerID != rec.ServerID {
			return
		}

		if cur.ChannelID != ch.ID {
			h.leaveChannel(id)
			h.index.Join(ChannelScope(ch.ID), id)
			h.registry.setChannel(id, ch.ID)
		}

		h.out.emit(id, EventMessagesHistory, HistoryPayload{ChannelID: ch.ID, Messages: history})
	})
}

// LeaveChannel leaves the current text channel when it is channelID (or any when empty).
func (h *Hub) LeaveChannel(id ConnID, channelID string) {
	_ = h.do(func() {
		rec, ok := h.registry.Lookup(id)
		if ok && (channelID == "" || rec.ChannelID == channelID) {
			h.leaveChannel(id)
		}
	})
}

// GetMessages replays the history of a text channel without changing membership.
func (h *Hub) GetMessages(ctx context.Context, id ConnID, channelID string) {
	_, ch, ok := h.resolveTextChannel(ctx, id, channelID)
	if !ok {
		return
	}

	history, err := h.messages.ListMessages(ctx, ch.ID, h.historyLimit)
	if err != nil {
		h.reject(id, EventMessageError, ChannelScope(ch.ID), err)
		return
	}

	h.send(id, EventMessagesHistory, HistoryPayload{ChannelID: ch.ID, Messages: history})
}

// SendMessage runs the channel policy, persists the message and broadcasts it to the
// channel. Nothing is broadcast unless the store accepted the message.
func (h *Hub) SendMessage(ctx context.Context, id ConnID, channelID, text, tempID string) {
	scope := ChannelScope(channelID)

	if strings.TrimSpace(text) == "" {
		h.reject(id, EventMessageError, scope, errs.NewError(errs.ErrMessageEmpty))
		return
	}
	if len(text) > MaxContentBytes {
		h.reject(id, EventMessageError, scope, errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	rec, ch, ok := h.resolveTextChannel(ctx, id, channelID)
	if !ok {
		return
	}

	privileged := false
	if ch.Settings.AdminOnly {
		var err error
		if privileged, err = h.authz.IsOwnerOrAdmin(ctx, rec.ServerID, rec.Username); err != nil {
			h.reject(id, EventMessageError, scope, err)
			return
		}
	}

	if err := h.policy.CheckMessage(ctx, ch, rec.Username, privileged); err != nil {
		h.reject(id, EventMessageError, scope, err)
		return
	}

	msg, err := h.messages.PersistMessage(ctx, ch.ID, rec.Username, text)
	if err != nil {
		h.reject(id, EventMessageError, scope, err)
		return
	}

	_ = h.do(func() {
		h.dispatcher.Broadcast(scope, EventNewMessage, NewMessagePayload{ChannelID: ch.ID, Message: msg})
		if tempID != "" {
			h.out.emit(id, EventMessageAck, MessageAckPayload{
				TempID:    tempID,
				ID:        msg.ID,
				Timestamp: msg.CreatedAt.UnixMilli(),
			})
		}
	})
}

// JoinVoice moves the connection into a voice room. The capacity check runs first; a
// rejected join leaves every scope untouched, an accepted one leaves the previous room
// and enters the new one in the same step.
func (h *Hub) JoinVoice(ctx context.Context, id ConnID, channelID string) {
	scope := VoiceScope(channelID)

	rec, ok := h.Lookup(id)
	if !ok {
		return
	}
	if !rec.Identified() {
		h.reject(id, EventVoiceError, scope, errs.NewError(errs.ErrNotIdentified))
		return
	}

	ch, err := h.channelInServer(ctx, rec.ServerID, channelID)
	if err != nil {
		h.reject(id, EventVoiceError, scope, err)
		return
	}
	if !ch.Type.IsVoice() {
		h.reject(id, EventVoiceError, scope, errs.NewError(errs.ErrChannelTypeInvalid))
		return
	}

	_ = h.do(func() {
		cur, ok := h.registry.Lookup(id)
		if !ok || cur.ServerID != rec.ServerID {
			return
		}

		if cur.VoiceID == ch.ID {
			h.out.emit(id, EventExistingVoiceUsers, VoiceUsersPayload{ChannelID: ch.ID, Users: h.voiceUsers(ch.ID, id)})
			return
		}

		if err := h.policy.CheckVoiceCapacity(ch.Settings.UserLimit, h.index.Count(scope)); err != nil {
			h.fail(id, EventVoiceError, scope, err)
			return
		}

		h.leaveVoice(id)
		h.index.Join(scope, id)
		h.registry.setVoice(id, ch.ID)

		h.out.emit(id, EventExistingVoiceUsers, VoiceUsersPayload{ChannelID: ch.ID, Users: h.voiceUsers(ch.ID, id)})
		h.dispatcher.Broadcast(scope, EventUserJoinedVoice, cur.Peer(), id)
		h.dispatcher.Broadcast(scope, EventVoiceUsersUpdated, VoiceUsersPayload{ChannelID: ch.ID, Users: h.voiceUsers(ch.ID)})
	})
}

// LeaveVoice leaves the current voice room when it is channelID (or any when empty).
func (h *Hub) LeaveVoice(id ConnID, channelID string) {
	_ = h.do(func() {
		rec, ok := h.registry.Lookup(id)
		if ok && (channelID == "" || rec.VoiceID == channelID) {
			h.leaveVoice(id)
		}
	})
}

// Signal relays an offer, answer or ICE candidate to target. Unknown targets are dropped.
func (h *Hub) Signal(id ConnID, event string, target ConnID, payload json.RawMessage) {
	_ = h.do(func() {
		if _, ok := h.registry.Lookup(id); !ok {
			return
		}
		if !h.relay.Forward(event, id, target, payload) {
			h.logger.Debug().
				Str("conn_id", string(id)).
				Str("target", string(target)).
				Str("event", event).
				Msg("Signaling target unavailable, frame dropped.")
		}
	})
}

// Toggle announces a camera or microphone change to the sender's voice room.
func (h *Hub) Toggle(id ConnID, event string, enabled bool) {
	_ = h.do(func() { h.relay.Toggle(event, id, enabled) })
}

// UpdateChannelSettings applies a settings patch on behalf of an owner or admin and
// announces the result to the server.
func (h *Hub) UpdateChannelSettings(ctx context.Context, id ConnID, channelID string, patch store.SettingsPatch) {
	rec, ok := h.authorizeManager(ctx, id, channelID)
	if !ok {
		return
	}
	scope := ChannelScope(channelID)

	if _, err := h.channelInServer(ctx, rec.ServerID, channelID); err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	if err := patch.Validate(); err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	updated, err := h.channels.UpdateChannelSettings(ctx, channelID, patch)
	if err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	h.ChannelSettingsUpdated(rec.ServerID, updated)
}

// DeleteChannel removes a channel on behalf of an owner or admin.
func (h *Hub) DeleteChannel(ctx context.Context, id ConnID, channelID string) {
	rec, ok := h.authorizeManager(ctx, id, channelID)
	if !ok {
		return
	}
	scope := ChannelScope(channelID)

	if _, err := h.channelInServer(ctx, rec.ServerID, channelID); err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	if err := h.channels.DeleteChannel(ctx, channelID); err != nil {
		h.reject(id, EventServerError, scope, err)
		return
	}

	h.ChannelRemoved(ctx, rec.ServerID, channelID)
}

// AvatarChanged tells the connection's server that its user has a new avatar.
func (h *Hub) AvatarChanged(id ConnID) {
	_ = h.do(func() {
		rec, ok := h.registry.Lookup(id)
		if !ok || !rec.Identified() {
			return
		}
		h.dispatcher.Broadcast(ServerScope(rec.ServerID), EventAvatarUpdated, AvatarUpdatedPayload{Username: rec.Username})
	})
}

// --- announcements originating outside the socket (HTTP API) ---

// ChannelAdded announces a new channel to its server. channelType names the sidebar list
// (text or voice) the channel belongs to.
func (h *Hub) ChannelAdded(ch store.Channel) {
	listType := store.ChannelText
	if ch.Type.IsVoice() {
		listType = store.ChannelVoice
	}

	_ = h.do(func() {
		h.dispatcher.Broadcast(ServerScope(ch.ServerID), EventChannelAdded, ChannelAddedPayload{ChannelType: listType, Channel: ch})
	})
}

// ChannelSettingsUpdated announces new channel settings to the server.
func (h *Hub) ChannelSettingsUpdated(serverID string, ch store.Channel) {
	_ = h.do(func() {
		h.dispatcher.Broadcast(ServerScope(serverID), EventChannelSettingsUpdated, ChannelSettingsPayload{ChannelID: ch.ID, Settings: ch.Settings})
	})
}

// ChannelRemoved evicts every occupant of a deleted channel and its voice room, forgets
// its slow-mode timers and announces the removal to the server.
func (h *Hub) ChannelRemoved(ctx context.Context, serverID, channelID string) {
	if err := h.policy.Forget(ctx, channelID); err != nil {
		h.logger.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to drop slow-mode timers.")
	}

	_ = h.do(func() {
		for _, cid := range h.index.Occupants(ChannelScope(channelID)) {
			h.leaveChannel(cid)
		}
		for _, cid := range h.index.Occupants(VoiceScope(channelID)) {
			h.index.Leave(VoiceScope(channelID), cid)
			h.registry.setVoice(cid, "")
		}
		h.dispatcher.Broadcast(ServerScope(serverID), EventChannelRemoved, ChannelRemovedPayload{ChannelID: channelID})
	})
}

// AdminsUpdated announces the new admin list of a server.
func (h *Hub) AdminsUpdated(serverID string, admins []string) {
	_ = h.do(func() {
		h.dispatcher.Broadcast(ServerScope(serverID), EventAdminsUpdated, AdminsUpdatedPayload{ServerID: serverID, Admins: admins})
	})
}

// --- steps below run on the Hub goroutine ---

func (h *Hub) leaveVoice(id ConnID) {
	rec, ok := h.registry.Lookup(id)
	if !ok || rec.VoiceID == "" {
		return
	}
	h.index.Leave(VoiceScope(rec.VoiceID), id)
	h.registry.setVoice(id, "")
	h.announceVoiceDeparture(rec.VoiceID, rec.Peer())
}

func (h *Hub) leaveChannel(id ConnID) {
	rec, ok := h.registry.Lookup(id)
	if !ok || rec.ChannelID == "" {
		return
	}
	h.index.Leave(ChannelScope(rec.ChannelID), id)
	h.registry.setChannel(id, "")
}

func (h *Hub) leaveServer(id ConnID) {
	rec, ok := h.registry.Lookup(id)
	if !ok || rec.ServerID == "" {
		return
	}
	h.index.Leave(ServerScope(rec.ServerID), id)
	h.registry.clearServer(id)
	h.broadcastUserList(rec.ServerID)
}

func (h *Hub) disconnect(id ConnID, code int, reason string) {
	rec, ok := h.registry.Lookup(id)
	if !ok {
		return
	}

	for _, scope := range h.index.LeaveAll(id) {
		switch {
		case scope.IsVoice():
			h.announceVoiceDeparture(scope.Target(), rec.Peer())
		case scope.IsServer():
			h.broadcastUserList(scope.Target())
		}
	}

	h.registry.Unregister(id)

	if sink, ok := h.out.sinks[id]; ok {
		delete(h.out.sinks, id)
		sink.Close(code, reason)
	}

	h.logger.Info().
		Str("conn_id", string(id)).
		Str("username", rec.Username).
		Int("connections", h.registry.Len()).
		Msg("Connection cleaned up.")
}

func (h *Hub) announceVoiceDeparture(channelID string, peer Peer) {
	scope := VoiceScope(channelID)
	h.dispatcher.Broadcast(scope, EventUserLeftVoice, peer)
	h.dispatcher.Broadcast(scope, EventVoiceUsersUpdated, VoiceUsersPayload{ChannelID: channelID, Users: h.voiceUsers(channelID)})
}

func (h *Hub) broadcastUserList(serverID string) {
	h.dispatcher.Broadcast(ServerScope(serverID), EventUserList, UserListPayload{
		ServerID: serverID,
		Members:  h.onlineMembers(serverID),
	})
}

// onlineMembers lists the distinct usernames present in a server, in join order.
func (h *Hub) onlineMembers(serverID string) []string {
	seen := make(map[string]struct{})
	members := make([]string, 0)
	for _, cid := range h.index.Occupants(ServerScope(serverID)) {
		rec, ok := h.registry.Lookup(cid)
		if !ok {
			continue
		}
		if _, dup := seen[rec.Username]; dup {
			continue
		}
		seen[rec.Username] = struct{}{}
		members = append(members, rec.Username)
	}
	return members
}

func (h *Hub) voiceUsers(channelID string, exclude ...ConnID) []Peer {
	users := make([]Peer, 0)
	for _, cid := range h.index.Occupants(VoiceScope(channelID)) {
		if len(exclude) > 0 && cid == exclude[0] {
			continue
		}
		if rec, ok := h.registry.Lookup(cid); ok {
			users = append(users, rec.Peer())
		}
	}
	return users
}

// fail sends an error event to one connection.
func (h *Hub) fail(id ConnID, event string, scope ScopeID, err error) {
	customErr := toCustomError(err)
	if customErr.Code == errs.ErrStoreFailed || customErr.Code == errs.ErrUnknown {
		h.logger.Error().Err(err).Str("conn_id", string(id)).Str("event", event).Msg("Collaborator failure.")
	}
	h.out.emit(id, event, ErrorPayload{ScopeID: scope, Reason: customErr.Message, Code: customErr.Code})
}

// --- helpers running on the caller's goroutine ---

func (h *Hub) reject(id ConnID, event string, scope ScopeID, err error) {
	_ = h.do(func() { h.fail(id, event, scope, err) })
}

// resolveTextChannel loads a text or announcement channel of the connection's server.
func (h *Hub) resolveTextChannel(ctx context.Context, id ConnID, channelID string) (Record, store.Channel, bool) {
	scope := ChannelScope(channelID)

	rec, ok := h.Lookup(id)
	if !ok {
		return Record{}, store.Channel{}, false
	}
	if !rec.Identified() {
		h.reject(id, EventMessageError, scope, errs.NewError(errs.ErrNotIdentified))
		return Record{}, store.Channel{}, false
	}

	ch, err := h.channelInServer(ctx, rec.ServerID, channelID)
	if err != nil {
		h.reject(id, EventMessageError, scope, err)
		return Record{}, store.Channel{}, false
	}
	if !ch.Type.AcceptsMessages() {
		h.reject(id, EventMessageError, scope, errs.NewError(errs.ErrChannelTypeInvalid))
		return Record{}, store.Channel{}, false
	}

	return rec, ch, true
}

// authorizeManager checks that the connection is identified and owns or administers its server.
func (h *Hub) authorizeManager(ctx context.Context, id ConnID, channelID string) (Record, bool) {
	scope := ChannelScope(channelID)

	rec, ok := h.Lookup(id)
	if !ok {
		return Record{}, false
	}
	if !rec.Identified() {
		h.reject(id, EventPermissionError, scope, errs.NewError(errs.ErrNotIdentified))
		return Record{}, false
	}

	privileged, err := h.authz.IsOwnerOrAdmin(ctx, rec.ServerID, rec.Username)
	if err != nil {
		h.reject(id, EventServerError, scope, err)
		return Record{}, false
	}
	if !privileged {
		h.reject(id, EventPermissionError, scope, &PolicyError{Kind: PermissionDenied})
		return Record{}, false
	}

	return rec, true
}

func (h *Hub) channelInServer(ctx context.Context, serverID, channelID string) (store.Channel, error) {
	if channelID == "" {
		return store.Channel{}, &PolicyError{Kind: NotFound}
	}
	ch, err := h.channels.GetChannel(ctx, channelID)
	if err != nil {
		return store.Channel{}, err
	}
	if ch.ServerID != serverID {
		return store.Channel{}, &PolicyError{Kind: NotFound}
	}
	return ch, nil
}

func toCustomError(err error) *errs.CustomError {
	var policyErr *PolicyError
	if errors.As(err, &policyErr) {
		return policyErr.CustomError()
	}

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NewError(errs.ErrChannelNotFound)
	case errors.Is(err, store.ErrInvalidSettings):
		return errs.NewError(errs.ErrInvalidParams)
	}
	return errs.NewError(errs.ErrStoreFailed)
}
