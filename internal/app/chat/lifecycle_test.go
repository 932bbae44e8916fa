package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/app/store"
	"huddle/internal/pkg/errs"
)

func TestConnectGreetsWithConnID(t *testing.T) {
	h := newHarness(t)
	id, sink := h.connect()

	var p ConnectedPayload
	sink.last(t, EventConnected, &p)
	assert.Equal(t, id, p.ConnID)
}

func TestJoinServerBroadcastsUserList(t *testing.T) {
	h := newHarness(t)
	_, alice := h.join("alice")
	_, _ = h.join("bob")
	_, _ = h.join("alice")

	var p UserListPayload
	alice.last(t, EventUserList, &p)
	assert.Equal(t, store.DemoServerID, p.ServerID)
	assert.Equal(t, []string{"alice", "bob"}, p.Members, "usernames are listed once")

	srv, err := h.store.GetServer(h.ctx, store.DemoServerID)
	require.NoError(t, err)
	assert.True(t, srv.IsMember("alice"))
	h.assertConsistent()
}

func TestJoinServerUnknownServer(t *testing.T) {
	h := newHarness(t)
	id, sink := h.connect()

	h.hub.JoinServer(h.ctx, id, "alice", "nope")

	var p ErrorPayload
	sink.last(t, EventServerError, &p)
	assert.Equal(t, errs.ErrServerNotFound, p.Code)

	rec, _ := h.hub.Lookup(id)
	assert.False(t, rec.Identified())
}

func TestJoinServerRejectsBadUsername(t *testing.T) {
	h := newHarness(t)
	id, sink := h.connect()

	h.hub.JoinServer(h.ctx, id, "a b", store.DemoServerID)

	var p ErrorPayload
	sink.last(t, EventServerError, &p)
	assert.Equal(t, errs.ErrInvalidParams, p.Code)
}

func TestSwitchingServerLeavesOldScopes(t *testing.T) {
	h := newHarness(t)
	other, _, err := h.store.CreateServer(h.ctx, "Other", "carol")
	require.NoError(t, err)

	id, _ := h.join("alice")
	_, bob := h.join("bob")
	h.hub.JoinChannel(h.ctx, id, "general")
	h.hub.JoinVoice(h.ctx, id, "voice1")
	bob.reset()

	h.hub.JoinServer(h.ctx, id, "alice", other.ID)

	rec, _ := h.hub.Lookup(id)
	assert.Equal(t, other.ID, rec.ServerID)
	assert.Empty(t, rec.ChannelID)
	assert.Empty(t, rec.VoiceID)
	assert.Empty(t, h.hub.Occupants(VoiceScope("voice1")))

	var p UserListPayload
	bob.last(t, EventUserList, &p)
	assert.Equal(t, []string{"bob"}, p.Members)
	h.assertConsistent()
}

func TestJoinChannelReplaysHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.PersistMessage(h.ctx, "general", "admin", "welcome")
	require.NoError(t, err)

	id, sink := h.join("alice")
	h.hub.JoinChannel(h.ctx, id, "general")

	var p HistoryPayload
	sink.last(t, EventMessagesHistory, &p)
	assert.Equal(t, "general", p.ChannelID)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "welcome", p.Messages[0].Text)
	assert.True(t, p.Messages[0].IsOwner)

	assert.Equal(t, []ConnID{id}, h.hub.Occupants(ChannelScope("general")))

	h.hub.JoinChannel(h.ctx, id, "announcements")
	assert.Empty(t, h.hub.Occupants(ChannelScope("general")), "a connection holds one text channel")

	h.hub.LeaveChannel(id, "announcements")
	rec, _ := h.hub.Lookup(id)
	assert.Empty(t, rec.ChannelID)
	h.assertConsistent()
}

func TestJoinChannelRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	id, sink := h.connect()

	h.hub.JoinChannel(h.ctx, id, "general")

	var p ErrorPayload
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrNotIdentified, p.Code)
	assert.Empty(t, h.hub.Occupants(ChannelScope("general")))
}

func TestJoinChannelRejectsVoiceAndForeignChannels(t *testing.T) {
	h := newHarness(t)
	_, foreign, err := h.store.CreateServer(h.ctx, "Other", "carol")
	require.NoError(t, err)

	id, sink := h.join("alice")

	h.hub.JoinChannel(h.ctx, id, "voice1")
	var p ErrorPayload
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrChannelTypeInvalid, p.Code)

	h.hub.JoinChannel(h.ctx, id, foreign[0].ID)
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrChannelNotFound, p.Code)
}

func TestGetMessages(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.PersistMessage(h.ctx, "announcements", "admin", "release notes")
	require.NoError(t, err)

	id, sink := h.join("alice")
	h.hub.GetMessages(h.ctx, id, "announcements")

	var p HistoryPayload
	sink.last(t, EventMessagesHistory, &p)
	require.Len(t, p.Messages, 1)
	assert.Empty(t, h.hub.Occupants(ChannelScope("announcements")), "history does not join")
}

func TestSendMessageBroadcastsToChannelAndAcks(t *testing.T) {
	h := newHarness(t)
	alice, aliceSink := h.join("alice")
	bob, bobSink := h.join("bob")
	_, carolSink := h.join("carol")
	h.hub.JoinChannel(h.ctx, alice, "general")
	h.hub.JoinChannel(h.ctx, bob, "general")

	h.hub.SendMessage(h.ctx, alice, "general", "hello", "tmp-1")

	var msg NewMessagePayload
	bobSink.last(t, EventNewMessage, &msg)
	assert.Equal(t, "general", msg.ChannelID)
	assert.Equal(t, "hello", msg.Message.Text)
	assert.Equal(t, "alice", msg.Message.Username)
	assert.False(t, msg.Message.IsAdmin)
	assert.NotEmpty(t, msg.Message.ID)

	assert.Equal(t, 1, aliceSink.count(EventNewMessage))
	assert.Zero(t, carolSink.count(EventNewMessage), "only channel occupants receive messages")

	var ack MessageAckPayload
	aliceSink.last(t, EventMessageAck, &ack)
	assert.Equal(t, "tmp-1", ack.TempID)
	assert.Equal(t, msg.Message.ID, ack.ID)
	assert.Zero(t, bobSink.count(EventMessageAck))
}

func TestSendMessageValidatesText(t *testing.T) {
	h := newHarness(t)
	id, sink := h.join("alice")

	h.hub.SendMessage(h.ctx, id, "general", "   ", "")
	var p ErrorPayload
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrMessageEmpty, p.Code)

	long := make([]byte, MaxContentBytes+1)
	for i := range long {
		long[i] = 'x'
	}
	h.hub.SendMessage(h.ctx, id, "general", string(long), "")
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrMessageContentTooLong, p.Code)
}

func TestAdminOnlyChannelRejectsMember(t *testing.T) {
	h := newHarness(t)
	admin, adminSink := h.join("admin")
	alice, aliceSink := h.join("alice")
	h.hub.JoinChannel(h.ctx, admin, "announcements")
	h.hub.JoinChannel(h.ctx, alice, "announcements")

	h.hub.SendMessage(h.ctx, alice, "announcements", "hi", "")

	var p ErrorPayload
	aliceSink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrPermissionDenied, p.Code)
	assert.Equal(t, ChannelScope("announcements"), p.ScopeID)
	assert.NotEmpty(t, p.Reason)
	assert.Zero(t, adminSink.count(EventNewMessage))
	assert.Zero(t, aliceSink.count(EventNewMessage))

	history, err := h.store.ListMessages(h.ctx, "announcements", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	h.hub.SendMessage(h.ctx, admin, "announcements", "news", "")
	var msg NewMessagePayload
	aliceSink.last(t, EventNewMessage, &msg)
	assert.True(t, msg.Message.IsAdmin)
	assert.True(t, msg.Message.IsOwner)
}

func TestSlowModeScenario(t *testing.T) {
	h := newHarness(t)
	h.setSettings("general", store.SettingsPatch{SlowModeSeconds: intPtr(5)})

	id, sink := h.join("alice")
	h.hub.JoinChannel(h.ctx, id, "general")

	h.hub.SendMessage(h.ctx, id, "general", "t0", "")
	assert.Equal(t, 1, sink.count(EventNewMessage))

	h.clock.Advance(3 * time.Second)
	h.hub.SendMessage(h.ctx, id, "general", "t3", "")
	assert.Equal(t, 1, sink.count(EventNewMessage), "rejected sends never reach broadcast")

	var p ErrorPayload
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrSlowModeActive, p.Code)
	assert.Contains(t, p.Reason, "2 seconds")

	h.clock.Advance(3 * time.Second)
	h.hub.SendMessage(h.ctx, id, "general", "t6", "")
	assert.Equal(t, 2, sink.count(EventNewMessage))
}

func TestSlowModeIsSharedAcrossConnections(t *testing.T) {
	h := newHarness(t)
	h.setSettings("general", store.SettingsPatch{SlowModeSeconds: intPtr(30)})

	first, firstSink := h.join("alice")
	second, secondSink := h.join("alice")
	h.hub.JoinChannel(h.ctx, first, "general")

	h.hub.SendMessage(h.ctx, first, "general", "one", "")
	h.hub.SendMessage(h.ctx, second, "general", "two", "")

	assert.Equal(t, 1, firstSink.count(EventNewMessage))
	var p ErrorPayload
	secondSink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrSlowModeActive, p.Code)
}

func TestPersistFailureSkipsBroadcast(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Messages = failingMessages{MessageStore: d.Messages} })

	id, sink := h.join("alice")
	h.hub.JoinChannel(h.ctx, id, "general")

	h.hub.SendMessage(h.ctx, id, "general", "hello", "tmp")

	var p ErrorPayload
	sink.last(t, EventMessageError, &p)
	assert.Equal(t, errs.ErrStoreFailed, p.Code)
	assert.Zero(t, sink.count(EventNewMessage))
	assert.Zero(t, sink.count(EventMessageAck))
}

func TestVoiceJoinAnnouncesPeers(t *testing.T) {
	h := newHarness(t)
	a, aSink := h.join("alice")
	b, bSink := h.join("bob")

	h.hub.JoinVoice(h.ctx, a, "voice1")
	var existing VoiceUsersPayload
	aSink.last(t, EventExistingVoiceUsers, &existing)
	assert.Empty(t, existing.Users)

	h.hub.JoinVoice(h.ctx, b, "voice1")
	bSink.last(t, EventExistingVoiceUsers, &existing)
	require.Len(t, existing.Users, 1)
	assert.Equal(t, a, existing.Users[0].ConnID)

	var joined Peer
	aSink.last(t, EventUserJoinedVoice, &joined)
	assert.Equal(t, Peer{ConnID: b, UserID: "bob", Username: "bob"}, joined)
	assert.Zero(t, bSink.count(EventUserJoinedVoice), "the joiner is not told about itself")

	var updated VoiceUsersPayload
	aSink.last(t, EventVoiceUsersUpdated, &updated)
	assert.Equal(t, "voice1", updated.ChannelID)
	assert.Len(t, updated.Users, 2)

	h.hub.LeaveVoice(b, "voice1")
	var left Peer
	aSink.last(t, EventUserLeftVoice, &left)
	assert.Equal(t, b, left.ConnID)
	aSink.last(t, EventVoiceUsersUpdated, &updated)
	assert.Len(t, updated.Users, 1)
	h.assertConsistent()
}

func TestVoiceUserLimitScenario(t *testing.T) {
	h := newHarness(t)
	h.setSettings("voice1", store.SettingsPatch{UserLimit: intPtr(2)})

	a, _ := h.join("alice")
	b, _ := h.join("bob")
	c, cSink := h.join("carol")

	h.hub.JoinVoice(h.ctx, a, "voice1")
	h.hub.JoinVoice(h.ctx, b, "voice1")
	h.hub.JoinVoice(h.ctx, c, "voice1")

	var p ErrorPayload
	cSink.last(t, EventVoiceError, &p)
	assert.Equal(t, errs.ErrVoiceChannelFull, p.Code)
	assert.Equal(t, "Voice channel is full.", p.Reason)
	assert.Equal(t, []ConnID{a, b}, h.hub.Occupants(VoiceScope("voice1")))

	rec, _ := h.hub.Lookup(c)
	assert.Empty(t, rec.VoiceID)
	h.assertConsistent()
}

func TestVoiceJoinIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.setSettings("voice1", store.SettingsPatch{UserLimit: intPtr(1)})

	a, aSink := h.join("alice")
	h.hub.JoinVoice(h.ctx, a, "voice1")
	h.hub.JoinVoice(h.ctx, a, "voice1")

	assert.Zero(t, aSink.count(EventVoiceError), "rejoining a full room one already holds is fine")
	assert.Equal(t, []ConnID{a}, h.hub.Occupants(VoiceScope("voice1")))
}

func TestVoiceSwitchLeavesOldRoom(t *testing.T) {
	h := newHarness(t)
	second := h.voiceChannel("Second Voice", 0)

	a, _ := h.join("alice")
	watcher, watcherSink := h.join("bob")
	h.hub.JoinVoice(h.ctx, watcher, "voice1")
	h.hub.JoinVoice(h.ctx, a, "voice1")
	watcherSink.reset()

	h.hub.JoinVoice(h.ctx, a, second)

	assert.Equal(t, []ConnID{watcher}, h.hub.Occupants(VoiceScope("voice1")))
	assert.Equal(t, []ConnID{a}, h.hub.Occupants(VoiceScope(second)))

	var left Peer
	watcherSink.last(t, EventUserLeftVoice, &left)
	assert.Equal(t, a, left.ConnID)

	rec, _ := h.hub.Lookup(a)
	assert.Equal(t, second, rec.VoiceID)
	h.assertConsistent()
}

func TestRejectedVoiceSwitchKeepsOldRoom(t *testing.T) {
	h := newHarness(t)
	full := h.voiceChannel("Tiny", 1)

	a, _ := h.join("alice")
	b, bSink := h.join("bob")
	h.hub.JoinVoice(h.ctx, a, full)
	h.hub.JoinVoice(h.ctx, b, "voice1")

	h.hub.JoinVoice(h.ctx, b, full)

	var p ErrorPayload
	bSink.last(t, EventVoiceError, &p)
	assert.Equal(t, errs.ErrVoiceChannelFull, p.Code)

	rec, _ := h.hub.Lookup(b)
	assert.Equal(t, "voice1", rec.VoiceID, "a rejected join changes nothing")
	assert.Equal(t, []ConnID{b}, h.hub.Occupants(VoiceScope("voice1")))
	h.assertConsistent()
}

func TestJoinVoiceRejectsTextChannel(t *testing.T) {
	h := newHarness(t)
	a, sink := h.join("alice")

	h.hub.JoinVoice(h.ctx, a, "general")

	var p ErrorPayload
	sink.last(t, EventVoiceError, &p)
	assert.Equal(t, errs.ErrChannelTypeInvalid, p.Code)
}

func TestDisconnectCleansEveryScope(t *testing.T) {
	h := newHarness(t)
	a, aSink := h.join("alice")
	b, bSink := h.join("bob")

	h.hub.JoinChannel(h.ctx, a, "general")
	h.hub.JoinVoice(h.ctx, a, "voice1")
	h.hub.JoinVoice(h.ctx, b, "voice1")
	bSink.reset()

	h.hub.Disconnect(a)

	_, ok := h.hub.Lookup(a)
	assert.False(t, ok)
	assert.Empty(t, h.hub.Occupants(ChannelScope("general")))
	assert.Equal(t, []ConnID{b}, h.hub.Occupants(VoiceScope("voice1")))
	assert.True(t, aSink.isClosed())

	assert.Equal(t, 1, bSink.count(EventUserLeftVoice))
	var users UserListPayload
	bSink.last(t, EventUserList, &users)
	assert.Equal(t, []string{"bob"}, users.Members)

	before := len(bSink.events())
	h.hub.Disconnect(a)
	assert.Len(t, bSink.events(), before, "second disconnect is a no-op")
	assert.Equal(t, 1, h.hub.ConnectionCount())
	h.assertConsistent()
}

func TestDisconnectAfterExplicitLeave(t *testing.T) {
	h := newHarness(t)
	a, _ := h.join("alice")
	_, bSink := h.join("bob")

	h.hub.JoinVoice(h.ctx, a, "voice1")
	h.hub.LeaveVoice(a, "")
	bSink.reset()

	h.hub.Disconnect(a)

	assert.Zero(t, bSink.count(EventUserLeftVoice), "voice departure is announced once")
	assert.Equal(t, 1, bSink.count(EventUserList))
	h.assertConsistent()
}

func TestUpdateChannelSettings(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.join("admin")
	alice, aliceSink := h.join("alice")

	h.hub.UpdateChannelSettings(h.ctx, alice, "general", store.SettingsPatch{AdminOnly: boolPtr(true)})
	var p ErrorPayload
	aliceSink.last(t, EventPermissionError, &p)
	assert.Equal(t, errs.ErrPermissionDenied, p.Code)

	h.hub.UpdateChannelSettings(h.ctx, admin, "general", store.SettingsPatch{SlowModeSeconds: intPtr(10)})
	var updated ChannelSettingsPayload
	aliceSink.last(t, EventChannelSettingsUpdated, &updated)
	assert.Equal(t, "general", updated.ChannelID)
	assert.Equal(t, 10, updated.Settings.SlowModeSeconds)
	assert.False(t, updated.Settings.AdminOnly)

	ch, err := h.store.GetChannel(h.ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, 10, ch.Settings.SlowModeSeconds)
}

func TestUpdateChannelSettingsValidates(t *testing.T) {
	h := newHarness(t)
	admin, sink := h.join("admin")

	h.hub.UpdateChannelSettings(h.ctx, admin, "voice1", store.SettingsPatch{UserLimit: intPtr(-1)})
	var p ErrorPayload
	sink.last(t, EventServerError, &p)
	assert.Equal(t, errs.ErrInvalidParams, p.Code)

	h.hub.UpdateChannelSettings(h.ctx, admin, "missing", store.SettingsPatch{UserLimit: intPtr(1)})
	sink.last(t, EventServerError, &p)
	assert.Equal(t, errs.ErrChannelNotFound, p.Code)
}

func TestDeleteChannelEvictsOccupants(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.join("admin")
	alice, aliceSink := h.join("alice")

	h.hub.JoinChannel(h.ctx, alice, "general")
	h.hub.JoinVoice(h.ctx, alice, "voice1")

	h.hub.DeleteChannel(h.ctx, alice, "general")
	var p ErrorPayload
	aliceSink.last(t, EventPermissionError, &p)
	assert.Equal(t, errs.ErrPermissionDenied, p.Code)
	assert.Equal(t, []ConnID{alice}, h.hub.Occupants(ChannelScope("general")))

	h.hub.DeleteChannel(h.ctx, admin, "general")
	h.hub.DeleteChannel(h.ctx, admin, "voice1")

	assert.Equal(t, 2, aliceSink.count(EventChannelRemoved))
	rec, _ := h.hub.Lookup(alice)
	assert.Empty(t, rec.ChannelID)
	assert.Empty(t, rec.VoiceID)

	_, err := h.store.GetChannel(h.ctx, "general")
	assert.ErrorIs(t, err, store.ErrNotFound)
	h.assertConsistent()
}

func TestAvatarChangedBroadcastsToServer(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.join("alice")
	_, bobSink := h.join("bob")

	h.hub.AvatarChanged(alice)

	var p AvatarUpdatedPayload
	bobSink.last(t, EventAvatarUpdated, &p)
	assert.Equal(t, "alice", p.Username)
}

func TestHTTPAnnouncements(t *testing.T) {
	h := newHarness(t)
	_, sink := h.join("alice")

	ch, err := h.store.CreateChannel(h.ctx, store.DemoServerID, "News", store.ChannelAnnouncement, store.DefaultSettings(store.ChannelAnnouncement))
	require.NoError(t, err)
	h.hub.ChannelAdded(ch)

	var added ChannelAddedPayload
	sink.last(t, EventChannelAdded, &added)
	assert.Equal(t, store.ChannelText, added.ChannelType)
	assert.True(t, added.Channel.Settings.AdminOnly)

	h.hub.AdminsUpdated(store.DemoServerID, []string{"admin", "alice"})
	var admins AdminsUpdatedPayload
	sink.last(t, EventAdminsUpdated, &admins)
	assert.Equal(t, []string{"admin", "alice"}, admins.Admins)
}

func TestStoppedHubRejectsWork(t *testing.T) {
	h := newHarness(t)
	_, sink := h.join("alice")

	h.hub.Stop()

	assert.True(t, sink.isClosed())
	_, err := h.hub.Connect(&recorder{})
	assert.ErrorIs(t, err, ErrHubStopped)
}
