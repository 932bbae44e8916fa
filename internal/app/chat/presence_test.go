package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	a := r.Register()
	b := r.Register()
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Len())

	rec, ok := r.Lookup(a)
	require.True(t, ok)
	assert.False(t, rec.Identified())

	r.setChannel(a, "general")
	require.True(t, r.SetIdentity(a, "alice", "demo"))
	require.True(t, r.SetIdentity(a, "alice", "demo"), "idempotent")

	rec, _ = r.Lookup(a)
	assert.True(t, rec.Identified())
	assert.Equal(t, "general", rec.ChannelID, "identity does not clear scopes")

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	_, ok = r.Lookup(a)
	assert.False(t, ok)
	assert.False(t, r.SetIdentity(a, "alice", "demo"))
}

func TestRecordScopes(t *testing.T) {
	r := NewRegistry()
	id := r.Register()
	r.SetIdentity(id, "alice", "demo")
	r.setChannel(id, "general")
	r.setVoice(id, "voice1")

	assert.Equal(t, []ScopeID{"server:demo", "channel:general", "voice:voice1"}, r.scopes(id))

	rec, _ := r.Lookup(id)
	assert.Equal(t, Peer{ConnID: id, UserID: "alice", Username: "alice"}, rec.Peer())
}

func TestScopeID(t *testing.T) {
	assert.True(t, VoiceScope("v").IsVoice())
	assert.True(t, ServerScope("s").IsServer())
	assert.True(t, ChannelScope("c").IsChannel())
	assert.False(t, ChannelScope("c").IsVoice())
	assert.Equal(t, "a:b", VoiceScope("a:b").Target())

	assert.NotEqual(t, ChannelScope("lobby"), VoiceScope("lobby"), "text and voice of one channel are separate groups")
	assert.Equal(t, ChannelScope("lobby").Target(), VoiceScope("lobby").Target())
	assert.Equal(t, "demo", ServerScope("demo").Target())
}
