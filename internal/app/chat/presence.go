package chat

import (
	"strings"

	"github.com/google/uuid"
)

// ConnID identifies one live socket. It is assigned on connect and never reused.
type ConnID string

// ScopeID names a broadcast and membership group: a server, a text channel or a voice room.
type ScopeID string

const (
	serverScopePrefix  = "server:"
	channelScopePrefix = "channel:"
	voiceScopePrefix   = "voice:"
)

// ServerScope is the group of every connection that joined serverID. Server-wide
// events such as presence and channel changes fan out here.
func ServerScope(serverID string) ScopeID { return ScopeID(serverScopePrefix + serverID) }

// ChannelScope is the group of connections viewing the text channel channelID.
func ChannelScope(channelID string) ScopeID { return ScopeID(channelScopePrefix + channelID) }

// VoiceScope is the voice room of channelID. It is distinct from ChannelScope for the
// same id, so text viewers and voice occupants of one channel are tracked separately.
func VoiceScope(channelID string) ScopeID { return ScopeID(voiceScopePrefix + channelID) }

// IsVoice reports whether s names a voice room.
func (s ScopeID) IsVoice() bool { return strings.HasPrefix(string(s), voiceScopePrefix) }

// IsServer reports whether s names a server.
func (s ScopeID) IsServer() bool { return strings.HasPrefix(string(s), serverScopePrefix) }

// IsChannel reports whether s names a text channel.
func (s ScopeID) IsChannel() bool { return strings.HasPrefix(string(s), channelScopePrefix) }

// Target returns the server or channel id the scope refers to.
func (s ScopeID) Target() string {
	_, id, _ := strings.Cut(string(s), ":")
	return id
}

// Record is the presence state of one connection. Empty strings mean "not set".
type Record struct {
	ID        ConnID
	Username  string
	ServerID  string
	ChannelID string
	VoiceID   string
}

// Identified reports whether the connection has completed join-server.
func (r Record) Identified() bool { return r.Username != "" && r.ServerID != "" }

// Peer returns the public view of the connection used in voice payloads.
func (r Record) Peer() Peer {
	return Peer{ConnID: r.ID, UserID: r.Username, Username: r.Username}
}

// Registry maps connection ids to their presence record. It is not safe for concurrent
// use; the Hub goroutine owns it.
type Registry struct {
	records map[ConnID]*Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[ConnID]*Record)}
}

// Register creates an anonymous record and returns its fresh id.
func (r *Registry) Register() ConnID {
	id := ConnID(uuid.NewString())
	r.records[id] = &Record{ID: id}
	return id
}

// SetIdentity records the user and server of id. Channel and voice fields are kept.
// It returns false when id is unknown.
func (r *Registry) SetIdentity(id ConnID, username, serverID string) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	rec.Username = username
	rec.ServerID = serverID
	return true
}

// Lookup returns a copy of the record of id.
func (r *Registry) Lookup(id ConnID) (Record, bool) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Unregister removes id. Callers must already have removed it from every scope.
func (r *Registry) Unregister(id ConnID) bool {
	if _, ok := r.records[id]; !ok {
		return false
	}
	delete(r.records, id)
	return true
}

// Len returns the number of live connections.
func (r *Registry) Len() int { return len(r.records) }

func (r *Registry) setChannel(id ConnID, channelID string) {
	if rec, ok := r.records[id]; ok {
		rec.ChannelID = channelID
	}
}

func (r *Registry) setVoice(id ConnID, channelID string) {
	if rec, ok := r.records[id]; ok {
		rec.VoiceID = channelID
	}
}

func (r *Registry) clearServer(id ConnID) {
	if rec, ok := r.records[id]; ok {
		rec.ServerID = ""
	}
}

// scopes lists the scopes the record of id names as current.
func (r *Registry) scopes(id ConnID) []ScopeID {
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	var out []ScopeID
	if rec.ServerID != "" {
		out = append(out, ServerScope(rec.ServerID))
	}
	if rec.ChannelID != "" {
		out = append(out, ChannelScope(rec.ChannelID))
	}
	if rec.VoiceID != "" {
		out = append(out, VoiceScope(rec.VoiceID))
	}
	return out
}
