/*
Package store defines the persistent domain model (users, servers, channels, invites,
messages) and the Store interface implemented by the in-memory and Postgres backends.

The real-time core never owns this data. It reads channel policy, authorization and
history through narrow interfaces satisfied by Store.
*/
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("store: conflict")

	// ErrInviteExhausted is returned when an invite has no uses left.
	ErrInviteExhausted = errors.New("store: invite exhausted")

	// ErrAlreadyMember is returned when redeeming an invite for a server the user already belongs to.
	ErrAlreadyMember = errors.New("store: already a member")

	// ErrInvalidSettings is returned when a settings patch carries out-of-range values.
	ErrInvalidSettings = errors.New("store: invalid channel settings")
)

const (
	// MaxSlowModeSeconds caps the per-channel slow-mode interval (6 hours).
	MaxSlowModeSeconds = 6 * 60 * 60

	// MaxUserLimit caps the voice channel user limit.
	MaxUserLimit = 99

	// DefaultInviteMaxUses is the number of redemptions an invite allows.
	DefaultInviteMaxUses = 10
)

// ChannelType distinguishes text, announcement and voice channels.
type ChannelType string

const (
	ChannelText         ChannelType = "text"
	ChannelAnnouncement ChannelType = "announcement"
	ChannelVoice        ChannelType = "voice"
)

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelText, ChannelAnnouncement, ChannelVoice:
		return true
	}
	return false
}

// IsVoice reports whether t is a voice channel type.
func (t ChannelType) IsVoice() bool { return t == ChannelVoice }

// AcceptsMessages reports whether text messages can be posted to channels of type t.
func (t ChannelType) AcceptsMessages() bool {
	return t == ChannelText || t == ChannelAnnouncement
}

// ChannelSettings is the policy fragment of a channel.
type ChannelSettings struct {
	AdminOnly       bool `json:"adminOnly"`
	SlowModeSeconds int  `json:"slowModeSeconds"`
	UserLimit       int  `json:"userLimit"`
}

// DefaultSettings returns the settings a new channel of type t starts with.
func DefaultSettings(t ChannelType) ChannelSettings {
	if t == ChannelAnnouncement {
		return ChannelSettings{AdminOnly: true}
	}
	return ChannelSettings{}
}

// SettingsPatch carries a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	AdminOnly       *bool `json:"adminOnly,omitempty"`
	SlowModeSeconds *int  `json:"slowModeSeconds,omitempty"`
	UserLimit       *int  `json:"userLimit,omitempty"`
}

// Validate checks the ranges of the fields present in p.
func (p SettingsPatch) Validate() error {
	if p.SlowModeSeconds != nil && (*p.SlowModeSeconds < 0 || *p.SlowModeSeconds > MaxSlowModeSeconds) {
		return ErrInvalidSettings
	}
	if p.UserLimit != nil && (*p.UserLimit < 0 || *p.UserLimit > MaxUserLimit) {
		return ErrInvalidSettings
	}
	return nil
}

// Apply returns s with the fields present in p overwritten.
func (s ChannelSettings) Apply(p SettingsPatch) ChannelSettings {
	if p.AdminOnly != nil {
		s.AdminOnly = *p.AdminOnly
	}
	if p.SlowModeSeconds != nil {
		s.SlowModeSeconds = *p.SlowModeSeconds
	}
	if p.UserLimit != nil {
		s.UserLimit = *p.UserLimit
	}
	return s
}

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	AvatarKey    string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Server is a named group of channels and members.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Admins    []string  `json:"admins"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsOwnerOrAdmin reports whether username owns or administers s.
func (s Server) IsOwnerOrAdmin(username string) bool {
	return s.Owner == username || slices.Contains(s.Admins, username)
}

// IsMember reports whether username belongs to s.
func (s Server) IsMember(username string) bool {
	return slices.Contains(s.Members, username)
}

// Channel is a text, announcement or voice channel inside a server.
type Channel struct {
	ID        string          `json:"id"`
	ServerID  string          `json:"serverId"`
	Name      string          `json:"name"`
	Type      ChannelType     `json:"type"`
	Settings  ChannelSettings `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Message is a persisted chat message together with the author's roles at posting time.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	IsAdmin   bool      `json:"isAdmin"`
	IsOwner   bool      `json:"isOwner"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invite is a redeemable code granting membership of a server.
type Invite struct {
	Code      string    `json:"code"`
	ServerID  string    `json:"serverId"`
	CreatedBy string    `json:"createdBy"`
	Uses      int       `json:"uses"`
	MaxUses   int       `json:"maxUses"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the full persistence contract used by the HTTP API and the real-time core.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateAvatar(ctx context.Context, userID, key string) (User, error)
	TouchLastLogin(ctx context.Context, userID string) error

	// CreateServer creates a server owned by owner together with its default channels.
	CreateServer(ctx context.Context, name, owner string) (Server, []Channel, error)
	GetServer(ctx context.Context, serverID string) (Server, error)
	ListServersForUser(ctx context.Context, username string) ([]Server, error)
	EnsureMember(ctx context.Context, serverID, username string) error
	SetAdmin(ctx context.Context, serverID, username string, admin bool) (Server, error)
	IsOwnerOrAdmin(ctx context.Context, serverID, username string) (bool, error)

	CreateChannel(ctx context.Context, serverID, name string, typ ChannelType, settings ChannelSettings) (Channel, error)
	GetChannel(ctx context.Context, channelID string) (Channel, error)
	ListChannels(ctx context.Context, serverID string) ([]Channel, error)
	UpdateChannelSettings(ctx context.Context, channelID string, patch SettingsPatch) (Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	CreateInvite(ctx context.Context, serverID, createdBy string, maxUses int) (Invite, error)
	RedeemInvite(ctx context.Context, code, username string) (Server, error)

	// PersistMessage stores a message and stamps it with an id, time and the author's roles.
	PersistMessage(ctx context.Context, channelID, username, text string) (Message, error)
	// ListMessages returns up to limit of the newest messages, oldest first.
	ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	Close() error
}
