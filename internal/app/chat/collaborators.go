package chat

import (
	"context"

	"huddle/internal/app/store"
)

// Authorizer answers whether a user owns or administers a server.
type Authorizer interface {
	IsOwnerOrAdmin(ctx context.Context, serverID, username string) (bool, error)
}

// MessageStore persists messages and serves history.
type MessageStore interface {
	PersistMessage(ctx context.Context, channelID, username, text string) (store.Message, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]store.Message, error)
}

// ChannelStore serves channel metadata. Missing channels yield store.ErrNotFound.
type ChannelStore interface {
	GetChannel(ctx context.Context, channelID string) (store.Channel, error)
	UpdateChannelSettings(ctx context.Context, channelID string, patch store.SettingsPatch) (store.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

// ServerDirectory resolves servers and records membership.
type ServerDirectory interface {
	GetServer(ctx context.Context, serverID string) (store.Server, error)
	EnsureMember(ctx context.Context, serverID, username string) error
}

var (
	_ Authorizer      = (store.Store)(nil)
	_ MessageStore    = (store.Store)(nil)
	_ ChannelStore    = (store.Store)(nil)
	_ ServerDirectory = (store.Store)(nil)
)
