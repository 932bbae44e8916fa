package handler

import (
	"github.com/rs/zerolog"

	"huddle/internal/app/chat"
	"huddle/internal/app/storage"
	"huddle/internal/app/store"
	"huddle/internal/configs"
	"huddle/internal/pkg/pow"
)

// AppDeps carries everything the HTTP and WebSocket handlers need.
type AppDeps struct {
	Hub     *chat.Hub
	Config  *configs.AppConfig
	Store   store.Store
	Avatars *storage.Avatars
	Pow     *pow.Manager

	// Logger is the parent of the request loggers. Nil means the global logger.
	Logger *zerolog.Logger
}
