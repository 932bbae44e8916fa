package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"huddle/internal/app/chat"
	"huddle/internal/pkg/limiter"
	"huddle/internal/pkg/logx"
)

// HandleWebSocket upgrades the connection and hands it to the Hub. Identity is asserted
// later by the join-server frame.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, frames *limiter.KeyedLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error())
			return
		}

		client := chat.NewClient(deps.Hub, conn, frames)
		if err := client.Serve(); err != nil {
			logx.Warn("WebSocket connection refused by hub", "error", err.Error())
		}
	}
}
