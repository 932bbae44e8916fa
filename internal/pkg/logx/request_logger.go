/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the chi middleware that logs one line per API request and per
WebSocket session. Lines carry the matched route pattern instead of the raw URI, so ids
and invite codes in paths do not fan out into distinct log keys, and client addresses
are anonymized.
*/
package logx

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// anonymizeIP anonymizes the given IP address string.
// For IPv4, it zeros out the last octet; for IPv6, it keeps the first 64 bits.
func anonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return v4[:3].String() + ".0"
	}

	return ip.To16()[:8].String() + "::"
}

// routePattern is the chi pattern that served r, or "unmatched" for 404s and
// requests that never reached the router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func levelFor(logger *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

// RequestLogger returns middleware that derives a request-scoped child of base, stores
// it in the request context (read it back with zerolog.Ctx) and logs completion.
//
// WebSocket upgrades are hijacked, so their line is written when the socket handler
// returns and reports the session duration rather than a status code.
func RequestLogger(base zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upgrade := websocket.IsWebSocketUpgrade(r)

			logger := base.With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
			elapsed := time.Since(start)

			route := routePattern(r)
			status := ww.Status()

			if upgrade && status == 0 {
				logger.Info().
					Str("route", route).
					Dur("session", elapsed).
					Msg("WebSocket session ended")
				return
			}

			// a handler that writes nothing gets an implicit 200
			if status == 0 {
				status = http.StatusOK
			}

			levelFor(&logger, status).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", elapsed).
				Msg("Request completed")
		})
	}
}
