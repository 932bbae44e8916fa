package logx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedRouter(buf *bytes.Buffer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(zerolog.New(buf)))

	r.Get("/api/servers/{serverID}", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/quiet", func(http.ResponseWriter, *http.Request) {})
	r.Get("/ws", func(http.ResponseWriter, *http.Request) {})
	return r
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line), raw)
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/api/servers/k3x9?invite=SECRET", nil)
	req.RemoteAddr = "192.0.2.77:5123"
	newLoggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, buf.String(), "SECRET")

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)

	inside, done := lines[0], lines[1]
	assert.Equal(t, "inside handler", inside["message"])
	assert.NotEmpty(t, inside["request_id"], "handlers get the request-scoped logger")

	assert.Equal(t, "Request completed", done["message"])
	assert.Equal(t, "info", done["level"])
	assert.Equal(t, "http", done["component"])
	assert.Equal(t, "/api/servers/{serverID}", done["route"])
	assert.Equal(t, "/api/servers/k3x9", done["path"])
	assert.Equal(t, "GET", done["method"])
	assert.Equal(t, "192.0.2.0", done["remote_ip"])
	assert.EqualValues(t, http.StatusOK, done["status"])
	assert.EqualValues(t, 2, done["bytes"])
	assert.Equal(t, inside["request_id"], done["request_id"])
}

func TestRequestLoggerUnmatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	newLoggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "unmatched", lines[0]["route"])
	assert.EqualValues(t, http.StatusNotFound, lines[0]["status"])
}

func TestRequestLoggerImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	newLoggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/quiet", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Request completed", lines[0]["message"])
	assert.EqualValues(t, http.StatusOK, lines[0]["status"])
}

func TestRequestLoggerWebSocketSession(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	newLoggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WebSocket session ended", lines[0]["message"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "/ws", lines[0]["route"])
	assert.Contains(t, lines[0], "session")
	assert.NotContains(t, lines[0], "status")
}
