package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"huddle/internal/pkg/auth/jwt"
	"huddle/internal/pkg/limiter"
	"huddle/internal/pkg/logx"
	"huddle/internal/pkg/resp"
)

const (
	CreateRate  = 0.05
	CreateBurst = 2
	JoinRate    = 0.2
	JoinBurst   = 5

	// FrameRate and FrameBurst bound inbound socket frames per connection.
	FrameRate  = 20
	FrameBurst = 40
)

// Limiters groups the keyed limiters the router uses so the caller can stop them on shutdown.
type Limiters struct {
	Create *limiter.KeyedLimiter
	Join   *limiter.KeyedLimiter
	Frames *limiter.KeyedLimiter
}

// NewLimiters builds the default limiter set.
func NewLimiters() *Limiters {
	return &Limiters{
		Create: limiter.New(rate.Limit(CreateRate), CreateBurst),
		Join:   limiter.New(rate.Limit(JoinRate), JoinBurst),
		Frames: limiter.New(rate.Limit(FrameRate), FrameBurst),
	}
}

// Stop terminates every janitor goroutine.
func (l *Limiters) Stop() {
	l.Create.Stop()
	l.Join.Stop()
	l.Frames.Stop()
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, applies global and per-route middleware and mounts the API and the
// WebSocket endpoint.
func Router(deps *AppDeps, limiters *Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	requestLogger := logx.Logger()
	if deps.Logger != nil {
		requestLogger = deps.Logger
	}
	r.Use(logx.RequestLogger(*requestLogger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "huddle",
			"connections": deps.Hub.ConnectionCount(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/pow", func(p chi.Router) {
			p.Get("/challenge", HandlePowChallenge(deps))
			p.Post("/verify", HandlePowVerify(deps))
		})

		api.Route("/auth", func(auth chi.Router) {
			auth.With(limiters.Create.Middleware).Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
		})

		api.Get("/server-info/{serverID}", HandleServerInfo(deps))

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity)

			authed.Route("/user", func(user chi.Router) {
				user.Get("/profile", HandleGetUserProfile(deps))
				user.Post("/avatar/presign", HandlePresignAvatarURL(deps))
				user.Post("/avatar", HandleUpdateAvatar(deps))
			})

			authed.Route("/servers", func(servers chi.Router) {
				servers.With(limiters.Create.Middleware).Post("/", HandleCreateServer(deps))
				servers.Get("/", HandleListServers(deps))
				servers.Get("/{serverID}", HandleGetServer(deps))
				servers.Post("/{serverID}/channels", HandleCreateChannel(deps))
				servers.Delete("/{serverID}/channels/{channelID}", HandleDeleteChannel(deps))
				servers.Post("/{serverID}/invites", HandleCreateInvite(deps))
				servers.Post("/{serverID}/admins", HandleSetAdmin(deps))
			})

			authed.Post("/invites/{code}/redeem", HandleRedeemInvite(deps))
		})
	})

	r.With(limiters.Join.Middleware).Get("/ws", HandleWebSocket(deps, wsUpgrader, limiters.Frames))

	return r
}
