// Package api exposes canvas over HTTP: owner sign-in, session CRUD,
// mutation publish, live subscriptions over websocket, presence, static
// export and an MCP endpoint for agents.
//
// Anyone holding a session id may load it, publish layout mutations and
// subscribe. Listing, saving, resetting and terminating require the
// owner's token.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"

	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

// EditorPath is where share links send the browser. The editor UI is
// served by the presentation layer.
const EditorPath = "/p/"

// Version is reported to MCP clients.
const Version = "1.0.0"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	sessions *session.Manager
	hub      *channel.Hub
	owners   *auth.Owners
	secret   []byte

	logger      *slog.Logger
	events      *observability.EventLogger
	maintenance *shield.MaintenanceMode
	limiter     *shield.RateLimiter
	google      *oauth2.Config

	publicURL     string
	secureCookies bool
	allowSignup   bool

	upgrader websocket.Upgrader
	mcp      *mcp.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithEvents records HTTP requests in http_request_logs and serves the
// session event history to owners.
func WithEvents(e *observability.EventLogger) Option { return func(s *Server) { s.events = e } }

// WithMaintenance installs the maintenance switch in front of every route
// except /healthz.
func WithMaintenance(mm *shield.MaintenanceMode) Option {
	return func(s *Server) { s.maintenance = mm }
}

// WithRateLimiter installs a per-IP limiter.
func WithRateLimiter(rl *shield.RateLimiter) Option { return func(s *Server) { s.limiter = rl } }

// WithPublicURL sets the base used for share links.
func WithPublicURL(u string) Option { return func(s *Server) { s.publicURL = u } }

// WithSecureCookies marks the token cookie Secure.
func WithSecureCookies(on bool) Option { return func(s *Server) { s.secureCookies = on } }

// WithSignup lets anyone create an owner account. Without it only the
// first owner can be created through the API.
func WithSignup(on bool) Option { return func(s *Server) { s.allowSignup = on } }

// WithGoogle enables Google sign-in for owners.
func WithGoogle(cfg auth.OAuthConfig) Option {
	return func(s *Server) {
		if cfg.Enabled() {
			s.google = auth.NewGoogleProvider(cfg)
		}
	}
}

// New builds a Server. secret signs owner tokens.
func New(sessions *session.Manager, hub *channel.Hub, owners *auth.Owners, secret []byte, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		hub:      hub,
		owners:   owners,
		secret:   secret,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "canvas", Version: Version}, nil)
	s.RegisterMCP(s.mcp)
	return s
}

// MCP returns the MCP server carrying the canvas tools.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.maintenance != nil {
		r.Use(s.maintenance.Middleware)
	}
	for _, mw := range shield.Stack(nil, s.limiter) {
		r.Use(mw)
	}
	if s.events != nil {
		r.Use(s.events.HTTPMiddleware)
	}
	r.Use(auth.Middleware(s.secret))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/s/{id}", s.handleShare)

	r.Post("/api/login", s.handleLogin)
	r.Post("/api/logout", s.handleLogout)
	r.Post("/api/owners", s.handleCreateOwner)
	if s.google != nil {
		r.Get("/api/auth/google", s.handleGoogleStart)
		r.Get("/api/auth/google/callback", s.handleGoogleCallback)
	}

	r.Route("/api/sessions", func(r chi.Router) {
		r.With(auth.RequireAuth).Get("/", s.handleListSessions)
		r.With(auth.RequireAuth).Post("/", s.handleCreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/mutations", s.handlePublish)
			r.Get("/ws", s.handleSubscribe)
			r.Get("/presence", s.handlePresence)
			r.Get("/export", s.handleExport)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Patch("/", s.handleRename)
				r.Put("/layout", s.handleSaveLayout)
				r.Post("/reset", s.handleReset)
				r.Delete("/", s.handleTerminate)
				r.Get("/events", s.handleEvents)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/api/me", s.handleMe)
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil))
	})

	return r
}
