// Package adminapi is the server-internal HTTP surface through which
// business services push notifications and end sessions.
//
// Every /v1 route requires a bearer token carrying the admin role. Errors
// are JSON objects of the form {"error":{"code":<status>,"message":"..."}}.
package adminapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/auth"
	"github.com/clone-prom-team-2025/server-sub001/internal/logctx"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/realtime"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/elnormous/contenttype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 64 << 10

var jsonMediaType = contenttype.NewMediaType("application/json")

// StatsSource reports live connection counts.
type StatsSource interface {
	Stats() realtime.Stats
}

// Server serves the admin API.
type Server struct {
	notifier notifications.Notifier
	host     sessions.Host
	authn    auth.Authenticator
	stats    StatsSource

	log       *slog.Logger
	realm     string
	adminRole string
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the slog logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStats exposes GET /v1/realtime/stats backed by src.
func WithStats(src StatsSource) Option {
	return func(s *Server) { s.stats = src }
}

// WithAdminRole overrides the role required on /v1 routes.
func WithAdminRole(role string) Option {
	return func(s *Server) {
		if role != "" {
			s.adminRole = role
		}
	}
}

// WithRealm sets the realm reported in Bearer challenges.
func WithRealm(realm string) Option {
	return func(s *Server) { s.realm = realm }
}

// WithClock overrides the time source used to stamp notifications.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server. notifier delivers notifications and terminations,
// host is used to revoke sessions.
func New(notifier notifications.Notifier, host sessions.Host, authn auth.Authenticator, opts ...Option) *Server {
	s := &Server{
		notifier:  notifier,
		host:      host,
		authn:     authn,
		log:       slog.Default(),
		realm:     "realtime-admin",
		adminRole: auth.RoleAdmin,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logctx.Wrap(s.log)
	return s
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/notifications", s.postNotification)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/logout", s.logoutSession)
			r.Post("/revoke", s.revokeSession)
		})
		if s.stats != nil {
			r.Get("/realtime/stats", s.getStats)
		}
		r.Get("/realtime/schema", s.getSchema)
	})
}

// Handler returns a standalone router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  middleware.GetReqID(r.Context()),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		ui, ch := auth.AuthenticateRequest(ctx, s.authn, r, auth.RequestOptions{Realm: s.realm, RequiredRole: s.adminRole})
		if ch != nil {
			s.log.InfoContext(ctx, "admin.auth.fail", slog.Int("status", ch.Status))
			ch.Write(w)
			return
		}
		s.log.DebugContext(ctx, "admin.auth.ok", slog.String("user_id", ui.UserID()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, realtime.Schema())
}

// decodeJSON enforces a JSON content type and a bounded body.
func decodeJSON(w http.ResponseWriter, r *http.Request, ref any) (status int, err error) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		return http.StatusUnsupportedMediaType, errors.New("content-type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ref); err != nil {
		return http.StatusBadRequest, errors.New("invalid JSON body")
	}
	return 0, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
