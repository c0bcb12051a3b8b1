package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/auth"
	"github.com/clone-prom-team-2025/server-sub001/internal/logctx"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/registry"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultSendQueueSize  = 64
	defaultPongWait       = 60 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 64 << 10
)

// Hub is an http.Handler that upgrades authenticated requests to WebSocket
// connections and tracks them in a connection registry it owns.
type Hub struct {
	reg      *registry.Registry[notifications.Recipient]
	store    sessions.Store
	authn    auth.Authenticator
	log      *slog.Logger
	upgrader websocket.Upgrader
	opts     options

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type options struct {
	logger         *slog.Logger
	realm          string
	allowedOrigins []string
	sendQueueSize  int
	pongWait       time.Duration
	pingPeriod     time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64
	now            func() time.Time
}

// Option configures a Hub.
type Option func(*options)

// WithLogger sets the slog logger used by the hub. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRealm sets the realm reported in Bearer challenges.
func WithRealm(realm string) Option {
	return func(o *options) { o.realm = realm }
}

// WithAllowedOrigins restricts the Origin header of upgrade requests. An
// empty list accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) { o.allowedOrigins = append([]string(nil), origins...) }
}

// WithSendQueueSize bounds the per-connection outbound queue.
func WithSendQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueueSize = n
		}
	}
}

// WithKeepalive sets how long a connection may stay silent before it is
// considered dead. Pings are sent at 9/10 of that interval.
func WithKeepalive(pongWait time.Duration) Option {
	return func(o *options) {
		if pongWait > 0 {
			o.pongWait = pongWait
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithMaxMessageSize bounds inbound frames.
func WithMaxMessageSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

// WithClock overrides the time source for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewHub creates a Hub validating connections against store.
func NewHub(store sessions.Store, authn auth.Authenticator, opts ...Option) *Hub {
	o := options{
		realm:          "realtime",
		sendQueueSize:  defaultSendQueueSize,
		pongWait:       defaultPongWait,
		writeTimeout:   defaultWriteTimeout,
		maxMessageSize: defaultMaxMessageSize,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.pingPeriod = o.pongWait * 9 / 10
	if o.logger == nil {
		o.logger = slog.Default()
	}

	h := &Hub{
		reg:   registry.New[notifications.Recipient](),
		store: store,
		authn: authn,
		log:   logctx.Wrap(o.logger),
		opts:  o,
		conns: make(map[*Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Registry returns the connection registry owned by the hub.
func (h *Hub) Registry() *registry.Registry[notifications.Recipient] { return h.reg }

// Stats reports registry counts plus the number of open sockets, which
// includes connections still validating.
type Stats struct {
	registry.Stats
	Open int `json:"open"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	open := len(h.conns)
	h.mu.Unlock()
	return Stats{Stats: h.reg.Stats(), Open: open}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send Origin.
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(h.opts.allowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host)
	})
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		auth.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ui, ch := auth.AuthenticateRequest(ctx, h.authn, r, auth.RequestOptions{Realm: h.opts.realm, AllowQueryToken: true})
	if ch != nil {
		h.log.InfoContext(ctx, "auth.check.fail", slog.Int("status", ch.Status), slog.String("err", errString(ch.Err)))
		ch.Write(w)
		return
	}
	h.log.InfoContext(ctx, "auth.ok", slog.String("user_id", ui.UserID()))

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		auth.WriteJSONError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.log.InfoContext(ctx, "conn.upgrade.fail", slog.String("err", err.Error()))
		return
	}

	c := newConn(h, uuid.NewString(), ws, ui)
	ctx = logctx.WithConnData(ctx, c.ld)
	// The request context ends with ServeHTTP; the connection lives until
	// the reader returns.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	closing := h.track(c)
	go c.writePump()
	if closing {
		// Shutdown started between the admission check and tracking.
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.serveConn(ctx, c)
}

func (h *Hub) track(c *Conn) (closing bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	return h.closed
}

func (h *Hub) untrack(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Shutdown sends a going-away close frame to every connection and waits for
// them to finish or for ctx to end. New upgrades are refused.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range conns {
			c.halt()
		}
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ http.Handler = (*Hub)(nil)

// errorParamsFor maps a validation failure to the client-facing Error payload.
func errorParamsFor(err error) ErrorParams {
	switch {
	case errors.Is(err, ErrMissingSessionID):
		return ErrorParams{Reason: "session_missing", Message: "Session id is missing from the access token."}
	case errors.Is(err, sessions.ErrMalformedSessionID):
		return ErrorParams{Reason: "session_malformed", Message: "Session id is malformed."}
	case errors.Is(err, sessions.ErrSessionNotFound):
		return ErrorParams{Reason: "session_not_found", Message: "Session not found."}
	case errors.Is(err, sessions.ErrSessionRevoked):
		return ErrorParams{Reason: "session_revoked", Message: "Session has been revoked."}
	case errors.Is(err, sessions.ErrSessionExpired):
		return ErrorParams{Reason: "session_expired", Message: "Session has expired."}
	case errors.Is(err, ErrSessionOwnerMismatch):
		return ErrorParams{Reason: "session_owner_mismatch", Message: "Session does not belong to the authenticated user."}
	default:
		return ErrorParams{Reason: "session_unverified", Message: "Session could not be verified."}
	}
}
