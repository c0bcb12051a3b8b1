package memoryhost

import (
	"context"
	"sync"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/sessions"
)

// Host is an in-memory implementation of sessions.Host.
type Host struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.Session

	now func() time.Time
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.now = now
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{
		sessions: make(map[string]*sessions.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	if h.expired(s) {
		h.mu.Lock()
		// Re-check under the write lock; the record may have been replaced.
		if cur, ok := h.sessions[sessionID]; ok && cur == s {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
		return nil, sessions.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (h *Host) CreateSession(ctx context.Context, s *sessions.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := s.Clone()
	if rec.ID == "" {
		rec.ID = sessions.NewID()
		s.ID = rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = h.now().UTC()
		s.CreatedAt = rec.CreatedAt
	}
	h.mu.Lock()
	h.sessions[rec.ID] = rec
	h.mu.Unlock()
	return nil
}

func (h *Host) RevokeSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok || h.expired(s) {
		return sessions.ErrSessionNotFound
	}
	// Swap in a copy so clones handed out earlier stay untouched.
	rev := s.Clone()
	rev.Revoked = true
	h.sessions[sessionID] = rev
	return nil
}

func (h *Host) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	return nil
}

// Close is a no-op; it exists to satisfy sessions.Host.
func (h *Host) Close() error { return nil }

// expired reports whether s is past its expiry. Revoked records are kept
// until they expire so lookups keep returning the revoked state.
func (h *Host) expired(s *sessions.Session) bool {
	return !s.ExpiresAt.IsZero() && !h.now().Before(s.ExpiresAt)
}

// Ensure interface compliance
var _ sessions.Host = (*Host)(nil)
