package sessions

import (
	"errors"
	"slices"
	"time"
)

var (
	// ErrSessionNotFound is returned by a Store when no record exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked indicates the session was revoked server-side.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired indicates the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrMalformedSessionID indicates the id is not a well-formed session id.
	ErrMalformedSessionID = errors.New("malformed session id")
)

// DeviceInfo records where a session was opened from. All fields are optional.
type DeviceInfo struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Session is the authoritative record of a login session.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	Roles     []string   `json:"roles,omitempty"`
	Device    DeviceInfo `json:"device"`
}

// Validate reports whether the session can still back a connection at now.
// A zero ExpiresAt never expires.
func (s *Session) Validate(now time.Time) error {
	if s.Revoked {
		return ErrSessionRevoked
	}
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// HasRole reports whether role is among the session's roles.
func (s *Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// Clone returns a deep copy so callers can't mutate a store's record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Roles = slices.Clone(s.Roles)
	return &cp
}

// Projection is the client-visible view of a session.
type Projection struct {
	SessionID string     `json:"sessionId"`
	UserID    string     `json:"userId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Roles     []string   `json:"roles"`
	Device    DeviceInfo `json:"deviceInfo"`
}

// Projection returns the view of s that is safe to hand to its owner.
func (s *Session) Projection() Projection {
	roles := slices.Clone(s.Roles)
	if roles == nil {
		roles = []string{}
	}
	return Projection{
		SessionID: s.ID,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt,
		Roles:     roles,
		Device:    s.Device,
	}
}
