package sessions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Store resolves session ids to records. It is the only capability the
// connection lifecycle needs. Implementations MUST be safe for concurrent use
// and free of side effects; failures other than ErrSessionNotFound are
// treated as transient by callers.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

// Host is a Store that also manages session lifecycle. The admin API uses it
// to revoke sessions; tests and local runs use it to seed them.
type Host interface {
	Store

	// CreateSession persists a new record. An empty ID is filled with NewID.
	CreateSession(ctx context.Context, s *Session) error
	// RevokeSession marks the session revoked, keeping its record until it
	// expires. Returns ErrSessionNotFound for unknown ids.
	RevokeSession(ctx context.Context, sessionID string) error
	// DeleteSession removes the record. Deleting an unknown id is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	Close() error
}

// NewID allocates a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ParseID normalises raw into the canonical session id form, rejecting
// anything that is not a UUID.
func ParseID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedSessionID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSessionID, err)
	}
	return id.String(), nil
}
