package authtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/clone-prom-team-2025/server-sub001/auth"
)

// Identity is the principal a static token resolves to.
type Identity struct {
	UserID    string
	SessionID string
	Roles     []string
}

// Static is a test authenticator mapping opaque tokens to fixed identities.
// Used for tests and local development where no identity provider runs.
type Static struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

// NewStatic creates a Static authenticator seeded with tokens.
func NewStatic(tokens map[string]Identity) *Static {
	s := &Static{tokens: make(map[string]Identity, len(tokens))}
	for tok, id := range tokens {
		s.tokens[tok] = id
	}
	return s
}

// Add registers or replaces the identity for tok.
func (s *Static) Add(tok string, id Identity) {
	s.mu.Lock()
	s.tokens[tok] = id
	s.mu.Unlock()
}

// Remove makes tok invalid.
func (s *Static) Remove(tok string) {
	s.mu.Lock()
	delete(s.tokens, tok)
	s.mu.Unlock()
}

func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	s.mu.RLock()
	id, ok := s.tokens[tok]
	s.mu.RUnlock()
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return userInfo{id: id}, nil
}

type userInfo struct{ id Identity }

func (u userInfo) UserID() string    { return u.id.UserID }
func (u userInfo) SessionID() string { return u.id.SessionID }
func (u userInfo) Roles() []string   { return append([]string(nil), u.id.Roles...) }

func (u userInfo) Claims(ref any) error {
	b, err := json.Marshal(map[string]any{"sub": u.id.UserID, "sid": u.id.SessionID, "roles": u.id.Roles})
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

var _ auth.Authenticator = (*Static)(nil)
