package auth

import (
	"context"
	"errors"
	"slices"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks a required role.
var ErrInsufficientScope = errors.New("insufficient scope")

// Well-known marketplace roles.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleBuyer  = "buyer"
)

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// SessionID returns the login session the token was issued for, or "".
	SessionID() string
	// Roles returns the roles granted to the principal.
	Roles() []string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// HasRole reports whether ui carries role.
func HasRole(ui UserInfo, role string) bool {
	if ui == nil {
		return false
	}
	return slices.Contains(ui.Roles(), role)
}
