package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	bearerPrefix          = "Bearer "

	// AccessTokenQueryParam carries the token on WebSocket upgrades, where
	// browsers cannot set an Authorization header.
	AccessTokenQueryParam = "access_token"
)

// Challenge is the HTTP rejection produced by a failed authentication
// attempt: a status code plus an RFC 6750 WWW-Authenticate value.
type Challenge struct {
	Status          int
	WWWAuthenticate string
	// Description is safe to show to clients.
	Description string
	// Err is the underlying cause, for logging.
	Err error
}

func (c *Challenge) Error() string { return c.Description }

func (c *Challenge) Unwrap() error { return c.Err }

// Write emits the challenge header and a JSON error body.
func (c *Challenge) Write(w http.ResponseWriter) {
	if c.WWWAuthenticate != "" {
		w.Header().Add(wwwAuthenticateHeader, c.WWWAuthenticate)
	}
	WriteJSONError(w, c.Status, c.Description)
}

// RequestOptions controls how AuthenticateRequest finds and checks a token.
type RequestOptions struct {
	Realm string
	// AllowQueryToken accepts the access_token query parameter when no
	// Authorization header is present.
	AllowQueryToken bool
	// RequiredRole, when set, must be among the principal's roles.
	RequiredRole string
}

// AuthenticateRequest extracts the bearer token from r and validates it with
// a. On failure it returns a non-nil Challenge and a nil UserInfo.
func AuthenticateRequest(ctx context.Context, a Authenticator, r *http.Request, opts RequestOptions) (UserInfo, *Challenge) {
	tok := ""
	authHeader := r.Header.Get(authorizationHeader)
	switch {
	case authHeader != "":
		// Malformed header or wrong scheme -> invalid_request 400 per RFC 6750 section 3.1.
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return nil, invalidRequest(opts.Realm, "malformed bearer authorization header")
		}
		tok = strings.TrimSpace(authHeader[len(bearerPrefix):])
		if tok == "" {
			return nil, invalidRequest(opts.Realm, "empty bearer token")
		}
	case opts.AllowQueryToken && r.URL.Query().Has(AccessTokenQueryParam):
		tok = strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParam))
		if tok == "" {
			return nil, invalidRequest(opts.Realm, "empty access_token parameter")
		}
	default:
		// No credentials at all: bare challenge without an error code.
		return nil, &Challenge{
			Status:          http.StatusUnauthorized,
			WWWAuthenticate: BuildBearerChallenge(opts.Realm, nil),
			Description:     "authentication required",
			Err:             ErrUnauthorized,
		}
	}

	ui, err := a.CheckAuthentication(ctx, tok)
	if err != nil {
		return nil, challengeFor(opts.Realm, err)
	}
	if opts.RequiredRole != "" && !HasRole(ui, opts.RequiredRole) {
		return nil, challengeFor(opts.Realm, fmt.Errorf("%w: role %q required", ErrInsufficientScope, opts.RequiredRole))
	}
	return ui, nil
}

func invalidRequest(realm, desc string) *Challenge {
	return &Challenge{
		Status:          http.StatusBadRequest,
		WWWAuthenticate: BuildBearerChallenge(realm, map[string]string{"error": "invalid_request", "error_description": desc}),
		Description:     desc,
		Err:             ErrUnauthorized,
	}
}

func challengeFor(realm string, err error) *Challenge {
	switch {
	case errors.Is(err, ErrInsufficientScope):
		return &Challenge{
			Status:          http.StatusForbidden,
			WWWAuthenticate: BuildBearerChallenge(realm, map[string]string{"error": "insufficient_scope", "error_description": "insufficient role"}),
			Description:     "insufficient role",
			Err:             err,
		}
	case errors.Is(err, ErrUnauthorized):
		return &Challenge{
			Status:          http.StatusUnauthorized,
			WWWAuthenticate: BuildBearerChallenge(realm, map[string]string{"error": "invalid_token", "error_description": "invalid access token"}),
			Description:     "invalid access token",
			Err:             err,
		}
	default:
		return &Challenge{
			Status:      http.StatusInternalServerError,
			Description: "authentication unavailable",
			Err:         err,
		}
	}
}

// BuildBearerChallenge formats a Bearer WWW-Authenticate value. Known
// parameters are emitted first in a fixed order.
func BuildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// WriteJSONError writes the transport-level error shape
// {"error":{"code":<status>,"message":"..."}}.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
