// Package auth provides bearer token authentication for the real-time
// gateway and the admin API. Tokens are JWT access tokens minted by the
// marketplace identity service; besides the subject they carry the login
// session id ("sid") and the caller's roles.
//
// An Authenticator validates a raw token string and returns a UserInfo (or
// an error). AuthenticateRequest does the HTTP part: it finds the token in
// the Authorization header (or the access_token query parameter for
// WebSocket upgrades) and maps failures to RFC 6750 challenges.
//
// # Access Token Authentication
//
// NewFromDiscovery validates tokens using OpenID Connect discovery to obtain
// the issuer's JWKS. NewStatic skips discovery and uses a fixed JWKS URI.
//
// Example:
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://id.marketplace.example", "realtime",
//	    auth.WithLeeway(30*time.Second),
//	)
//	if err != nil { log.Fatal(err) }
//
//	ui, ch := auth.AuthenticateRequest(r.Context(), authn, r, auth.RequestOptions{Realm: "realtime"})
//	if ch != nil { ch.Write(w); return }
//	userID, sessionID := ui.UserID(), ui.SessionID()
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry, audience,
// etc.). ErrInsufficientScope signals successful authentication but a missing
// role.
package auth
