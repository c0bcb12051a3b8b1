// Package sessions defines the session lookup contract the real-time layer
// depends on. A session is issued elsewhere (the marketplace's login flow)
// and identified by an opaque UUID carried in the access token's "sid"
// claim. The real-time layer only reads sessions: it resolves the id to a
// record and checks that the record is still usable before it lets a
// connection in.
//
// Layers & Roles
//
//	Token          -> carries user id (sub) and session id (sid)
//	Store          -> resolves a session id to its record (read-only contract)
//	Host           -> Store plus the lifecycle operations used by the admin API
//	Session record -> owner, expiry, revocation flag, roles, device info
//
// # Implementations
//
//	memoryhost : in-memory reference used for tests / single-process runs
//	redishost  : Redis backed implementation shared by every instance
//
// Both are checked by the conformance suite in sessionhosttest.
//
// # Validation
//
// Session.Validate reports ErrSessionRevoked or ErrSessionExpired. Lookups of
// unknown ids report ErrSessionNotFound. ParseID rejects ids that are not
// UUIDs with ErrMalformedSessionID before any lookup is attempted.
package sessions
