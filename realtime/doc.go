// Package realtime serves the marketplace's real-time channel over
// WebSocket.
//
// A client upgrades with an access token in the Authorization header or the
// access_token query parameter. The token's sid claim names a session which
// must exist, be neither revoked nor expired, and belong to the token
// subject. On success the connection is registered under its user and
// session and receives a Registered signal. On failure it receives an Error
// signal and is closed.
//
// Frames are JSON-RPC 2.0. Clients may call:
//
//   - requestSessionData: returns the session projection
//   - reRegisterSession: repeats validation and registration
//   - forceLogoutLocal: closes the caller's own session connection
//
// The server emits Registered, Error, ReceiveNotification and ForceLogout
// notifications. Schema describes every frame.
//
// Connections implement notifications.Recipient; the Hub's Registry is the
// one a notifications.Dispatcher should be built on.
package realtime
