package realtime

import (
	"errors"

	"github.com/clone-prom-team-2025/server-sub001/notifications"
)

// Inbound methods a client may call.
const (
	MethodRequestSessionData = "requestSessionData"
	MethodReRegisterSession  = "reRegisterSession"
	MethodForceLogoutLocal   = "forceLogoutLocal"
)

// Outbound signals. ReceiveNotification and ForceLogout are produced by the
// notifications package.
const (
	SignalError               = "Error"
	SignalRegistered          = "Registered"
	SignalReceiveNotification = notifications.SignalReceiveNotification
	SignalForceLogout         = notifications.SignalForceLogout
)

var (
	// ErrConnectionClosed is returned by Signal once the connection stopped
	// accepting messages.
	ErrConnectionClosed = errors.New("realtime: connection closed")
	// ErrSendQueueFull is returned by Signal when the peer is not draining
	// its queue fast enough.
	ErrSendQueueFull = errors.New("realtime: send queue full")

	// ErrMissingSessionID means the access token carries no sid claim.
	ErrMissingSessionID = errors.New("realtime: session id missing from token")
	// ErrSessionOwnerMismatch means the session belongs to another user.
	ErrSessionOwnerMismatch = errors.New("realtime: session owner mismatch")
)

// ErrorParams is the payload of the Error signal.
type ErrorParams struct {
	Message string `json:"message" jsonschema:"description=Human readable reason"`
	Reason  string `json:"reason" jsonschema:"enum=session_missing,enum=session_malformed,enum=session_not_found,enum=session_revoked,enum=session_expired,enum=session_owner_mismatch,enum=session_unverified"`
}

// RegisteredParams is the payload of the Registered signal.
type RegisteredParams struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// ForceLogoutLocalParams are the params of forceLogoutLocal.
type ForceLogoutLocalParams struct {
	SessionID string `json:"sessionId" jsonschema:"required"`
}

// AckResult is returned by calls that have no other result.
type AckResult struct {
	OK bool `json:"ok"`
}
