package notifications

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSender is used as From when a notification names no sender.
const DefaultSender = "System"

// Well-known notification types emitted by marketplace services. Type is a
// free-form string; these are the values clients know how to render.
const (
	TypeOrder    = "order"
	TypeDelivery = "delivery"
	TypeReview   = "review"
	TypeBan      = "ban"
	TypeSystem   = "system"
	TypeStore    = "store"
)

// Outbound signal methods produced by this package.
const (
	SignalReceiveNotification = "ReceiveNotification"
	SignalForceLogout         = "ForceLogout"
)

// DefaultLogoutMessage is the ForceLogout text when none is configured.
const DefaultLogoutMessage = "Your session has been terminated."

// Notification is pushed to clients as the params of ReceiveNotification.
// An empty To broadcasts to every connection.
type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	MetadataURL  string    `json:"metadataUrl,omitempty"`
	HighPriority bool      `json:"highPriority"`
}

// Normalize fills defaults: a generated ID, CreatedAt from now and the
// System sender. Already-set fields are kept, so calling it twice is safe.
func (n *Notification) Normalize(now time.Time) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now.UTC()
	}
	if n.From == "" {
		n.From = DefaultSender
	}
}

// IsBroadcast reports whether n targets every connection.
func (n *Notification) IsBroadcast() bool { return n.To == "" }

// ForceLogoutParams is the payload of the ForceLogout signal.
type ForceLogoutParams struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}
