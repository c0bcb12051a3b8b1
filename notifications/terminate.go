package notifications

import (
	"context"
	"log/slog"
)

// ForceLogout sends one ForceLogout signal to the connection registered for
// sessionID. It returns false when no connection is registered or the
// signal could not be queued. The connection closes itself after
// delivering the signal; the registry is left to its disconnect handling.
func (d *Dispatcher) ForceLogout(ctx context.Context, sessionID string) bool {
	c, ok := d.reg.ConnectionFor(sessionID)
	if !ok {
		d.log.DebugContext(ctx, "session.logout.absent", slog.String("session_id", sessionID))
		return false
	}
	params := ForceLogoutParams{Message: d.logoutMessage, SessionID: sessionID}
	if err := d.signal(ctx, c, SignalForceLogout, params); err != nil {
		d.log.WarnContext(ctx, "session.logout.fail",
			slog.String("session_id", sessionID),
			slog.String("conn_id", c.ID()),
			slog.String("err", err.Error()))
		return false
	}
	d.log.InfoContext(ctx, "session.logout.sent",
		slog.String("session_id", sessionID),
		slog.String("conn_id", c.ID()))
	return true
}

// Terminate implements Notifier with local delivery.
func (d *Dispatcher) Terminate(ctx context.Context, sessionID string) error {
	d.ForceLogout(ctx, sessionID)
	return nil
}
