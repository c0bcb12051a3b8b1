package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clone-prom-team-2025/server-sub001/sessions"
)

// serveConn drives one connection through Validating, Registered and
// Disconnected. It returns once the connection is fully torn down.
func (h *Hub) serveConn(ctx context.Context, c *Conn) {
	defer h.disconnect(ctx, c)

	c.setState(StateValidating)
	s, err := h.validate(ctx, c)
	if err != nil {
		h.reject(ctx, c, err)
		return
	}
	h.register(ctx, c, s)
	c.readPump(ctx)
}

// validate resolves the session named by the connection's token and checks
// it is live and owned by the token subject.
func (h *Hub) validate(ctx context.Context, c *Conn) (*sessions.Session, error) {
	raw := c.ui.SessionID()
	if raw == "" {
		return nil, ErrMissingSessionID
	}
	sid, err := sessions.ParseID(raw)
	if err != nil {
		return nil, err
	}
	s, err := h.store.GetSession(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("lookup session %s: %w", sid, err)
	}
	if err := s.Validate(h.opts.now()); err != nil {
		return nil, err
	}
	if s.UserID != c.ui.UserID() {
		return nil, fmt.Errorf("%w: session %s", ErrSessionOwnerMismatch, sid)
	}
	return s, nil
}

// reject sends the Error signal and lets the writer close the socket.
func (h *Hub) reject(ctx context.Context, c *Conn, err error) {
	p := errorParamsFor(err)
	h.log.InfoContext(ctx, "conn.validate.fail",
		slog.String("reason", p.Reason),
		slog.String("err", err.Error()))
	if sErr := c.signalAndClose(p); sErr != nil {
		c.halt()
	}
}

// register records the connection under its user and session and
// acknowledges with Registered. Re-registration lands here too.
func (h *Hub) register(ctx context.Context, c *Conn, s *sessions.Session) {
	h.reg.RegisterUserConnection(s.UserID, c)
	if prev, replaced := h.reg.RegisterSessionConnection(s.ID, c); replaced {
		// The superseded socket stays open and reachable by user id.
		h.log.InfoContext(ctx, "session.connection.superseded",
			slog.String("session_id", s.ID),
			slog.String("previous_conn_id", prev.ID()))
	}
	c.bindSession(s.ID)
	c.ld.SessionID = s.ID

	h.log.InfoContext(ctx, "conn.registered", slog.String("session_id", s.ID))
	if err := c.Signal(ctx, SignalRegistered, RegisteredParams{
		Message:   "Connection registered.",
		UserID:    s.UserID,
		SessionID: s.ID,
	}); err != nil {
		h.log.WarnContext(ctx, "conn.registered.signal.fail", slog.String("err", err.Error()))
	}
}

// disconnect removes every registry entry of c and waits for its writer.
func (h *Hub) disconnect(ctx context.Context, c *Conn) {
	h.reg.UnregisterUserConnection(c)
	h.reg.UnregisterSessionConnection(c)
	c.setState(StateDisconnected)

	if c.flushing() {
		// Give the queued terminal message time to go out.
		select {
		case <-c.writerDone:
		case <-time.After(h.opts.writeTimeout):
		}
	}
	c.halt()
	<-c.writerDone
	h.untrack(c)
	h.log.InfoContext(ctx, "conn.disconnected")
}
