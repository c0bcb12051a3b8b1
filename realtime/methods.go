package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/clone-prom-team-2025/server-sub001/internal/jsonrpc"
	"github.com/clone-prom-team-2025/server-sub001/internal/logctx"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
)

// handleFrame decodes one inbound frame and dispatches it. Replies go through
// the connection's send queue so they stay ordered with signals.
func (h *Hub) handleFrame(ctx context.Context, c *Conn, data []byte) {
	req, err := jsonrpc.Decode(data)
	if err != nil {
		code := jsonrpc.ErrorCodeInvalidRequest
		if errors.Is(err, jsonrpc.ErrParse) {
			code = jsonrpc.ErrorCodeParseError
		}
		var id *jsonrpc.RequestID
		if req != nil {
			id = req.ID
		}
		h.log.InfoContext(ctx, "rpc.decode.fail", slog.String("err", err.Error()))
		// Decode failures are answered even without an id.
		h.send(ctx, c, jsonrpc.NewErrorResponse(id, code, err.Error(), nil))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})
	h.log.DebugContext(ctx, "rpc.handle.start")

	switch req.Method {
	case MethodRequestSessionData:
		h.requestSessionData(ctx, c, req)
	case MethodReRegisterSession:
		h.reRegisterSession(ctx, c, req)
	case MethodForceLogoutLocal:
		h.forceLogoutLocal(ctx, c, req)
	default:
		h.log.InfoContext(ctx, "rpc.method.unknown")
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method)
	}
}

// requestSessionData returns the projection of the connection's session. An
// invalid session yields an error reply and an Error signal; the socket
// stays open so the client can re-authenticate.
func (h *Hub) requestSessionData(ctx context.Context, c *Conn, req *jsonrpc.Request) {
	s, err := h.validate(ctx, c)
	if err != nil {
		p := errorParamsFor(err)
		h.log.InfoContext(ctx, "session.data.fail", slog.String("reason", p.Reason), slog.String("err", err.Error()))
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeSessionInvalid, p.Message)
		if sErr := c.Signal(ctx, SignalError, p); sErr != nil {
			h.log.WarnContext(ctx, "conn.signal.fail", slog.String("err", sErr.Error()))
		}
		return
	}
	h.replyResult(ctx, c, req.ID, s.Projection())
}

// reRegisterSession repeats validation and registration. On failure the
// connection is closed after the Error signal.
func (h *Hub) reRegisterSession(ctx context.Context, c *Conn, req *jsonrpc.Request) {
	s, err := h.validate(ctx, c)
	if err != nil {
		p := errorParamsFor(err)
		h.log.InfoContext(ctx, "session.reregister.fail", slog.String("reason", p.Reason), slog.String("err", err.Error()))
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeSessionInvalid, p.Message)
		if sErr := c.signalAndClose(p); sErr != nil {
			c.halt()
		}
		return
	}
	h.replyResult(ctx, c, req.ID, AckResult{OK: true})
	h.register(ctx, c, s)
}

// forceLogoutLocal lets a client end its own session socket. The request is
// honored only when the named session is mapped to this connection.
func (h *Hub) forceLogoutLocal(ctx context.Context, c *Conn, req *jsonrpc.Request) {
	var p ForceLogoutLocalParams
	if err := req.BindParams(&p); err != nil {
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error())
		return
	}
	sid, err := sessions.ParseID(p.SessionID)
	if err != nil {
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error())
		return
	}
	if owner, ok := h.reg.ConnectionFor(sid); !ok || owner != notifications.Recipient(c) {
		h.log.InfoContext(ctx, "session.logout.local.refused", slog.String("session_id", sid))
		h.replyError(ctx, c, req.ID, jsonrpc.ErrorCodeInvalidParams, "session is not bound to this connection")
		return
	}

	h.replyResult(ctx, c, req.ID, AckResult{OK: true})
	h.log.InfoContext(ctx, "session.logout.local", slog.String("session_id", sid))
	if err := c.Signal(ctx, SignalForceLogout, notifications.ForceLogoutParams{
		Message:   notifications.DefaultLogoutMessage,
		SessionID: sid,
	}); err != nil {
		c.halt()
	}
}

func (h *Hub) replyResult(ctx context.Context, c *Conn, id *jsonrpc.RequestID, result any) {
	if id.IsNil() {
		return
	}
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.encode.fail", slog.String("err", err.Error()))
		resp = jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	h.send(ctx, c, resp)
}

// replyError answers a call with an error. Notifications get no reply.
func (h *Hub) replyError(ctx context.Context, c *Conn, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	if id.IsNil() {
		return
	}
	h.send(ctx, c, jsonrpc.NewErrorResponse(id, code, msg, nil))
}

func (h *Hub) send(ctx context.Context, c *Conn, resp *jsonrpc.Response) {
	if err := c.reply(resp); err != nil {
		h.log.WarnContext(ctx, "rpc.reply.fail", slog.String("err", err.Error()))
	}
}
