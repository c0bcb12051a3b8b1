package adminapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/clone-prom-team-2025/server-sub001/auth"
	"github.com/clone-prom-team-2025/server-sub001/notifications"
	"github.com/clone-prom-team-2025/server-sub001/sessions"
	"github.com/go-chi/chi/v5"
)

// NotificationRequest is the body of POST /v1/notifications. An empty To
// broadcasts.
type NotificationRequest struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	MetadataURL  string `json:"metadataUrl,omitempty"`
	HighPriority bool   `json:"highPriority"`
}

// AcceptedResponse is returned for queued notifications.
type AcceptedResponse struct {
	ID string `json:"id"`
}

func (s *Server) postNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req NotificationRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		s.log.InfoContext(ctx, "admin.notify.decode.fail", slog.String("err", err.Error()))
		auth.WriteJSONError(w, status, err.Error())
		return
	}
	if req.Message == "" {
		auth.WriteJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Type == "" {
		req.Type = notifications.TypeSystem
	}

	n := notifications.Notification{
		Type:         req.Type,
		Message:      req.Message,
		From:         req.From,
		To:           req.To,
		MetadataURL:  req.MetadataURL,
		HighPriority: req.HighPriority,
	}
	// Normalize here so the caller learns the id before delivery.
	n.Normalize(s.now())
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.ErrorContext(ctx, "admin.notify.fail", slog.String("err", err.Error()))
		auth.WriteJSONError(w, http.StatusServiceUnavailable, "notification could not be queued")
		return
	}
	s.log.InfoContext(ctx, "admin.notify.ok", slog.String("notification_id", n.ID), slog.String("to", n.To))
	writeJSON(w, http.StatusAccepted, AcceptedResponse{ID: n.ID})
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid, err := sessions.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sid, true
}

func (s *Server) logoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.notifier.Terminate(ctx, sid); err != nil {
		s.log.ErrorContext(ctx, "admin.logout.fail", slog.String("session_id", sid), slog.String("err", err.Error()))
		auth.WriteJSONError(w, http.StatusServiceUnavailable, "logout could not be queued")
		return
	}
	s.log.InfoContext(ctx, "admin.logout.ok", slog.String("session_id", sid))
	w.WriteHeader(http.StatusAccepted)
}

// revokeSession marks the session revoked so future validations fail, then
// closes any live connection bound to it.
func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	if err := s.host.RevokeSession(ctx, sid); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			auth.WriteJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.ErrorContext(ctx, "admin.revoke.fail", slog.String("session_id", sid), slog.String("err", err.Error()))
		auth.WriteJSONError(w, http.StatusInternalServerError, "session could not be revoked")
		return
	}
	if err := s.notifier.Terminate(ctx, sid); err != nil {
		// The revocation stands; the socket will fail its next validation.
		s.log.WarnContext(ctx, "admin.revoke.terminate.fail", slog.String("session_id", sid), slog.String("err", err.Error()))
	}
	s.log.InfoContext(ctx, "admin.revoke.ok", slog.String("session_id", sid))
	w.WriteHeader(http.StatusNoContent)
}
