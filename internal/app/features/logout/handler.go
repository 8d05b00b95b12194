// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"github.com/dalemusser/cadence/internal/app/system/auth"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
	}
}

// ServeLogout handles POST /logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	var userID string
	if u, ok := auth.CurrentUser(r); ok {
		userID = u.ID
	}

	if err := h.SessionMgr.Logout(w, r); err != nil {
		// The cookie could not be rewritten; the client still holds a session.
		h.Log.Error("logout: save session", zap.Error(err), zap.String("user_id", userID))
		apierrors.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]string{"kind": "persistence", "message": "could not end the session"},
		})
		return
	}

	h.AuditLog.Logout(r.Context(), r, userID)
	w.WriteHeader(http.StatusNoContent)
}
