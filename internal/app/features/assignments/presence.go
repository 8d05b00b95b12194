// internal/app/features/assignments/presence.go
package assignments

import (
	"context"
	"net/http"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/features/shared"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/domain/models"
)

type presenceRequest struct {
	Status        models.PresenceStatus `json:"status"`
	Justification string                `json:"justification"`
}

type presencesResponse struct {
	Presences []models.Presence `json:"presences"`
}

// GET /assignments/{assignmentID}/presence
func (h *Handler) ServeOwnPresence(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Presence.Assignment(ctx, id); err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	st, err := h.Presence.StatusFor(ctx, id, uid)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, st)
}

// PUT /assignments/{assignmentID}/presence
func (h *Handler) HandleDeclare(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	var req presenceRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, err := h.Presence.Declare(ctx, uid, id, req.Status, req.Justification)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, p)
}

// GET /assignments/{assignmentID}/presences
func (h *Handler) ServePresences(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "assignment presences")
	defer cancel()

	ps, err := h.Presence.ListForAssignment(ctx, uid, id)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, presencesResponse{Presences: ps})
}

// PUT /assignments/{assignmentID}/presence/{userID}
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	userID, err := shared.ObjectIDParam(r, "userID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	var req presenceRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, err := h.Presence.Override(ctx, uid, id, userID, req.Status, req.Justification)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	// Override already loaded the assignment; this read only scopes the audit event.
	if a, err := h.Presence.Assignment(ctx, id); err == nil {
		h.AuditLog.PresenceOverridden(ctx, r, uid, userID, a.TeamID, id, string(p.Status))
	}
	apierrors.WriteJSON(w, http.StatusOK, p)
}
