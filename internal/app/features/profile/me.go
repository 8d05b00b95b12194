// internal/app/features/profile/me.go
package profile

import (
	"context"
	"net/http"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/services/identity"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.uber.org/zap"
)

// teamsResponse is the body of GET /me/teams.
type teamsResponse struct {
	Teams           []models.UserTeam `json:"teams"`
	NeedsOnboarding bool              `json:"needs_onboarding"`
}

// ServeMe returns the signed-in user's record.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Identity.Get(ctx, uid)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, user)
}

// HandleUpdate applies a partial profile update from a JSON body.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}

	var upd identity.ProfileUpdate
	if err := apierrors.DecodeJSON(w, r, &upd); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Identity.UpdateProfile(ctx, uid, uid, upd)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.ProfileUpdated(ctx, r, uid, upd.ChangedFields())
	h.Log.Debug("profile updated", zap.String("user_id", uid.Hex()))
	apierrors.WriteJSON(w, http.StatusOK, user)
}

// ServeTeams lists the user's active teams in join order.
func (h *Handler) ServeTeams(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Teams.ListTeamsForUser(ctx, uid)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, teamsResponse{
		Teams:           list,
		NeedsOnboarding: len(list) == 0,
	})
}
