// internal/app/features/teams/teams.go
package teams

import (
	"context"
	"net/http"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/features/shared"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.uber.org/zap"
)

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type joinRequest struct {
	InvitationCode string `json:"invitation_code"`
}

// createdTeam exposes the invitation code, which the creator may share.
type createdTeam struct {
	models.Team
	InvitationCode string `json:"invitation_code"`
}

type invitationResponse struct {
	TeamID         string `json:"team_id"`
	InvitationCode string `json:"invitation_code"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /teams                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}

	var req createRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "create team")
	defer cancel()

	team, err := h.Teams.CreateTeam(ctx, uid, req.Name, req.Description)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.TeamCreated(ctx, r, uid, team.ID, team.Name)
	apierrors.WriteJSON(w, http.StatusCreated, createdTeam{Team: team, InvitationCode: team.InvitationCode})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /teams/join                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}

	var req joinRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	team, err := h.Teams.JoinTeam(ctx, uid, req.InvitationCode)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.MemberJoined(ctx, r, uid, team.ID)
	apierrors.WriteJSON(w, http.StatusOK, team)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /teams/{teamID}/members                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeMembers(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	teamID, err := shared.ObjectIDParam(r, "teamID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	members, err := h.Teams.ListMembers(ctx, uid, teamID)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, members)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /teams/{teamID}/members/{userID}/remove                                 |
| A member may remove themselves; admins may remove anyone.                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	teamID, err := shared.ObjectIDParam(r, "teamID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	userID, err := shared.ObjectIDParam(r, "userID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Teams.RemoveMembership(ctx, uid, teamID, userID); err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.MembershipEnded(ctx, r, uid, userID, teamID)
	h.Log.Debug("membership ended",
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", userID.Hex()))
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /teams/{teamID}/invitation                                               |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeInvitation(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	teamID, err := shared.ObjectIDParam(r, "teamID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	code, err := h.Teams.InvitationCode(ctx, uid, teamID)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, invitationResponse{TeamID: teamID.Hex(), InvitationCode: code})
}
