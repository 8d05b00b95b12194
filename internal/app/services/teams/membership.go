package teams

import (
	"context"
	"errors"

	membershipstore "github.com/dalemusser/cadence/internal/app/store/memberships"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/invitecode"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// JoinTeam adds userID to the team holding code as a member. The code is
// matched case-insensitively.
func (s *Service) JoinTeam(ctx context.Context, userID primitive.ObjectID, code string) (models.Team, error) {
	const op = "teams.JoinTeam"

	code = invitecode.Normalize(code)
	if code == "" {
		return models.Team{}, apperr.Validation(op, "invitation code is required")
	}
	if !invitecode.Valid(code) {
		s.metrics.TeamJoin("not_found")
		return models.Team{}, apperr.NotFound(op, "no team uses this invitation code")
	}

	team, err := s.teams.GetByCode(ctx, code)
	if errors.Is(err, mongo.ErrNoDocuments) {
		s.metrics.TeamJoin("not_found")
		return models.Team{}, apperr.NotFound(op, "no team uses this invitation code")
	}
	if err != nil {
		return models.Team{}, apperr.Persistence(op, err)
	}

	fields := func(e *apperr.Error) *apperr.Error {
		return e.With("team_id", team.ID.Hex()).With("user_id", userID.Hex())
	}

	if _, err := s.members.GetActive(ctx, team.ID, userID); err == nil {
		s.metrics.TeamJoin("already_member")
		return models.Team{}, fields(apperr.Conflict(op, "you are already a member of this team", membershipstore.ErrDuplicateMembership))
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, fields(apperr.Persistence(op, err))
	}

	if _, err := s.members.Create(ctx, team.ID, userID, models.RoleMember); err != nil {
		if errors.Is(err, membershipstore.ErrDuplicateMembership) {
			// A concurrent join won the partial unique index.
			s.metrics.TeamJoin("already_member")
			return models.Team{}, fields(apperr.Conflict(op, "you are already a member of this team", err))
		}
		return models.Team{}, fields(apperr.Persistence(op, err))
	}

	s.metrics.TeamJoin("joined")
	s.log.Info("member joined team",
		zap.String("team_id", team.ID.Hex()),
		zap.String("user_id", userID.Hex()))
	return team, nil
}

// ListMemberships returns the user's active memberships, oldest first.
func (s *Service) ListMemberships(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	const op = "teams.ListMemberships"
	ms, err := s.members.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("user_id", userID.Hex())
	}
	return ms, nil
}

// ListTeamsForUser returns the user's teams with the user's role and the
// team's active member count, in join order. Teams and counts are each
// fetched with a single batched query.
func (s *Service) ListTeamsForUser(ctx context.Context, userID primitive.ObjectID) ([]models.UserTeam, error) {
	const op = "teams.ListTeamsForUser"

	ms, err := s.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return []models.UserTeam{}, nil
	}

	ids := make([]primitive.ObjectID, len(ms))
	for i, m := range ms {
		ids[i] = m.TeamID
	}
	ts, err := s.teams.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("user_id", userID.Hex())
	}
	byID := make(map[primitive.ObjectID]models.Team, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
	}
	counts, err := s.members.CountActiveByTeams(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("user_id", userID.Hex())
	}

	out := make([]models.UserTeam, 0, len(ms))
	for _, m := range ms {
		t, ok := byID[m.TeamID]
		if !ok {
			continue
		}
		out = append(out, models.UserTeam{
			Team:        t,
			UserRole:    m.Role,
			JoinedAt:    m.JoinedAt,
			MemberCount: int(counts[m.TeamID]),
		})
	}
	return out, nil
}

// NeedsOnboarding reports whether the user belongs to no team yet.
func (s *Service) NeedsOnboarding(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	ms, err := s.ListMemberships(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(ms) == 0, nil
}

// Member is an active membership with the member's public profile.
type Member struct {
	models.Membership
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// ListMembers returns the active members of a team, in join order. Any
// member of the team may list it.
func (s *Service) ListMembers(ctx context.Context, actorID, teamID primitive.ObjectID) ([]Member, error) {
	const op = "teams.ListMembers"

	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}
	if _, err := s.RoleFor(ctx, teamID, actorID); err != nil {
		return nil, err
	}

	ms, err := s.members.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("team_id", teamID.Hex())
	}
	ids := make([]primitive.ObjectID, len(ms))
	for i, m := range ms {
		ids[i] = m.UserID
	}
	us, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("team_id", teamID.Hex())
	}
	byID := make(map[primitive.ObjectID]models.User, len(us))
	for _, u := range us {
		byID[u.ID] = u
	}

	out := make([]Member, 0, len(ms))
	for _, m := range ms {
		u := byID[m.UserID]
		out = append(out, Member{Membership: m, DisplayName: u.DisplayName, Email: u.Email})
	}
	return out, nil
}

// InvitationCode returns the team's code to callers allowed to share it.
func (s *Service) InvitationCode(ctx context.Context, actorID, teamID primitive.ObjectID) (string, error) {
	const op = "teams.InvitationCode"

	team, err := s.Team(ctx, teamID)
	if err != nil {
		return "", err
	}
	if _, err := s.require(ctx, op, teamID, actorID, authz.ViewInvitationCode); err != nil {
		return "", err
	}
	return team.InvitationCode, nil
}

// RemoveMembership deactivates userID's membership in teamID. The actor is
// either the user (leaving) or someone who can manage the team. With
// KeepLastAdmin set, the last active admin cannot be removed.
func (s *Service) RemoveMembership(ctx context.Context, actorID, teamID, userID primitive.ObjectID) error {
	const op = "teams.RemoveMembership"

	if _, err := s.Team(ctx, teamID); err != nil {
		return err
	}

	if actorID != userID {
		role, err := s.RoleFor(ctx, teamID, actorID)
		if err != nil {
			return err
		}
		if !authz.CanManageTeam(role) {
			return apperr.Authorization(op, "only team admins can remove other members").
				With("team_id", teamID.Hex())
		}
	}

	fields := func(e *apperr.Error) *apperr.Error {
		return e.With("team_id", teamID.Hex()).With("user_id", userID.Hex())
	}

	target, err := s.members.GetActive(ctx, teamID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fields(apperr.NotFound(op, "no active membership"))
	}
	if err != nil {
		return fields(apperr.Persistence(op, err))
	}

	if s.cfg.KeepLastAdmin && authz.CanManageTeam(target.Role) {
		admins, err := s.members.CountActiveAdmins(ctx, teamID)
		if err != nil {
			return fields(apperr.Persistence(op, err))
		}
		if admins <= 1 {
			return fields(apperr.Conflict(op, "a team must keep at least one admin", nil))
		}
	}

	ok, err := s.members.Deactivate(ctx, target.ID, actorID)
	if err != nil {
		return fields(apperr.Persistence(op, err))
	}
	if !ok {
		return fields(apperr.NotFound(op, "no active membership"))
	}

	s.metrics.MembershipEnded()
	s.log.Info("membership ended",
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", userID.Hex()),
		zap.String("removed_by", actorID.Hex()))
	return nil
}
