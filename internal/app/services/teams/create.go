package teams

import (
	"context"
	"errors"

	teamstore "github.com/dalemusser/cadence/internal/app/store/teams"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cadence/internal/app/system/normalize"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/app/system/txn"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// CreateTeam creates an organization, a team with a fresh invitation code
// and an active team_admin membership for the creator, as one unit.
//
// On a replica set the three writes share a transaction. On a standalone
// server they run in sequence and earlier writes are deleted if a later one
// fails. If that cleanup also fails the returned error says so.
func (s *Service) CreateTeam(ctx context.Context, actorID primitive.ObjectID, name, description string) (models.Team, error) {
	const op = "teams.CreateTeam"

	name = normalize.Name(name)
	if name == "" {
		return models.Team{}, apperr.Validation(op, "team name is required")
	}
	description = htmlsanitize.PlainText(description)

	user, err := s.loadUser(ctx, op, actorID)
	if err != nil {
		return models.Team{}, err
	}

	for attempt := 1; attempt <= s.cfg.InviteCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return models.Team{}, apperr.Persistence(op, err)
		}

		draft := models.Team{
			Name:           name,
			Description:    description,
			InvitationCode: code,
			CreatedBy:      user.ID,
		}
		team, err := s.createOnce(ctx, user, draft)
		if errors.Is(err, teamstore.ErrDuplicateCode) {
			s.log.Debug("invitation code collision", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return models.Team{}, err
		}

		s.metrics.TeamCreated()
		s.log.Info("team created",
			zap.String("team_id", team.ID.Hex()),
			zap.String("user_id", user.ID.Hex()))
		return team, nil
	}

	return models.Team{}, apperr.Conflict(op, "could not allocate a unique invitation code", teamstore.ErrDuplicateCode)
}

func (s *Service) createOnce(ctx context.Context, user *models.User, draft models.Team) (models.Team, error) {
	if !s.noTxn.Load() {
		var team models.Team
		err := s.runTxn(ctx, s.client, func(sc mongo.SessionContext) error {
			var err error
			team, err = s.writeTeam(sc, user, draft)
			return err
		})
		if !errors.Is(err, txn.ErrNotSupported) {
			if err != nil && !errors.Is(err, teamstore.ErrDuplicateCode) {
				return models.Team{}, apperr.Persistence("teams.CreateTeam", err)
			}
			return team, err
		}
		s.noTxn.Store(true)
		s.log.Warn("transactions unavailable; team creation falls back to compensating writes")
	}
	return s.createSaga(ctx, user, draft)
}

// writeTeam performs the three inserts with no cleanup. Inside a
// transaction ctx is the session context.
func (s *Service) writeTeam(ctx context.Context, user *models.User, draft models.Team) (models.Team, error) {
	org, err := s.orgs.Create(ctx, models.Organization{
		Name:      "Organization of " + user.DisplayName,
		CreatedBy: user.ID,
	})
	if err != nil {
		return models.Team{}, err
	}

	draft.OrganizationID = org.ID
	team, err := s.teams.Create(ctx, draft)
	if err != nil {
		return models.Team{}, err
	}

	if _, err := s.members.Create(ctx, team.ID, user.ID, models.RoleTeamAdmin); err != nil {
		return models.Team{}, err
	}
	return team, nil
}

func (s *Service) createSaga(ctx context.Context, user *models.User, draft models.Team) (models.Team, error) {
	const op = "teams.CreateTeam"

	org, err := s.orgs.Create(ctx, models.Organization{
		Name:      "Organization of " + user.DisplayName,
		CreatedBy: user.ID,
	})
	if err != nil {
		return models.Team{}, apperr.Persistence(op, err)
	}

	draft.OrganizationID = org.ID
	team, err := s.teams.Create(ctx, draft)
	if err != nil {
		if cerr := s.compensate(ctx, org.ID, primitive.NilObjectID); cerr != nil {
			return models.Team{}, partial(op, err, cerr, org.ID, primitive.NilObjectID)
		}
		if errors.Is(err, teamstore.ErrDuplicateCode) {
			return models.Team{}, err
		}
		return models.Team{}, apperr.Persistence(op, err)
	}

	if _, err := s.members.Create(ctx, team.ID, user.ID, models.RoleTeamAdmin); err != nil {
		if cerr := s.compensate(ctx, org.ID, team.ID); cerr != nil {
			return models.Team{}, partial(op, err, cerr, org.ID, team.ID)
		}
		return models.Team{}, apperr.Persistence(op, err).With("team_id", team.ID.Hex())
	}
	return team, nil
}

// compensate deletes what createSaga wrote. It runs on a fresh deadline so
// a cancelled request still cleans up.
func (s *Service) compensate(ctx context.Context, orgID, teamID primitive.ObjectID) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Short())
	defer cancel()

	var errs []error
	if !teamID.IsZero() {
		if _, err := s.members.DeleteByTeam(cctx, teamID); err != nil {
			errs = append(errs, err)
		}
		if _, err := s.teams.Delete(cctx, teamID); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := s.orgs.Delete(cctx, orgID); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Error("team creation cleanup failed",
			zap.String("organization_id", orgID.Hex()),
			zap.String("team_id", teamID.Hex()),
			zap.Error(err))
		return err
	}
	return nil
}

func partial(op string, cause, cleanup error, orgID, teamID primitive.ObjectID) *apperr.Error {
	e := &apperr.Error{
		Kind:    apperr.KindPersistence,
		Op:      op,
		Message: "team creation partially completed; cleanup failed",
		Err:     errors.Join(cause, cleanup),
	}
	e = e.With("organization_id", orgID.Hex())
	if !teamID.IsZero() {
		e = e.With("team_id", teamID.Hex())
	}
	return e
}
