// Package teams manages teams, invitation codes and memberships.
package teams

import (
	"context"
	"errors"
	"sync/atomic"

	membershipstore "github.com/dalemusser/cadence/internal/app/store/memberships"
	organizationstore "github.com/dalemusser/cadence/internal/app/store/organizations"
	teamstore "github.com/dalemusser/cadence/internal/app/store/teams"
	userstore "github.com/dalemusser/cadence/internal/app/store/users"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/invitecode"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/app/system/txn"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultInviteCodeAttempts bounds invitation code collision retries.
const DefaultInviteCodeAttempts = 5

// Config holds the membership policies.
type Config struct {
	// InviteCodeAttempts is how many codes CreateTeam tries before giving
	// up with a conflict. Zero means DefaultInviteCodeAttempts.
	InviteCodeAttempts int
	// KeepLastAdmin refuses to deactivate the last active admin of a team.
	KeepLastAdmin bool
}

// Service implements the team membership operations.
type Service struct {
	client  *mongo.Client
	users   *userstore.Store
	orgs    *organizationstore.Store
	teams   *teamstore.Store
	members *membershipstore.Store

	cfg     Config
	newCode func() (string, error)
	metrics *metrics.Metrics
	log     *zap.Logger

	// noTxn is set once the server has answered a transaction with a
	// not-supported error code.
	noTxn  atomic.Bool
	runTxn func(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error
}

// New builds the service. m and logger may be nil.
func New(db *mongo.Database, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cfg.InviteCodeAttempts <= 0 {
		cfg.InviteCodeAttempts = DefaultInviteCodeAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:  db.Client(),
		users:   userstore.New(db),
		orgs:    organizationstore.New(db),
		teams:   teamstore.New(db),
		members: membershipstore.New(db),
		cfg:     cfg,
		newCode: invitecode.Generate,
		runTxn:  txn.Run,
		metrics: m,
		log:     logger,
	}
}

// SetCodeGenerator replaces the invitation code source. Tests use it to
// force collisions.
func (s *Service) SetCodeGenerator(fn func() (string, error)) {
	s.newCode = fn
}

// loadUser fetches the acting user; a missing record is NotFound.
func (s *Service) loadUser(ctx context.Context, op string, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(op, "user not found").With("user_id", id.Hex())
	}
	if err != nil {
		return nil, apperr.Persistence(op, err).With("user_id", id.Hex())
	}
	return u, nil
}

// Team loads a team by id.
func (s *Service) Team(ctx context.Context, teamID primitive.ObjectID) (models.Team, error) {
	const op = "teams.Team"
	t, err := s.teams.GetByID(ctx, teamID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, apperr.NotFound(op, "team not found").With("team_id", teamID.Hex())
	}
	if err != nil {
		return models.Team{}, apperr.Persistence(op, err).With("team_id", teamID.Hex())
	}
	return t, nil
}

// RoleFor resolves the role userID acts with in teamID. The super-admin flag
// wins over any membership. A user who is neither gets an authorization
// error.
func (s *Service) RoleFor(ctx context.Context, teamID, userID primitive.ObjectID) (models.Role, error) {
	const op = "teams.RoleFor"

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return "", apperr.Authorization(op, "not a member of this team")
		}
		return "", err
	}

	var m *models.Membership
	if !u.IsSuperAdmin {
		m, err = s.members.GetActive(ctx, teamID, userID)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			return "", apperr.Persistence(op, err).
				With("team_id", teamID.Hex()).
				With("user_id", userID.Hex())
		}
	}

	role, ok := authz.EffectiveRole(u, m)
	if !ok {
		return "", apperr.Authorization(op, "not a member of this team")
	}
	return role, nil
}

// require resolves the actor's role and checks capability c.
func (s *Service) require(ctx context.Context, op string, teamID, actorID primitive.ObjectID, c authz.Capability) (models.Role, error) {
	role, err := s.RoleFor(ctx, teamID, actorID)
	if err != nil {
		return "", err
	}
	if !authz.Can(role, c) {
		return role, apperr.Authorization(op, "your role does not allow this action").
			With("capability", string(c))
	}
	return role, nil
}
