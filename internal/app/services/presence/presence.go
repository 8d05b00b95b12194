// Package presence records members' attendance declarations against
// assignments, including admin overrides.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	assignmentstore "github.com/dalemusser/cadence/internal/app/store/assignments"
	presencestore "github.com/dalemusser/cadence/internal/app/store/presences"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Policy decides what a plain declaration does to a record under admin
// override.
type Policy string

const (
	// PolicyPreserve rejects the declaration and keeps the override.
	PolicyPreserve Policy = "preserve"
	// PolicyClear applies the declaration and clears the override.
	PolicyClear Policy = "clear"
)

// ParsePolicy accepts "preserve" or "clear", case-insensitively. Empty
// means PolicyPreserve.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPreserve, nil
	case PolicyPreserve, PolicyClear:
		return p, nil
	default:
		return "", fmt.Errorf("presence override policy must be %q or %q, got %q", PolicyPreserve, PolicyClear, s)
	}
}

// MaxJustification bounds the stored justification length, in runes.
const MaxJustification = 500

// Roles resolves the role a user acts with inside a team.
type Roles interface {
	RoleFor(ctx context.Context, teamID, userID primitive.ObjectID) (models.Role, error)
}

// Config holds the override policy and clock.
type Config struct {
	Policy Policy
	Now    func() time.Time // nil means time.Now
}

// Service implements the presence ledger.
type Service struct {
	presences   *presencestore.Store
	assignments *assignmentstore.Store
	roles       Roles
	cfg         Config
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// New builds the service. m and logger may be nil.
func New(db *mongo.Database, roles Roles, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyPreserve
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		presences:   presencestore.New(db),
		assignments: assignmentstore.New(db),
		roles:       roles,
		cfg:         cfg,
		metrics:     m,
		log:         logger,
	}
}

// Status is the answer to "has this user declared?". Declared is false when
// no record exists, which is distinct from an absent declaration.
type Status struct {
	Declared bool             `json:"declared"`
	Presence *models.Presence `json:"presence,omitempty"`
}

// Value returns the declared status, or "undeclared".
func (s Status) Value() string {
	if !s.Declared || s.Presence == nil {
		return "undeclared"
	}
	return string(s.Presence.Status)
}

func (s *Service) assignment(ctx context.Context, op string, id primitive.ObjectID) (models.Assignment, error) {
	a, err := s.assignments.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Assignment{}, apperr.NotFound(op, "assignment not found").With("assignment_id", id.Hex())
	}
	if err != nil {
		return models.Assignment{}, apperr.Persistence(op, err).With("assignment_id", id.Hex())
	}
	return a, nil
}

func (s *Service) require(ctx context.Context, op string, teamID, actorID primitive.ObjectID, c authz.Capability) error {
	role, err := s.roles.RoleFor(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	if !authz.Can(role, c) {
		return apperr.Authorization(op, "your role does not allow this action").
			With("capability", string(c))
	}
	return nil
}

func checkInput(op string, status models.PresenceStatus, justification string) (string, error) {
	if !status.Valid() {
		return "", apperr.Validation(op, `status must be "present", "absent" or "late"`)
	}
	j := htmlsanitize.PlainText(justification)
	if len([]rune(j)) > MaxJustification {
		return "", apperr.Validation(op, fmt.Sprintf("justification is limited to %d characters", MaxJustification))
	}
	return j, nil
}

// Declare records the acting user's own presence for an assignment. The
// actor must belong to the assignment's team. Repeated declarations update
// the same record. Against a record under admin override the configured
// Policy applies.
func (s *Service) Declare(ctx context.Context, actorID, assignmentID primitive.ObjectID, status models.PresenceStatus, justification string) (models.Presence, error) {
	const op = "presence.Declare"

	j, err := checkInput(op, status, justification)
	if err != nil {
		return models.Presence{}, err
	}
	a, err := s.assignment(ctx, op, assignmentID)
	if err != nil {
		return models.Presence{}, err
	}
	if err := s.require(ctx, op, a.TeamID, actorID, authz.DeclarePresence); err != nil {
		return models.Presence{}, err
	}

	mode := presencestore.ModePreserve
	if s.cfg.Policy == PolicyClear {
		mode = presencestore.ModeClear
	}

	p, err := s.presences.Upsert(ctx, presencestore.Write{
		AssignmentID:  assignmentID,
		UserID:        actorID,
		Status:        status,
		Justification: j,
		Actor:         actorID,
		At:            s.cfg.Now().UTC(),
	}, mode)
	fields := func(e *apperr.Error) *apperr.Error {
		return e.With("assignment_id", assignmentID.Hex()).With("user_id", actorID.Hex())
	}
	if errors.Is(err, presencestore.ErrOverridden) {
		return models.Presence{}, fields(apperr.Conflict(op, "an admin has set this presence; ask them to change it", err))
	}
	if err != nil {
		return models.Presence{}, fields(apperr.Persistence(op, err))
	}

	s.metrics.PresenceWritten(string(status), "self")
	return p, nil
}

// Override sets userID's presence as an admin. The admin needs
// override_presence in the assignment's team and the user must belong to
// it. The override fields are written together with the status.
func (s *Service) Override(ctx context.Context, adminID, assignmentID, userID primitive.ObjectID, status models.PresenceStatus, justification string) (models.Presence, error) {
	const op = "presence.Override"

	j, err := checkInput(op, status, justification)
	if err != nil {
		return models.Presence{}, err
	}
	a, err := s.assignment(ctx, op, assignmentID)
	if err != nil {
		return models.Presence{}, err
	}
	if err := s.require(ctx, op, a.TeamID, adminID, authz.OverridePresence); err != nil {
		return models.Presence{}, err
	}
	if _, err := s.roles.RoleFor(ctx, a.TeamID, userID); err != nil {
		if apperr.Is(err, apperr.KindAuthorization) {
			return models.Presence{}, apperr.NotFound(op, "user is not a member of this team").
				With("user_id", userID.Hex())
		}
		return models.Presence{}, err
	}

	p, err := s.presences.Upsert(ctx, presencestore.Write{
		AssignmentID:  assignmentID,
		UserID:        userID,
		Status:        status,
		Justification: j,
		Actor:         adminID,
		At:            s.cfg.Now().UTC(),
	}, presencestore.ModeOverride)
	if err != nil {
		return models.Presence{}, apperr.Persistence(op, err).
			With("assignment_id", assignmentID.Hex()).
			With("user_id", userID.Hex())
	}

	s.metrics.PresenceWritten(string(status), "override")
	s.log.Info("presence overridden",
		zap.String("assignment_id", assignmentID.Hex()),
		zap.String("user_id", userID.Hex()),
		zap.String("admin_id", adminID.Hex()),
		zap.String("status", string(status)))
	return p, nil
}

// StatusFor returns userID's presence for one assignment.
func (s *Service) StatusFor(ctx context.Context, assignmentID, userID primitive.ObjectID) (Status, error) {
	const op = "presence.StatusFor"
	p, err := s.presences.Get(ctx, assignmentID, userID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, apperr.Persistence(op, err).
			With("assignment_id", assignmentID.Hex()).
			With("user_id", userID.Hex())
	}
	return Status{Declared: true, Presence: p}, nil
}

// ListPresences returns userID's presences for many assignments with one
// query. Assignments without a record are simply absent from the result.
func (s *Service) ListPresences(ctx context.Context, assignmentIDs []primitive.ObjectID, userID primitive.ObjectID) ([]models.Presence, error) {
	const op = "presence.ListPresences"
	if len(assignmentIDs) == 0 {
		return []models.Presence{}, nil
	}
	ps, err := s.presences.ListForUser(ctx, userID, assignmentIDs)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("user_id", userID.Hex())
	}
	if ps == nil {
		ps = []models.Presence{}
	}
	return ps, nil
}

// ListForAssignment returns every presence of an assignment to callers who
// may override them.
func (s *Service) ListForAssignment(ctx context.Context, actorID, assignmentID primitive.ObjectID) ([]models.Presence, error) {
	const op = "presence.ListForAssignment"

	a, err := s.assignment(ctx, op, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, op, a.TeamID, actorID, authz.OverridePresence); err != nil {
		return nil, err
	}
	ps, err := s.presences.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, apperr.Persistence(op, err).With("assignment_id", assignmentID.Hex())
	}
	if ps == nil {
		ps = []models.Presence{}
	}
	return ps, nil
}

// Assignment loads an assignment; handlers use it to scope audit events.
func (s *Service) Assignment(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	return s.assignment(ctx, "presence.Assignment", id)
}
