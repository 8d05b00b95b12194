// Package schedule creates and updates team assignments and answers which
// of them are upcoming.
package schedule

import (
	"context"
	"errors"
	"time"

	assignmentstore "github.com/dalemusser/cadence/internal/app/store/assignments"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/app/system/normalize"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Window defaults.
const (
	DefaultWindow = 10
	MaxWindow     = 100
)

// Roles resolves the role a user acts with inside a team.
type Roles interface {
	RoleFor(ctx context.Context, teamID, userID primitive.ObjectID) (models.Role, error)
}

// Config controls the scheduling location, window sizes and clock.
type Config struct {
	Location      *time.Location   // wall-clock zone for dates and times; nil means time.Local
	DefaultWindow int              // used when a caller passes windowSize <= 0
	MaxWindow     int              // upper clamp on windowSize and expansion limits
	Now           func() time.Time // nil means time.Now
}

// Service implements the assignment operations.
type Service struct {
	assignments *assignmentstore.Store
	roles       Roles
	cfg         Config
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// New builds the service. m and logger may be nil.
func New(db *mongo.Database, roles Roles, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = MaxWindow
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = DefaultWindow
	}
	if cfg.DefaultWindow > cfg.MaxWindow {
		cfg.DefaultWindow = cfg.MaxWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		assignments: assignmentstore.New(db),
		roles:       roles,
		cfg:         cfg,
		metrics:     m,
		log:         logger,
	}
}

// Location returns the zone assignments are read in.
func (s *Service) Location() *time.Location { return s.cfg.Location }

// Window clamps a requested size into (0, MaxWindow].
func (s *Service) Window(n int) int {
	switch {
	case n <= 0:
		return s.cfg.DefaultWindow
	case n > s.cfg.MaxWindow:
		return s.cfg.MaxWindow
	}
	return n
}

// AssignmentInput is the caller-supplied part of a new assignment.
type AssignmentInput struct {
	Title             string
	Description       string
	Date              string // YYYY-MM-DD
	StartTime         string // HH:MM
	EndTime           string // HH:MM
	Location          string
	IsRecurring       bool
	RecurrencePattern string // JSON, see Pattern
}

// AssignmentPatch changes selected fields of an assignment. Nil fields are
// left unchanged.
type AssignmentPatch struct {
	Title             *string
	Description       *string
	Date              *string
	StartTime         *string
	EndTime           *string
	Location          *string
	IsRecurring       *bool
	RecurrencePattern *string
}

func (s *Service) requireManager(ctx context.Context, op string, teamID, actorID primitive.ObjectID) error {
	role, err := s.roles.RoleFor(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	if !authz.CanManageTeam(role) {
		return apperr.Authorization(op, "only team admins can manage assignments").
			With("team_id", teamID.Hex())
	}
	return nil
}

func (s *Service) requireViewer(ctx context.Context, op string, teamID, actorID primitive.ObjectID) error {
	role, err := s.roles.RoleFor(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	if !authz.Can(role, authz.ViewAssignments) {
		return apperr.Authorization(op, "your role does not allow viewing assignments")
	}
	return nil
}

// CreateAssignment schedules a new assignment for teamID. The actor must be
// able to manage the team.
func (s *Service) CreateAssignment(ctx context.Context, actorID, teamID primitive.ObjectID, in AssignmentInput) (models.Assignment, error) {
	const op = "schedule.CreateAssignment"

	if err := s.requireManager(ctx, op, teamID, actorID); err != nil {
		return models.Assignment{}, err
	}

	a := models.Assignment{
		TeamID:            teamID,
		Title:             in.Title,
		Description:       in.Description,
		AssignmentDate:    in.Date,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Location:          in.Location,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern,
		CreatedBy:         actorID,
	}
	if err := clean(op, &a); err != nil {
		return models.Assignment{}, err
	}

	a, err := s.assignments.Create(ctx, a)
	if err != nil {
		return models.Assignment{}, apperr.Persistence(op, err).With("team_id", teamID.Hex())
	}

	s.metrics.AssignmentWritten("create")
	s.log.Info("assignment created",
		zap.String("assignment_id", a.ID.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", actorID.Hex()))
	return a, nil
}

// Get loads an assignment by id.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	const op = "schedule.Get"
	a, err := s.assignments.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Assignment{}, apperr.NotFound(op, "assignment not found").With("assignment_id", id.Hex())
	}
	if err != nil {
		return models.Assignment{}, apperr.Persistence(op, err).With("assignment_id", id.Hex())
	}
	return a, nil
}

// UpdateAssignment applies patch to an assignment. The merged record is
// validated as a whole.
func (s *Service) UpdateAssignment(ctx context.Context, actorID, assignmentID primitive.ObjectID, patch AssignmentPatch) (models.Assignment, error) {
	const op = "schedule.UpdateAssignment"

	a, err := s.Get(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if err := s.requireManager(ctx, op, a.TeamID, actorID); err != nil {
		return models.Assignment{}, err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.Title, patch.Title)
	set(&a.Description, patch.Description)
	set(&a.AssignmentDate, patch.Date)
	set(&a.StartTime, patch.StartTime)
	set(&a.EndTime, patch.EndTime)
	set(&a.Location, patch.Location)
	set(&a.RecurrencePattern, patch.RecurrencePattern)
	if patch.IsRecurring != nil {
		a.IsRecurring = *patch.IsRecurring
	}
	if err := clean(op, &a); err != nil {
		return models.Assignment{}, err
	}

	a, err = s.assignments.Update(ctx, a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Assignment{}, apperr.NotFound(op, "assignment not found").With("assignment_id", assignmentID.Hex())
	}
	if err != nil {
		return models.Assignment{}, apperr.Persistence(op, err).With("assignment_id", assignmentID.Hex())
	}

	s.metrics.AssignmentWritten("update")
	s.log.Info("assignment updated",
		zap.String("assignment_id", a.ID.Hex()),
		zap.String("team_id", a.TeamID.Hex()),
		zap.String("user_id", actorID.Hex()))
	return a, nil
}

// clean normalizes a in place and validates it.
func clean(op string, a *models.Assignment) error {
	a.Title = normalize.Name(a.Title)
	a.Description = htmlsanitize.PlainText(a.Description)
	a.Location = htmlsanitize.PlainText(a.Location)
	a.AssignmentDate = normalize.Text(a.AssignmentDate)
	a.StartTime = normalize.Text(a.StartTime)
	a.EndTime = normalize.Text(a.EndTime)

	if a.Title == "" {
		return apperr.Validation(op, "title is required")
	}
	if len(a.AssignmentDate) != len(models.DateLayout) {
		return apperr.Validation(op, "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(models.DateLayout, a.AssignmentDate); err != nil {
		return apperr.Validation(op, "date must be YYYY-MM-DD")
	}
	start, ok := parseClock(a.StartTime)
	if !ok {
		return apperr.Validation(op, "start time must be HH:MM")
	}
	end, ok := parseClock(a.EndTime)
	if !ok {
		return apperr.Validation(op, "end time must be HH:MM")
	}
	if !end.After(start) {
		return apperr.Validation(op, "end time must be after start time")
	}

	if !a.IsRecurring {
		a.RecurrencePattern = ""
		return nil
	}
	if _, err := ParsePattern(a.RecurrencePattern); err != nil {
		return apperr.Validation(op, err.Error())
	}
	return nil
}

func parseClock(v string) (time.Time, bool) {
	if len(v) != len(models.TimeLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(models.TimeLayout, v)
	return t, err == nil
}

// ListUpcoming fetches the first windowSize assignments of a team in
// (date, start) order and keeps those starting at or after now. The filter
// runs after the bound, so fewer than windowSize may come back even when
// later assignments exist; callers that need completeness paginate.
func (s *Service) ListUpcoming(ctx context.Context, teamID primitive.ObjectID, windowSize int) ([]models.Assignment, error) {
	const op = "schedule.ListUpcoming"

	list, err := s.assignments.ListByTeamOrdered(ctx, teamID, int64(s.Window(windowSize)))
	if err != nil {
		return nil, apperr.Persistence(op, err).With("team_id", teamID.Hex())
	}
	return FilterUpcoming(list, s.cfg.Now(), s.cfg.Location), nil
}

// ListUpcomingFor is ListUpcoming for a caller who must be able to view the
// team's assignments.
func (s *Service) ListUpcomingFor(ctx context.Context, actorID, teamID primitive.ObjectID, windowSize int) ([]models.Assignment, error) {
	if err := s.requireViewer(ctx, "schedule.ListUpcoming", teamID, actorID); err != nil {
		return nil, err
	}
	return s.ListUpcoming(ctx, teamID, windowSize)
}

// FilterUpcoming keeps the assignments whose start, read in loc, is at or
// after now. Order is preserved. Records with unparsable dates are dropped.
func FilterUpcoming(list []models.Assignment, now time.Time, loc *time.Location) []models.Assignment {
	out := make([]models.Assignment, 0, len(list))
	for _, a := range list {
		starts, err := a.StartsAt(loc)
		if err != nil {
			continue
		}
		if !starts.Before(now) {
			out = append(out, a)
		}
	}
	return out
}

// Occurrences expands a into its dated occurrences in [from, to). limit is
// clamped like a window size.
func (s *Service) Occurrences(ctx context.Context, a models.Assignment, from, to time.Time, limit int) ([]Occurrence, error) {
	const op = "schedule.Occurrences"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, apperr.Validation(op, "to must be after from")
	}
	occ, err := Expand(a, from, to, s.Window(limit), s.cfg.Location)
	if err != nil {
		return nil, apperr.Validation(op, err.Error()).With("assignment_id", a.ID.Hex())
	}
	return occ, nil
}

// OccurrencesFor loads an assignment, checks the caller may view it and
// expands it.
func (s *Service) OccurrencesFor(ctx context.Context, actorID, assignmentID primitive.ObjectID, from, to time.Time, limit int) ([]Occurrence, error) {
	a, err := s.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, "schedule.Occurrences", a.TeamID, actorID); err != nil {
		return nil, err
	}
	return s.Occurrences(ctx, a, from, to, limit)
}
