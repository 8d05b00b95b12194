package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/cadence/internal/app/system/invitecode"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	return WithChiURLParams(r, key, value)
}

// WithChiURLParams adds several key/value URL parameters at once.
func WithChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user whose identity id is derived from email.
func (f *Fixtures) CreateUser(ctx context.Context, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:          primitive.NewObjectID(),
		IdentityID:  "test|" + email,
		Email:       email,
		DisplayName: email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateSuperAdmin inserts a user flagged as super admin.
func (f *Fixtures) CreateSuperAdmin(ctx context.Context, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		IdentityID:   "test|" + email,
		Email:        email,
		DisplayName:  email,
		IsSuperAdmin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test super admin: %v", err)
	}
	return u
}

// CreateTeam inserts an organization and a team with a fresh invitation
// code. No membership is created; use CreateMembership.
func (f *Fixtures) CreateTeam(ctx context.Context, name string, createdBy primitive.ObjectID) models.Team {
	f.t.Helper()

	now := time.Now().UTC()
	org := models.Organization{
		ID:        primitive.NewObjectID(),
		Name:      "Organization of " + name,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if _, err := f.db.Collection("organizations").InsertOne(ctx, org); err != nil {
		f.t.Fatalf("failed to create test organization: %v", err)
	}

	code, err := invitecode.Generate()
	if err != nil {
		f.t.Fatalf("failed to generate invitation code: %v", err)
	}
	team := models.Team{
		ID:             primitive.NewObjectID(),
		Name:           name,
		NameCI:         text.Fold(name),
		InvitationCode: code,
		OrganizationID: org.ID,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("teams").InsertOne(ctx, team); err != nil {
		f.t.Fatalf("failed to create test team: %v", err)
	}
	return team
}

// CreateMembership inserts an active membership.
func (f *Fixtures) CreateMembership(ctx context.Context, teamID, userID primitive.ObjectID, role models.Role) models.Membership {
	f.t.Helper()

	m := models.Membership{
		ID:       primitive.NewObjectID(),
		TeamID:   teamID,
		UserID:   userID,
		Role:     role,
		Active:   true,
		JoinedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("team_memberships").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}
	return m
}

// CreateAssignment inserts a non-recurring assignment.
func (f *Fixtures) CreateAssignment(ctx context.Context, teamID primitive.ObjectID, title, date, start, end string) models.Assignment {
	f.t.Helper()

	now := time.Now().UTC()
	a := models.Assignment{
		ID:             primitive.NewObjectID(),
		TeamID:         teamID,
		Title:          title,
		AssignmentDate: date,
		StartTime:      start,
		EndTime:        end,
		CreatedBy:      primitive.NewObjectID(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := f.db.Collection("assignments").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test assignment: %v", err)
	}
	return a
}

// CreatePresence inserts a self-declared presence.
func (f *Fixtures) CreatePresence(ctx context.Context, assignmentID, userID primitive.ObjectID, status models.PresenceStatus) models.Presence {
	f.t.Helper()

	p := models.Presence{
		ID:           primitive.NewObjectID(),
		AssignmentID: assignmentID,
		UserID:       userID,
		Status:       status,
		DeclaredBy:   userID,
		DeclaredAt:   time.Now().UTC(),
	}
	if _, err := f.db.Collection("presences").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test presence: %v", err)
	}
	return p
}
