package metricsstore_test

import (
	"testing"

	metricsstore "github.com/dalemusser/cadence/internal/app/store/metrics"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/cadence/internal/testutil"
)

func TestFetchCounts_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	counts := metricsstore.FetchCounts(ctx, db)

	if counts != (metricsstore.Counts{}) {
		t.Errorf("expected all zero counts, got %+v", counts)
	}
}

func TestFetchCounts_WithData(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fixtures.CreateUser(ctx, "admin@example.com")
	member := fixtures.CreateUser(ctx, "member@example.com")
	team := fixtures.CreateTeam(ctx, "Choir", admin.ID)
	fixtures.CreateMembership(ctx, team.ID, admin.ID, models.RoleTeamAdmin)
	fixtures.CreateMembership(ctx, team.ID, member.ID, models.RoleMember)
	a := fixtures.CreateAssignment(ctx, team.ID, "Rehearsal", "2025-01-01", "10:00", "12:00")
	fixtures.CreatePresence(ctx, a.ID, member.ID, models.StatusPresent)

	counts := metricsstore.FetchCounts(ctx, db)

	if counts.Users != 2 {
		t.Errorf("Users: got %d, want 2", counts.Users)
	}
	if counts.Teams != 1 {
		t.Errorf("Teams: got %d, want 1", counts.Teams)
	}
	if counts.ActiveMemberships != 2 {
		t.Errorf("ActiveMemberships: got %d, want 2", counts.ActiveMemberships)
	}
	if counts.Assignments != 1 {
		t.Errorf("Assignments: got %d, want 1", counts.Assignments)
	}
	if counts.Presences != 1 {
		t.Errorf("Presences: got %d, want 1", counts.Presences)
	}
	if counts.Overrides != 0 {
		t.Errorf("Overrides: got %d, want 0", counts.Overrides)
	}
}
