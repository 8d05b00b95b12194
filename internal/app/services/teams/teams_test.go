package teams_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/dalemusser/cadence/internal/app/services/teams"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/invitecode"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/cadence/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newService(t *testing.T, db *mongo.Database) *teams.Service {
	t.Helper()
	return teams.New(db, teams.Config{KeepLastAdmin: true}, nil, zap.NewNop())
}

// sequence returns a code generator that yields codes in order and then
// repeats the last one.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

func TestCreateTeam(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	creator := fx.CreateUser(ctx, "creator@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, creator.ID, "  Brass   Band ", "<p>Tuesday nights</p>")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if team.Name != "Brass Band" {
		t.Errorf("name = %q", team.Name)
	}
	if team.Description != "Tuesday nights" {
		t.Errorf("description = %q, want markup stripped", team.Description)
	}
	if !invitecode.Valid(team.InvitationCode) {
		t.Errorf("invitation code %q is not 8 chars of A-Z0-9", team.InvitationCode)
	}

	var org models.Organization
	if err := db.Collection("organizations").FindOne(ctx, bson.M{"_id": team.OrganizationID}).Decode(&org); err != nil {
		t.Fatalf("organization not created: %v", err)
	}
	if org.Name != "Organization of "+creator.DisplayName {
		t.Errorf("organization name = %q", org.Name)
	}

	role, err := svc.RoleFor(ctx, team.ID, creator.ID)
	if err != nil {
		t.Fatalf("RoleFor: %v", err)
	}
	if role != models.RoleTeamAdmin {
		t.Errorf("creator role = %q, want team_admin", role)
	}
}

func TestCreateTeam_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.NewFixtures(t, db).CreateUser(ctx, "creator@example.com")
	svc := newService(t, db)

	if _, err := svc.CreateTeam(ctx, creator.ID, "   ", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("blank name: got %v, want validation error", err)
	}
}

func TestCreateTeam_RetriesCodeCollision(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.NewFixtures(t, db).CreateUser(ctx, "creator@example.com")
	svc := newService(t, db)

	svc.SetCodeGenerator(sequence("AAAAAAAA"))
	if _, err := svc.CreateTeam(ctx, creator.ID, "First", ""); err != nil {
		t.Fatalf("first CreateTeam: %v", err)
	}

	svc.SetCodeGenerator(sequence("AAAAAAAA", "BBBBBBBB"))
	second, err := svc.CreateTeam(ctx, creator.ID, "Second", "")
	if err != nil {
		t.Fatalf("second CreateTeam: %v", err)
	}
	if second.InvitationCode != "BBBBBBBB" {
		t.Errorf("code = %q, want the retried code", second.InvitationCode)
	}

	svc.SetCodeGenerator(sequence("AAAAAAAA"))
	_, err = svc.CreateTeam(ctx, creator.ID, "Third", "")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("exhausted attempts: got %v, want conflict", err)
	}

	// Failed attempts leave nothing behind.
	orgs, err := db.Collection("organizations").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count orgs: %v", err)
	}
	if orgs != 2 {
		t.Errorf("organizations = %d, want 2", orgs)
	}
	ms, err := db.Collection("team_memberships").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count memberships: %v", err)
	}
	if ms != 2 {
		t.Errorf("memberships = %d, want 2", ms)
	}
}

func TestJoinTeam(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateUser(ctx, "admin@example.com")
	joiner := fx.CreateUser(ctx, "joiner@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, admin.ID, "Choir", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	t.Run("lowercase code joins", func(t *testing.T) {
		got, err := svc.JoinTeam(ctx, joiner.ID, "  "+strings.ToLower(team.InvitationCode)+" ")
		if err != nil {
			t.Fatalf("JoinTeam: %v", err)
		}
		if got.ID != team.ID {
			t.Errorf("joined %s, want %s", got.ID.Hex(), team.ID.Hex())
		}
		role, err := svc.RoleFor(ctx, team.ID, joiner.ID)
		if err != nil || role != models.RoleMember {
			t.Errorf("role = %q, %v; want member", role, err)
		}
	})

	t.Run("second join conflicts", func(t *testing.T) {
		_, err := svc.JoinTeam(ctx, joiner.ID, team.InvitationCode)
		if !apperr.Is(err, apperr.KindConflict) {
			t.Errorf("got %v, want conflict", err)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.JoinTeam(ctx, joiner.ID, "ZZZZ9999")
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("malformed code", func(t *testing.T) {
		_, err := svc.JoinTeam(ctx, joiner.ID, "abc")
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := svc.JoinTeam(ctx, joiner.ID, "  ")
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("got %v, want validation error", err)
		}
	})
}

func TestJoinTeam_ConcurrentJoinsCreateOneMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateUser(ctx, "admin@example.com")
	joiner := fx.CreateUser(ctx, "joiner@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, admin.ID, "Orchestra", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.JoinTeam(ctx, joiner.ID, team.InvitationCode)
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case apperr.Is(err, apperr.KindConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if joined != 1 {
		t.Errorf("successful joins = %d, want 1", joined)
	}

	active, err := db.Collection("team_memberships").CountDocuments(ctx,
		bson.M{"team_id": team.ID, "user_id": joiner.ID, "active": true})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if active != 1 {
		t.Errorf("active memberships = %d, want 1", active)
	}
}

func TestListTeamsForUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	user := fx.CreateUser(ctx, "user@example.com")
	other := fx.CreateUser(ctx, "other@example.com")
	svc := newService(t, db)

	needs, err := svc.NeedsOnboarding(ctx, user.ID)
	if err != nil {
		t.Fatalf("NeedsOnboarding: %v", err)
	}
	if !needs {
		t.Error("a user with no teams needs onboarding")
	}
	list, err := svc.ListTeamsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListTeamsForUser: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("want empty non-nil list, got %v", list)
	}

	own, err := svc.CreateTeam(ctx, user.ID, "Mine", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	foreign, err := svc.CreateTeam(ctx, other.ID, "Theirs", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.JoinTeam(ctx, user.ID, foreign.InvitationCode); err != nil {
		t.Fatalf("JoinTeam: %v", err)
	}

	list, err = svc.ListTeamsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListTeamsForUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("teams = %d, want 2", len(list))
	}
	if list[0].ID != own.ID || list[0].UserRole != models.RoleTeamAdmin {
		t.Errorf("first = %s/%s, want own team as team_admin", list[0].Name, list[0].UserRole)
	}
	if list[1].ID != foreign.ID || list[1].UserRole != models.RoleMember {
		t.Errorf("second = %s/%s, want joined team as member", list[1].Name, list[1].UserRole)
	}
	if list[0].MemberCount != 1 || list[1].MemberCount != 2 {
		t.Errorf("member counts = %d, %d; want 1, 2", list[0].MemberCount, list[1].MemberCount)
	}

	needs, err = svc.NeedsOnboarding(ctx, user.ID)
	if err != nil {
		t.Fatalf("NeedsOnboarding: %v", err)
	}
	if needs {
		t.Error("a user with teams does not need onboarding")
	}
}

func TestRemoveMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateUser(ctx, "admin@example.com")
	member := fx.CreateUser(ctx, "member@example.com")
	bystander := fx.CreateUser(ctx, "bystander@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, admin.ID, "Quartet", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	for _, u := range []models.User{member, bystander} {
		if _, err := svc.JoinTeam(ctx, u.ID, team.InvitationCode); err != nil {
			t.Fatalf("JoinTeam: %v", err)
		}
	}

	t.Run("member cannot remove another member", func(t *testing.T) {
		err := svc.RemoveMembership(ctx, bystander.ID, team.ID, member.ID)
		if !apperr.Is(err, apperr.KindAuthorization) {
			t.Errorf("got %v, want authorization error", err)
		}
	})

	t.Run("last admin cannot leave", func(t *testing.T) {
		err := svc.RemoveMembership(ctx, admin.ID, team.ID, admin.ID)
		if !apperr.Is(err, apperr.KindConflict) {
			t.Errorf("got %v, want conflict", err)
		}
	})

	t.Run("admin removes member", func(t *testing.T) {
		if err := svc.RemoveMembership(ctx, admin.ID, team.ID, member.ID); err != nil {
			t.Fatalf("RemoveMembership: %v", err)
		}
		var m models.Membership
		err := db.Collection("team_memberships").FindOne(ctx, bson.M{"team_id": team.ID, "user_id": member.ID}).Decode(&m)
		if err != nil {
			t.Fatalf("membership deleted instead of deactivated: %v", err)
		}
		if m.Active || m.LeftAt == nil || m.RemovedBy == nil || *m.RemovedBy != admin.ID {
			t.Errorf("membership not deactivated correctly: %+v", m)
		}
	})

	t.Run("removing again is not found", func(t *testing.T) {
		err := svc.RemoveMembership(ctx, admin.ID, team.ID, member.ID)
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("member leaves", func(t *testing.T) {
		if err := svc.RemoveMembership(ctx, bystander.ID, team.ID, bystander.ID); err != nil {
			t.Fatalf("RemoveMembership: %v", err)
		}
	})

	t.Run("rejoin creates a fresh membership", func(t *testing.T) {
		if _, err := svc.JoinTeam(ctx, member.ID, team.InvitationCode); err != nil {
			t.Fatalf("JoinTeam: %v", err)
		}
		total, err := db.Collection("team_memberships").CountDocuments(ctx, bson.M{"team_id": team.ID, "user_id": member.ID})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if total != 2 {
			t.Errorf("membership documents = %d, want 2 (history + active)", total)
		}
	})
}

func TestRemoveMembership_PolicyOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := testutil.NewFixtures(t, db).CreateUser(ctx, "admin@example.com")
	svc := teams.New(db, teams.Config{KeepLastAdmin: false}, nil, zap.NewNop())

	team, err := svc.CreateTeam(ctx, admin.ID, "Solo", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := svc.RemoveMembership(ctx, admin.ID, team.ID, admin.ID); err != nil {
		t.Errorf("with the policy off the last admin may leave: %v", err)
	}
}

func TestRoleFor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateUser(ctx, "admin@example.com")
	super := fx.CreateSuperAdmin(ctx, "root@example.com")
	outsider := fx.CreateUser(ctx, "outsider@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, admin.ID, "Band", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	role, err := svc.RoleFor(ctx, team.ID, super.ID)
	if err != nil || role != models.RoleSuperAdmin {
		t.Errorf("super admin role = %q, %v", role, err)
	}

	if _, err := svc.RoleFor(ctx, team.ID, outsider.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("outsider: got %v, want authorization error", err)
	}
}

func TestInvitationCodeAndMembers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	admin := fx.CreateUser(ctx, "admin@example.com")
	member := fx.CreateUser(ctx, "member@example.com")
	outsider := fx.CreateUser(ctx, "outsider@example.com")
	svc := newService(t, db)

	team, err := svc.CreateTeam(ctx, admin.ID, "Band", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.JoinTeam(ctx, member.ID, team.InvitationCode); err != nil {
		t.Fatalf("JoinTeam: %v", err)
	}

	code, err := svc.InvitationCode(ctx, admin.ID, team.ID)
	if err != nil || code != team.InvitationCode {
		t.Errorf("admin code = %q, %v", code, err)
	}
	if _, err := svc.InvitationCode(ctx, member.ID, team.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("member: got %v, want authorization error", err)
	}

	members, err := svc.ListMembers(ctx, member.ID, team.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if members[0].UserID != admin.ID || members[0].Email != admin.Email {
		t.Errorf("first member = %+v, want the creator", members[0])
	}

	if _, err := svc.ListMembers(ctx, outsider.ID, team.ID); !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("outsider: got %v, want authorization error", err)
	}
}
