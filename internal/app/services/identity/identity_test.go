package identity_test

import (
	"sync"
	"testing"

	"github.com/dalemusser/cadence/internal/app/services/identity"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func TestEnsureUser_CreatesThenReturnsExisting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := identity.New(db, nil, zap.NewNop())

	u, created, err := svc.EnsureUser(ctx, identity.Principal{
		IdentityID: "google|123",
		Email:      "  Ada@Example.COM ",
	})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if !created {
		t.Error("first call should create the user")
	}
	if u.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased", u.Email)
	}
	if u.DisplayName != "ada@example.com" {
		t.Errorf("display name = %q, want email fallback", u.DisplayName)
	}

	again, created, err := svc.EnsureUser(ctx, identity.Principal{
		IdentityID:  "google|123",
		Email:       "other@example.com",
		DisplayName: "Someone Else",
	})
	if err != nil {
		t.Fatalf("EnsureUser (second): %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
	if again.ID != u.ID {
		t.Errorf("id changed: %s vs %s", again.ID.Hex(), u.ID.Hex())
	}
	if again.Email != "ada@example.com" || again.DisplayName != "ada@example.com" {
		t.Errorf("existing record was modified: %+v", again)
	}
}

func TestEnsureUser_Validation(t *testing.T) {
	svc := identity.New(testutil.SetupTestDB(t), nil, nil)

	tests := []struct {
		name string
		p    identity.Principal
	}{
		{"missing identity", identity.Principal{Email: "a@example.com"}},
		{"blank identity", identity.Principal{IdentityID: "   ", Email: "a@example.com"}},
		{"missing email", identity.Principal{IdentityID: "google|1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.EnsureUser(t.Context(), tt.p)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestEnsureUser_ConcurrentCallsConverge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := identity.New(db, nil, zap.NewNop())

	const n = 8
	var wg sync.WaitGroup
	ids := make([]primitive.ObjectID, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, _, err := svc.EnsureUser(ctx, identity.Principal{IdentityID: "google|race", Email: "race@example.com"})
			ids[i], errs[i] = u.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("call %d returned %s, want %s", i, ids[i].Hex(), ids[0].Hex())
		}
	}

	count, err := db.Collection("users").CountDocuments(ctx, bson.M{"identity_id": "google|race"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("users with identity = %d, want 1", count)
	}
}

func TestEnsureUser_PromotesConfiguredSuperAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := identity.New(db, nil, zap.NewNop())
	svc.SetSuperAdminEmail("Boss@Example.com")

	boss, _, err := svc.EnsureUser(ctx, identity.Principal{IdentityID: "google|boss", Email: "boss@example.com"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if !boss.IsSuperAdmin {
		t.Error("configured address was not promoted")
	}
	stored, err := svc.Get(ctx, boss.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.IsSuperAdmin {
		t.Error("promotion was not persisted")
	}

	other, _, err := svc.EnsureUser(ctx, identity.Principal{IdentityID: "google|other", Email: "other@example.com"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if other.IsSuperAdmin {
		t.Error("unrelated user was promoted")
	}
}

func TestUpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	owner := fx.CreateUser(ctx, "owner@example.com")
	other := fx.CreateUser(ctx, "other@example.com")
	svc := identity.New(db, nil, zap.NewNop())

	t.Run("owner edits", func(t *testing.T) {
		u, err := svc.UpdateProfile(ctx, owner.ID, owner.ID, identity.ProfileUpdate{
			DisplayName: strPtr("  Grace   Hopper "),
			Phone:       strPtr("<b>555</b> 0100"),
		})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if u.DisplayName != "Grace Hopper" {
			t.Errorf("display name = %q", u.DisplayName)
		}
		if u.Phone != "555 0100" {
			t.Errorf("phone = %q, want markup stripped", u.Phone)
		}
		if u.Email != owner.Email || u.IdentityID != owner.IdentityID {
			t.Error("identity fields must not change")
		}
	})

	t.Run("someone else", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, other.ID, owner.ID, identity.ProfileUpdate{DisplayName: strPtr("x")})
		if !apperr.Is(err, apperr.KindAuthorization) {
			t.Errorf("got %v, want authorization error", err)
		}
	})

	t.Run("empty display name", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, owner.ID, owner.ID, identity.ProfileUpdate{DisplayName: strPtr("   ")})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("got %v, want validation error", err)
		}
	})

	t.Run("nothing to change", func(t *testing.T) {
		_, err := svc.UpdateProfile(ctx, owner.ID, owner.ID, identity.ProfileUpdate{})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("got %v, want validation error", err)
		}
	})
}

func TestProfileUpdate_ChangedFields(t *testing.T) {
	upd := identity.ProfileUpdate{FirstName: strPtr("a"), AvatarURL: strPtr("b")}
	if got := upd.ChangedFields(); got != "first_name,avatar_url" {
		t.Errorf("ChangedFields = %q", got)
	}
}
