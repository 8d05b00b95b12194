package userstore_test

import (
	"sync"
	"testing"

	userstore "github.com/dalemusser/cadence/internal/app/store/users"
	"github.com/dalemusser/cadence/internal/testutil"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_EnsureByIdentity_CreatesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id := userstore.Identity{
		IdentityID:  "google|123",
		Email:       "Ada@Example.com",
		DisplayName: "Ada",
	}

	first, created, err := store.EnsureByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("EnsureByIdentity failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create")
	}
	if first.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased", first.Email)
	}
	if first.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	// Second call with different profile data returns the stored record unchanged.
	id.DisplayName = "Someone Else"
	second, created, err := store.EnsureByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("second EnsureByIdentity failed: %v", err)
	}
	if created {
		t.Error("expected second call not to create")
	}
	if second.ID != first.ID {
		t.Errorf("ids differ: %v vs %v", second.ID, first.ID)
	}
	if second.DisplayName != "Ada" {
		t.Errorf("display name changed to %q", second.DisplayName)
	}
}

func TestStore_EnsureByIdentity_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id := userstore.Identity{IdentityID: "google|race", Email: "race@example.com"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.EnsureByIdentity(ctx, id)
			if err != nil && wafflemongo.IsDup(err) {
				_, _, err = store.EnsureByIdentity(ctx, id)
			}
			if err != nil {
				t.Errorf("EnsureByIdentity failed: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := db.Collection("users").CountDocuments(ctx, bson.M{"identity_id": "google|race"})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 user, got %d", n)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if err != mongo.ErrNoDocuments {
		t.Errorf("expected mongo.ErrNoDocuments, got %v", err)
	}
}

func TestStore_EnsureByIdentity_NormalizesEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, _, err := store.EnsureByIdentity(ctx, userstore.Identity{IdentityID: "x", Email: "  BOB@example.COM "})
	if err != nil {
		t.Fatalf("EnsureByIdentity failed: %v", err)
	}

	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Email != "bob@example.com" {
		t.Errorf("email: got %q, want bob@example.com", got.Email)
	}
}

func TestStore_GetByIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _, _ := store.EnsureByIdentity(ctx, userstore.Identity{IdentityID: "a", Email: "a@example.com"})
	b, _, _ := store.EnsureByIdentity(ctx, userstore.Identity{IdentityID: "b", Email: "b@example.com"})

	got, err := store.GetByIDs(ctx, []primitive.ObjectID{a.ID, b.ID, primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("GetByIDs failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 users, got %d", len(got))
	}

	none, err := store.GetByIDs(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("empty ids: got (%v, %v)", none, err)
	}
}

func TestStore_UpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, _, err := store.EnsureByIdentity(ctx, userstore.Identity{IdentityID: "p", Email: "p@example.com", DisplayName: "P"})
	if err != nil {
		t.Fatalf("EnsureByIdentity failed: %v", err)
	}

	name := "Paula"
	phone := "+33 6 00 00 00 00"
	updated, err := store.UpdateProfile(ctx, u.ID, userstore.ProfileUpdate{DisplayName: &name, Phone: &phone})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.DisplayName != "Paula" || updated.Phone != phone {
		t.Errorf("profile not updated: %+v", updated)
	}
	if updated.IdentityID != "p" || updated.Email != "p@example.com" {
		t.Errorf("identity fields changed: %+v", updated)
	}
}

func TestStore_SetSuperAdminByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, _, _ := store.EnsureByIdentity(ctx, userstore.Identity{IdentityID: "root", Email: "root@example.com"})

	n, err := store.SetSuperAdminByEmail(ctx, "ROOT@example.com")
	if err != nil {
		t.Fatalf("SetSuperAdminByEmail failed: %v", err)
	}
	if n != 1 {
		t.Errorf("modified = %d, want 1", n)
	}

	got, _ := store.GetByID(ctx, u.ID)
	if !got.IsSuperAdmin {
		t.Error("expected user to be super admin")
	}

	// Second call is a no-op.
	n, _ = store.SetSuperAdminByEmail(ctx, "root@example.com")
	if n != 0 {
		t.Errorf("second call modified = %d, want 0", n)
	}
}
