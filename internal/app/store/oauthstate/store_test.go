package oauthstate_test

import (
	"testing"
	"time"

	"github.com/dalemusser/cadence/internal/app/store/oauthstate"
	"github.com/dalemusser/cadence/internal/testutil"
)

func TestStore_SaveAndValidate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Save(ctx, "state-123", "/me/teams", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	returnURL, valid, err := store.Validate(ctx, "state-123")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !valid {
		t.Fatal("expected state to be valid")
	}
	if returnURL != "/me/teams" {
		t.Errorf("returnURL = %q", returnURL)
	}
}

func TestStore_Validate_OneTimeUse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_ = store.Save(ctx, "once", "", time.Now().Add(10*time.Minute))

	if _, valid, _ := store.Validate(ctx, "once"); !valid {
		t.Fatal("expected first validation to succeed")
	}
	if _, valid, _ := store.Validate(ctx, "once"); valid {
		t.Error("expected second validation to fail")
	}
}

func TestStore_Validate_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_ = store.Save(ctx, "old", "", time.Now().Add(-time.Minute))

	_, valid, err := store.Validate(ctx, "old")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if valid {
		t.Error("expected expired state to be invalid")
	}
}

func TestStore_Validate_Unknown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, valid, err := store.Validate(ctx, "never-saved")
	if err != nil || valid {
		t.Errorf("Validate = (%v, %v), want (false, nil)", valid, err)
	}
}

func TestStore_CleanupExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_ = store.Save(ctx, "expired-1", "", time.Now().Add(-time.Hour))
	_ = store.Save(ctx, "expired-2", "", time.Now().Add(-time.Minute))
	_ = store.Save(ctx, "fresh", "", time.Now().Add(time.Hour))

	n, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if _, valid, _ := store.Validate(ctx, "fresh"); !valid {
		t.Error("fresh state should survive cleanup")
	}
}
