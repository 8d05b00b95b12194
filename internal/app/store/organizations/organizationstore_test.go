package organizationstore_test

import (
	"testing"

	organizationstore "github.com/dalemusser/cadence/internal/app/store/organizations"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/cadence/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_CreateGetDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := organizationstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := primitive.NewObjectID()
	org, err := store.Create(ctx, models.Organization{Name: "Organization of Ada", CreatedBy: creator})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if org.ID.IsZero() || org.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", org)
	}

	got, err := store.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Name != "Organization of Ada" || got.CreatedBy != creator {
		t.Errorf("got %+v", got)
	}

	n, err := store.Delete(ctx, org.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, err := store.GetByID(ctx, org.ID); err != mongo.ErrNoDocuments {
		t.Errorf("expected ErrNoDocuments after delete, got %v", err)
	}
}
