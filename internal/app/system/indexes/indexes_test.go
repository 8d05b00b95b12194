package indexes_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/cadence/internal/app/system/indexes"
	"github.com/dalemusser/cadence/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, ctx context.Context, db *mongo.Database, coll string) map[string]bool {
	t.Helper()
	cur, err := db.Collection(coll).Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes on %s failed: %v", coll, err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// SetupTestDB already applied the indexes once.
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("third EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesExpectedIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		coll  string
		names []string
	}{
		{"users", []string{"uniq_users_identity", "idx_users_email"}},
		{"teams", []string{"uniq_teams_invitation_code", "idx_teams_org_name_ci"}},
		{"team_memberships", []string{"uniq_active_membership", "idx_memberships_user_active_joined", "idx_memberships_team_active_role"}},
		{"assignments", []string{"idx_assignments_team_date_start"}},
		{"presences", []string{"uniq_presence_assignment_user", "idx_presence_user_assignment"}},
		{"oauth_states", []string{"uniq_oauth_state", "ttl_oauth_state_expires"}},
	}

	for _, tt := range tests {
		t.Run(tt.coll, func(t *testing.T) {
			got := indexNames(t, ctx, db, tt.coll)
			for _, name := range tt.names {
				if !got[name] {
					t.Errorf("expected index %q on %s", name, tt.coll)
				}
			}
		})
	}
}

func TestActiveMembershipIndex_AllowsInactiveDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection("team_memberships")
	teamID, userID := primitive.NewObjectID(), primitive.NewObjectID()
	doc := func(active bool) bson.M {
		return bson.M{"_id": primitive.NewObjectID(), "team_id": teamID, "user_id": userID, "role": "member", "active": active, "joined_at": time.Now()}
	}

	// Two inactive rows (left twice) plus one active row are fine.
	for _, d := range []bson.M{doc(false), doc(false), doc(true)} {
		if _, err := coll.InsertOne(ctx, d); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	// A second active row must be rejected.
	_, err := coll.InsertOne(ctx, doc(true))
	if !mongo.IsDuplicateKeyError(err) {
		t.Fatalf("expected duplicate key error for second active membership, got %v", err)
	}
}

func TestPresenceIndex_OnePerAssignmentUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	coll := db.Collection("presences")
	assignmentID, userID := primitive.NewObjectID(), primitive.NewObjectID()

	if _, err := coll.InsertOne(ctx, bson.M{"assignment_id": assignmentID, "user_id": userID, "status": "present"}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := coll.InsertOne(ctx, bson.M{"assignment_id": assignmentID, "user_id": userID, "status": "absent"})
	if !mongo.IsDuplicateKeyError(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}
