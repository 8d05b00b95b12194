package teams

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/txn"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/cadence/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type txnFunc func(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error

// countingTxn answers every call with err and counts the calls.
func countingTxn(calls *int, err error) txnFunc {
	return func(context.Context, *mongo.Client, func(sc mongo.SessionContext) error) error {
		*calls++
		return err
	}
}

func TestCreateTeam_FallsBackWhenTransactionsUnsupported(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	creator := fx.CreateUser(ctx, "creator@example.com")

	svc := New(db, Config{KeepLastAdmin: true}, nil, zap.NewNop())
	calls := 0
	svc.runTxn = countingTxn(&calls, txn.ErrNotSupported)

	team, err := svc.CreateTeam(ctx, creator.ID, "Strings", "")
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if !svc.noTxn.Load() {
		t.Error("fallback not remembered after ErrNotSupported")
	}
	role, err := svc.RoleFor(ctx, team.ID, creator.ID)
	if err != nil || role != models.RoleTeamAdmin {
		t.Errorf("RoleFor = %q, %v; want team_admin from the compensating path", role, err)
	}

	if _, err := svc.CreateTeam(ctx, creator.ID, "Winds", ""); err != nil {
		t.Fatalf("second CreateTeam: %v", err)
	}
	if calls != 1 {
		t.Errorf("transaction attempts = %d, want 1", calls)
	}
}

func TestCreateTeam_OtherTransactionErrorsDoNotDisableTransactions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	creator := fx.CreateUser(ctx, "creator@example.com")

	svc := New(db, Config{KeepLastAdmin: true}, nil, zap.NewNop())
	calls := 0
	svc.runTxn = countingTxn(&calls, fmt.Errorf("commit: %w", errors.New("transaction aborted on replica set step down")))

	for i := 0; i < 2; i++ {
		_, err := svc.CreateTeam(ctx, creator.ID, "Percussion", "")
		if !apperr.Is(err, apperr.KindPersistence) {
			t.Fatalf("attempt %d: err = %v, want persistence", i, err)
		}
	}
	if svc.noTxn.Load() {
		t.Error("a transient failure switched the service to compensating writes")
	}
	if calls != 2 {
		t.Errorf("transaction attempts = %d, want 2", calls)
	}

	n, err := db.Collection("teams").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count teams: %v", err)
	}
	if n != 0 {
		t.Errorf("teams written = %d, want 0", n)
	}
}
