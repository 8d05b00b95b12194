package metricsstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of engine totals exported as gauges.
type Counts struct {
	Users             int64
	Teams             int64
	ActiveMemberships int64
	Assignments       int64
	Presences         int64
	Overrides         int64
}

// FetchCounts returns the high-level totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	count := func(coll string, filter bson.M) int64 {
		n, err := db.Collection(coll).CountDocuments(ctx, filter)
		if err != nil {
			return 0
		}
		return n
	}

	out.Users = count("users", bson.M{})
	out.Teams = count("teams", bson.M{})
	out.ActiveMemberships = count("team_memberships", bson.M{"active": true})
	out.Assignments = count("assignments", bson.M{})
	out.Presences = count("presences", bson.M{})
	out.Overrides = count("presences", bson.M{"admin_override": true})

	return out
}
