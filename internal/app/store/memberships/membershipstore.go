// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/cadence/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("team_memberships")}
}

var errBadRole = errors.New(`role must be "super_admin", "team_admin" or "member"`)

// ErrDuplicateMembership is returned when the user already holds an active
// membership in the team (partial unique index on active rows).
var ErrDuplicateMembership = errors.New("user is already an active member of this team")

// Create inserts an active membership.
func (s *Store) Create(ctx context.Context, teamID, userID primitive.ObjectID, role models.Role) (models.Membership, error) {
	if !role.Valid() {
		return models.Membership{}, errBadRole
	}
	m := models.Membership{
		ID:       primitive.NewObjectID(),
		TeamID:   teamID,
		UserID:   userID,
		Role:     role,
		Active:   true,
		JoinedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateMembership
		}
		return models.Membership{}, err
	}
	return m, nil
}

// GetActive returns the active membership for (teamID, userID) or
// mongo.ErrNoDocuments.
func (s *Store) GetActive(ctx context.Context, teamID, userID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	err := s.c.FindOne(ctx, bson.M{"team_id": teamID, "user_id": userID, "active": true}).Decode(&m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveByUser returns a user's active memberships ordered by join time.
func (s *Store) ListActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"user_id": userID, "active": true})
}

// ListActiveByTeam returns a team's active memberships ordered by join time.
func (s *Store) ListActiveByTeam(ctx context.Context, teamID primitive.ObjectID) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"team_id": teamID, "active": true})
}

// CountActiveAdmins counts active memberships holding an admin role.
func (s *Store) CountActiveAdmins(ctx context.Context, teamID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"team_id": teamID,
		"active":  true,
		"role":    bson.M{"$in": []models.Role{models.RoleTeamAdmin, models.RoleSuperAdmin}},
	})
}

// CountActiveByTeams counts active members of each team in one aggregation.
// Teams without active members are absent from the map.
func (s *Store) CountActiveByTeams(ctx context.Context, teamIDs []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	out := make(map[primitive.ObjectID]int64, len(teamIDs))
	if len(teamIDs) == 0 {
		return out, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "team_id", Value: bson.D{{Key: "$in", Value: teamIDs}}},
			{Key: "active", Value: true},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$team_id"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
			N  int64              `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

// Deactivate ends an active membership. It reports false when the
// membership was not active (already left or never existed).
func (s *Store) Deactivate(ctx context.Context, id, removedBy primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "left_at": now, "removed_by": removedBy}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// DeleteByTeam removes every membership of a team. Only the team-creation
// compensation path calls it.
func (s *Store) DeleteByTeam(ctx context.Context, teamID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"team_id": teamID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
