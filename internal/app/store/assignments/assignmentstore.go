// internal/app/store/assignments/assignmentstore.go
package assignmentstore

import (
	"context"
	"time"

	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("assignments")}
}

// Create inserts a with a fresh id and timestamps.
func (s *Store) Create(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	now := time.Now().UTC()
	a.ID = primitive.NewObjectID()
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	var a models.Assignment
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

// Update writes the mutable fields of a and refreshes UpdatedAt. Team,
// creator and creation time never change.
func (s *Store) Update(ctx context.Context, a models.Assignment) (models.Assignment, error) {
	set := bson.M{
		"title":           a.Title,
		"description":     a.Description,
		"assignment_date": a.AssignmentDate,
		"start_time":      a.StartTime,
		"end_time":        a.EndTime,
		"location":        a.Location,
		"is_recurring":    a.IsRecurring,
		"updated_at":      time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if a.IsRecurring && a.RecurrencePattern != "" {
		set["recurrence_pattern"] = a.RecurrencePattern
	} else {
		update["$unset"] = bson.M{"recurrence_pattern": ""}
	}

	var out models.Assignment
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": a.ID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return models.Assignment{}, err
	}
	return out, nil
}

// ListByTeamOrdered returns up to limit assignments of a team ordered by
// (assignment_date, start_time) ascending. limit <= 0 means no limit.
func (s *Store) ListByTeamOrdered(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.Assignment, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "assignment_date", Value: 1},
		{Key: "start_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.c.Find(ctx, bson.M{"team_id": teamID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Assignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
