// internal/app/store/presences/presencestore.go
package presencestore

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
	return &Store{c: db.Collection("presences")}
}

// ErrOverridden is returned by Upsert in ModePreserve when the existing
// record carries an admin override.
var ErrOverridden = errors.New("presence is under admin override")

// Mode selects how Write treats the admin override fields.
type Mode int

const (
	// ModePreserve refuses to touch a record under override.
	ModePreserve Mode = iota
	// ModeClear replaces status and clears the override fields together.
	ModeClear
	// ModeOverride sets status and the override fields together.
	ModeOverride
)

// Write is one presence upsert on (AssignmentID, UserID).
type Write struct {
	AssignmentID  primitive.ObjectID
	UserID        primitive.ObjectID
	Status        models.PresenceStatus
	Justification string
	Actor         primitive.ObjectID
	At            time.Time
}

// Upsert writes w and returns the stored record. It is a single
// FindOneAndUpdate with upsert, so repeated writes update in place.
//
// In ModePreserve the filter excludes overridden records; when one exists,
// the upsert collides with the unique (assignment_id, user_id) index and
// Upsert returns ErrOverridden. Any other duplicate-key error (two first
// writers racing) is retried once, at which point the record exists and the
// write becomes a plain update.
func (s *Store) Upsert(ctx context.Context, w Write, mode Mode) (models.Presence, error) {
	p, err := s.upsert(ctx, w, mode)
	if err != nil && wafflemongo.IsDup(err) {
		if mode == ModePreserve {
			existing, gerr := s.Get(ctx, w.AssignmentID, w.UserID)
			if gerr == nil && existing.AdminOverride {
				return models.Presence{}, ErrOverridden
			}
		}
		p, err = s.upsert(ctx, w, mode)
		if err != nil && wafflemongo.IsDup(err) && mode == ModePreserve {
			return models.Presence{}, ErrOverridden
		}
	}
	return p, err
}

func (s *Store) upsert(ctx context.Context, w Write, mode Mode) (models.Presence, error) {
	filter := bson.M{"assignment_id": w.AssignmentID, "user_id": w.UserID}

	set := bson.M{"status": w.Status}
	unset := bson.M{}
	onInsert := bson.M{"_id": primitive.NewObjectID()}

	if w.Justification != "" {
		set["justification"] = w.Justification
	} else {
		unset["justification"] = ""
	}

	switch mode {
	case ModePreserve:
		filter["admin_override"] = bson.M{"$ne": true}
		set["declared_by"] = w.Actor
		set["declared_at"] = w.At
		onInsert["admin_override"] = false
	case ModeClear:
		set["declared_by"] = w.Actor
		set["declared_at"] = w.At
		set["admin_override"] = false
		unset["admin_override_by"] = ""
		unset["admin_override_at"] = ""
	case ModeOverride:
		set["declared_by"] = w.Actor
		set["declared_at"] = w.At
		set["admin_override"] = true
		set["admin_override_by"] = w.Actor
		set["admin_override_at"] = w.At
	}

	update := bson.M{"$set": set, "$setOnInsert": onInsert}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var p models.Presence
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return models.Presence{}, err
	}
	return p, nil
}

// Get returns the presence for (assignmentID, userID) or mongo.ErrNoDocuments.
func (s *Store) Get(ctx context.Context, assignmentID, userID primitive.ObjectID) (*models.Presence, error) {
	var p models.Presence
	if err := s.c.FindOne(ctx, bson.M{"assignment_id": assignmentID, "user_id": userID}).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListForUser batch-reads one user's presences for many assignments with a
// single $in query.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID, assignmentIDs []primitive.ObjectID) ([]models.Presence, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"user_id": userID, "assignment_id": bson.M{"$in": assignmentIDs}})
}

// ListByAssignment returns every presence recorded for one assignment.
func (s *Store) ListByAssignment(ctx context.Context, assignmentID primitive.ObjectID) ([]models.Presence, error) {
	return s.find(ctx, bson.M{"assignment_id": assignmentID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Presence, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "declared_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Presence
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
