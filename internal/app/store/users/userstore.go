package userstore

import (
	"context"
	"time"

	"github.com/dalemusser/cadence/internal/app/system/normalize"
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
	return &Store{c: db.Collection("users")}
}

// Identity is the create-if-absent payload for EnsureByIdentity.
type Identity struct {
	IdentityID  string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	AvatarURL   string
}

// EnsureByIdentity returns the user keyed by id.IdentityID, inserting it
// first when absent. The write is a single upsert with $setOnInsert, so an
// existing record is never modified and concurrent callers converge on one
// document. created reports whether this call inserted it.
//
// Two racing upserts can both miss and one of them then fails the unique
// index; callers retry once on a duplicate-key error.
func (s *Store) EnsureByIdentity(ctx context.Context, id Identity) (u models.User, created bool, err error) {
	now := time.Now().UTC()
	newID := primitive.NewObjectID()

	onInsert := bson.M{
		"_id":          newID,
		"identity_id":  id.IdentityID,
		"email":        normalize.Email(id.Email),
		"display_name": id.DisplayName,
		"created_at":   now,
		"updated_at":   now,
	}
	if id.FirstName != "" {
		onInsert["first_name"] = id.FirstName
	}
	if id.LastName != "" {
		onInsert["last_name"] = id.LastName
	}
	if id.AvatarURL != "" {
		onInsert["avatar_url"] = id.AvatarURL
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"identity_id": id.IdentityID},
		bson.M{"$setOnInsert": onInsert},
		opts,
	).Decode(&u)
	if err != nil {
		return models.User{}, false, err
	}
	return u, u.ID == newID, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByIDs batch-loads users with one $in query. Missing ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProfileUpdate holds the self-editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	DisplayName *string
	FirstName   *string
	LastName    *string
	Phone       *string
	AvatarURL   *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil && p.FirstName == nil && p.LastName == nil &&
		p.Phone == nil && p.AvatarURL == nil
}

// UpdateProfile applies upd and returns the updated record. Identity and
// email are not touched.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) (*models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.DisplayName != nil {
		set["display_name"] = *upd.DisplayName
	}
	if upd.FirstName != nil {
		set["first_name"] = *upd.FirstName
	}
	if upd.LastName != nil {
		set["last_name"] = *upd.LastName
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.AvatarURL != nil {
		set["avatar_url"] = *upd.AvatarURL
	}

	var u models.User
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetSuperAdminByEmail flags every user with the given email as super admin.
// Returns the number of documents changed.
func (s *Store) SetSuperAdminByEmail(ctx context.Context, email string) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"email": normalize.Email(email), "is_super_admin": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"is_super_admin": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
