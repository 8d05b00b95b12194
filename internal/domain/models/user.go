package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the local record for an authenticated principal.
//
// NOTE:
//   - IdentityID is the external principal id and never changes once set.
//   - Team membership is not embedded on User.
//     Use the team_memberships collection to discover a user's teams.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IdentityID   string             `bson:"identity_id" json:"identity_id"`
	Email        string             `bson:"email" json:"email"`
	DisplayName  string             `bson:"display_name" json:"display_name"`
	FirstName    string             `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName     string             `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	AvatarURL    string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	IsSuperAdmin bool               `bson:"is_super_admin,omitempty" json:"is_super_admin,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
