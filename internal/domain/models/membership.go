package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership binds a user to a team.
// At most one document per (team_id, user_id) has Active=true; inactive
// documents are history and are never reactivated in place.
type Membership struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TeamID    primitive.ObjectID  `bson:"team_id" json:"team_id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Role      Role                `bson:"role" json:"role"`
	Active    bool                `bson:"active" json:"active"`
	JoinedAt  time.Time           `bson:"joined_at" json:"joined_at"`
	LeftAt    *time.Time          `bson:"left_at,omitempty" json:"left_at,omitempty"`
	RemovedBy *primitive.ObjectID `bson:"removed_by,omitempty" json:"removed_by,omitempty"`
}
