package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PresenceStatus is a declared attendance state.
type PresenceStatus string

const (
	StatusPresent PresenceStatus = "present"
	StatusAbsent  PresenceStatus = "absent"
	StatusLate    PresenceStatus = "late"
)

// Valid reports whether s is one of the declarable statuses.
func (s PresenceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// Presence is one user's attendance record for one assignment.
// Exactly one document per (assignment_id, user_id).
//
// AdminOverride, AdminOverrideBy and AdminOverrideAt are written and cleared
// together.
type Presence struct {
	ID              primitive.ObjectID  `bson:"_id" json:"id"`
	AssignmentID    primitive.ObjectID  `bson:"assignment_id" json:"assignment_id"`
	UserID          primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Status          PresenceStatus      `bson:"status" json:"status"`
	Justification   string              `bson:"justification,omitempty" json:"justification,omitempty"`
	DeclaredBy      primitive.ObjectID  `bson:"declared_by" json:"declared_by"`
	DeclaredAt      time.Time           `bson:"declared_at" json:"declared_at"`
	AdminOverride   bool                `bson:"admin_override" json:"admin_override"`
	AdminOverrideBy *primitive.ObjectID `bson:"admin_override_by,omitempty" json:"admin_override_by,omitempty"`
	AdminOverrideAt *time.Time          `bson:"admin_override_at,omitempty" json:"admin_override_at,omitempty"`
}
