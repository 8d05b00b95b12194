package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Team is a musical team inside an organization.
//
// InvitationCode is stored uppercase and is unique across all teams.
type Team struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	Name           string             `bson:"name" json:"name"`
	NameCI         string             `bson:"name_ci" json:"-"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	InvitationCode string             `bson:"invitation_code" json:"-"`
	OrganizationID primitive.ObjectID `bson:"organization_id" json:"organization_id"`
	CreatedBy      primitive.ObjectID `bson:"created_by" json:"created_by"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// UserTeam is a team seen from one user's point of view.
type UserTeam struct {
	Team
	UserRole    Role      `json:"user_role"`
	JoinedAt    time.Time `json:"joined_at"`
	MemberCount int       `json:"member_count"`
}
