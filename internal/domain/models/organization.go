package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization owns one or more teams. One is created per team-creation flow.
type Organization struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	CreatedBy primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
