package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Date and time layouts used by assignments.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Assignment is a scheduled, time-boxed team activity (rehearsal, event).
//
// AssignmentDate, StartTime and EndTime are wall-clock strings; they are
// interpreted in the scheduling location, never stored as instants. Because
// both layouts are fixed-width, sorting on (assignment_date, start_time)
// orders chronologically.
//
// When IsRecurring is set, the document is a template and RecurrencePattern
// holds its JSON rule. Occurrences are derived at read time.
type Assignment struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	TeamID            primitive.ObjectID `bson:"team_id" json:"team_id"`
	Title             string             `bson:"title" json:"title"`
	Description       string             `bson:"description,omitempty" json:"description,omitempty"`
	AssignmentDate    string             `bson:"assignment_date" json:"assignment_date"`
	StartTime         string             `bson:"start_time" json:"start_time"`
	EndTime           string             `bson:"end_time" json:"end_time"`
	Location          string             `bson:"location,omitempty" json:"location,omitempty"`
	IsRecurring       bool               `bson:"is_recurring" json:"is_recurring"`
	RecurrencePattern string             `bson:"recurrence_pattern,omitempty" json:"recurrence_pattern,omitempty"`
	CreatedBy         primitive.ObjectID `bson:"created_by" json:"created_by"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// StartsAt returns the start instant of the assignment in loc.
func (a Assignment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.AssignmentDate+" "+a.StartTime, loc)
}
