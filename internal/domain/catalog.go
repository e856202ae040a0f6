// internal/domain/catalog.go
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VideoStatus marks whether a video counts toward course completion.
type VideoStatus string

const (
	VideoActive   VideoStatus = "active"
	VideoInactive VideoStatus = "inactive"
)

// Course is owned by the catalog service; only the title is read here.
type Course struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string             `bson:"title" json:"title"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Video is one ordered item of a course.
type Video struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CourseID primitive.ObjectID `bson:"courseId" json:"courseId"`
	Title    string             `bson:"title" json:"title"`
	Duration float64            `bson:"duration" json:"duration"` // seconds
	Status   VideoStatus        `bson:"status" json:"status"`
	Sequence int                `bson:"sequence" json:"sequence"` // Order within the course
}

func (v *Video) IsActive() bool {
	return v.Status == VideoActive
}
