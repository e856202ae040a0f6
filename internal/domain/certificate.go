package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Certificate is issued at most once per (user, course).
// UserName and CourseTitle are snapshots taken at issuance and are never
// refreshed. Only IsActive may change after creation.
type Certificate struct {
	ID             string             `bson:"_id" json:"id"` // Human-inspectable token, e.g. CERT-MB1X2Y3Z-9F3A61C2D4E5
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	CourseID       primitive.ObjectID `bson:"courseId" json:"courseId"`
	UserName       string             `bson:"userName" json:"userName"`
	CourseTitle    string             `bson:"courseTitle" json:"courseTitle"`
	CompletionDate time.Time          `bson:"completionDate" json:"completionDate"`
	IsActive       bool               `bson:"isActive" json:"isActive"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}
