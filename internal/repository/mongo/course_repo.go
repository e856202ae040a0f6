package mongo

import (
	"context"
	"errors"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const courseCollectionName = "courses"

type mongoCourseRepository struct {
	collection *mongo.Collection
}

// NewMongoCourseRepository creates a read-only course accessor.
func NewMongoCourseRepository(db *mongo.Database) repository.CourseRepository {
	return &mongoCourseRepository{
		collection: db.Collection(courseCollectionName),
	}
}

// GetByID retrieves a course. Only the fields this service needs are projected.
func (r *mongoCourseRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Course, error) {
	var course domain.Course
	opts := options.FindOne().SetProjection(bson.M{"title": 1, "createdAt": 1, "updatedAt": 1})

	err := r.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&course)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &course, nil
}
