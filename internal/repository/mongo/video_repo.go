package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const videoCollectionName = "videos"

// mongoVideoRepository implements repository.VideoRepository (catalog accessor).
type mongoVideoRepository struct {
	collection *mongo.Collection
}

// NewMongoVideoRepository creates a read-only video catalog accessor.
func NewMongoVideoRepository(db *mongo.Database) repository.VideoRepository {
	return &mongoVideoRepository{
		collection: db.Collection(videoCollectionName),
	}
}

// GetByID retrieves a single video regardless of its status.
func (r *mongoVideoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Video, error) {
	var video domain.Video
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&video)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// ListActiveByCourse returns the active videos of a course in sequence order.
func (r *mongoVideoRepository) ListActiveByCourse(ctx context.Context, courseID primitive.ObjectID) ([]domain.Video, error) {
	var videos []domain.Video
	filter := bson.M{"courseId": courseID, "status": domain.VideoActive}
	findOptions := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// ListCourseIDsWithActiveVideos returns the distinct course ids that currently
// have at least one active video.
func (r *mongoVideoRepository) ListCourseIDsWithActiveVideos(ctx context.Context) ([]primitive.ObjectID, error) {
	raw, err := r.collection.Distinct(ctx, "courseId", bson.M{"status": domain.VideoActive})
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		id, ok := v.(primitive.ObjectID)
		if !ok {
			return nil, fmt.Errorf("unexpected courseId type %T in %s", v, videoCollectionName)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnsureVideoIndexes creates the index used by the catalog reads.
func EnsureVideoIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "courseId", Value: 1}, {Key: "status", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
