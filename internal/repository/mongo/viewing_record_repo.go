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

const viewingRecordCollectionName = "viewing_records"

// mongoViewingRecordRepository implements repository.ViewingRecordRepository
type mongoViewingRecordRepository struct {
	collection *mongo.Collection
}

// NewMongoViewingRecordRepository creates a new ViewingRecord repository backed by MongoDB.
func NewMongoViewingRecordRepository(db *mongo.Database) repository.ViewingRecordRepository {
	return &mongoViewingRecordRepository{
		collection: db.Collection(viewingRecordCollectionName),
	}
}

// progressPipeline is the server-side equivalent of domain.MergeProgress.
// Running it as a single pipeline update keeps concurrent writers for the
// same (user, video) from ever reverting a completed status.
func progressPipeline(w domain.ProgressWrite) mongo.Pipeline {
	isCompleted := bson.D{{Key: "$eq", Value: bson.A{"$status", domain.StatusCompleted}}}

	return mongo.Pipeline{
		// First stage: last-write-wins fields, monotonic watched time and sticky status
		{{Key: "$set", Value: bson.D{
			{Key: "courseId", Value: w.CourseID},
			{Key: "currentPosition", Value: w.CurrentPosition},
			{Key: "progressPercent", Value: w.ProgressPercent},
			{Key: "totalWatchedTime", Value: bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$totalWatchedTime", 0}}},
				w.TotalWatchedTime,
			}}}},
			{Key: "startTime", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$startTime", w.At}}}},
			{Key: "endTime", Value: w.At},
			{Key: "lastUpdated", Value: w.At},
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{isCompleted, domain.StatusCompleted, w.Status}}}},
		}}},
		// Second stage sees the status computed above: keep the first completedAt,
		// stamp one on completion, and drop it from any record that is not completed.
		{{Key: "$set", Value: bson.D{
			{Key: "completedAt", Value: bson.D{{Key: "$cond", Value: bson.A{
				isCompleted,
				bson.D{{Key: "$ifNull", Value: bson.A{"$completedAt", w.At}}},
				"$$REMOVE",
			}}}},
		}}},
	}
}

// Upsert writes the telemetry for (userId, videoId) and returns the stored record.
func (r *mongoViewingRecordRepository) Upsert(ctx context.Context, w domain.ProgressWrite) (*domain.ViewingRecord, error) {
	// Basic validation (percent and duration checks belong in service layer)
	if w.UserID == primitive.NilObjectID || w.VideoID == primitive.NilObjectID || w.CourseID == primitive.NilObjectID {
		return nil, errors.New("viewing record requires userId, videoId and courseId")
	}

	filter := bson.M{"userId": w.UserID, "videoId": w.VideoID}
	// Upsert creates the record on first telemetry; return the merged document
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record domain.ViewingRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, progressPipeline(w), opts).Decode(&record)
	if err != nil {
		// Two first-writes racing on the unique index: the loser retries as an update.
		if mongo.IsDuplicateKeyError(err) {
			err = r.collection.FindOneAndUpdate(ctx, filter, progressPipeline(w), opts).Decode(&record)
		}
		if err != nil {
			return nil, err // Return other update errors
		}
	}
	return &record, nil
}

// GetByUserAndVideo retrieves the record for one user and video.
func (r *mongoViewingRecordRepository) GetByUserAndVideo(ctx context.Context, userID, videoID primitive.ObjectID) (*domain.ViewingRecord, error) {
	var record domain.ViewingRecord
	filter := bson.M{"userId": userID, "videoId": videoID}

	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// No telemetry yet; the service decides how to present that
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListByUserAndCourse retrieves every record a user has for a course.
func (r *mongoViewingRecordRepository) ListByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	return r.find(ctx, bson.M{"userId": userID, "courseId": courseID})
}

// ListCompletedByUserAndCourse retrieves only the completed records of a user for a course.
func (r *mongoViewingRecordRepository) ListCompletedByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	return r.find(ctx, bson.M{"userId": userID, "courseId": courseID, "status": domain.StatusCompleted})
}

// ListByCourse retrieves the records of all users for a course, grouped by user.
func (r *mongoViewingRecordRepository) ListByCourse(ctx context.Context, courseID primitive.ObjectID) ([]domain.ViewingRecord, error) {
	return r.find(ctx, bson.M{"courseId": courseID})
}

func (r *mongoViewingRecordRepository) find(ctx context.Context, filter bson.M) ([]domain.ViewingRecord, error) {
	var records []domain.ViewingRecord
	// Sort by user so callers can group, most recent telemetry first within a user
	findOptions := options.Find().SetSort(bson.D{{Key: "userId", Value: 1}, {Key: "lastUpdated", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx) // Ensure cursor is closed

	// Decode all documents found into the slice
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// EnsureViewingRecordIndexes creates necessary indexes for the viewing_records collection.
func EnsureViewingRecordIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "videoId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_video_unique"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "courseId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			// Sweep reads a whole course at once
			Keys:    bson.D{{Key: "courseId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
