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

const certificateCollectionName = "certificates"

// mongoCertificateRepository implements repository.CertificateRepository
type mongoCertificateRepository struct {
	collection *mongo.Collection
}

// NewMongoCertificateRepository creates a new Certificate repository backed by MongoDB.
func NewMongoCertificateRepository(db *mongo.Database) repository.CertificateRepository {
	return &mongoCertificateRepository{
		collection: db.Collection(certificateCollectionName),
	}
}

// Create inserts a certificate. The caller owns the id.
func (r *mongoCertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	// Basic validation; eligibility and snapshot checks belong in the service layer
	if cert.ID == "" || cert.UserID == primitive.NilObjectID || cert.CourseID == primitive.NilObjectID {
		return errors.New("certificate requires id, userId and courseId")
	}

	_, err := r.collection.InsertOne(ctx, cert)
	if err != nil {
		// Either the _id or the (userId, courseId) index rejected it; the service tells them apart
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return err // Return other insertion errors
	}
	return nil
}

// GetByID retrieves a certificate by its token.
func (r *mongoCertificateRepository) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByUserAndCourse retrieves the certificate of a user for a course.
func (r *mongoCertificateRepository) GetByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) (*domain.Certificate, error) {
	return r.findOne(ctx, bson.M{"userId": userID, "courseId": courseID})
}

func (r *mongoCertificateRepository) findOne(ctx context.Context, filter bson.M) (*domain.Certificate, error) {
	var cert domain.Certificate
	err := r.collection.FindOne(ctx, filter).Decode(&cert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Return the custom repository error for not found
			return nil, repository.ErrNotFound
		}
		return nil, err // Return other errors
	}
	return &cert, nil
}

// ListByUser retrieves all certificates of a user, newest first.
func (r *mongoCertificateRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Certificate, error) {
	var certs []domain.Certificate
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx) // Ensure cursor is closed

	// Decode all documents found into the slice
	if err = cursor.All(ctx, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// SetActive flips the soft-revocation flag. Nothing else on a certificate is mutable.
func (r *mongoCertificateRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isActive": active}})
	if err != nil {
		return err
	}
	// MatchedCount, not ModifiedCount: re-applying the same flag is not an error
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureCertificateIndexes creates necessary indexes for the certificates collection.
func EnsureCertificateIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// One certificate per user and course. Issuance relies on this.
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "courseId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_course_unique"),
		},
		{
			// Index for listing a user's certificates, newest first
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
