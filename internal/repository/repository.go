package repository

import (
	"context"

	"github.com/alcyxob/lms-progress/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicateKey = RepositoryError("duplicate key") // Unique constraint violation
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ViewingRecordRepository stores one record per (user, video).
type ViewingRecordRepository interface {
	// Upsert applies the write atomically, keyed on (userId, videoId), with the
	// merge rules of domain.MergeProgress, and returns the stored record.
	Upsert(ctx context.Context, write domain.ProgressWrite) (*domain.ViewingRecord, error)
	GetByUserAndVideo(ctx context.Context, userID, videoID primitive.ObjectID) (*domain.ViewingRecord, error)
	ListByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error)
	ListCompletedByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) ([]domain.ViewingRecord, error)
	// ListByCourse returns every record of a course, all users, for batch evaluation.
	ListByCourse(ctx context.Context, courseID primitive.ObjectID) ([]domain.ViewingRecord, error)
}

// CertificateRepository stores certificates, unique per (userId, courseId).
type CertificateRepository interface {
	// Create returns ErrDuplicateKey when the id or the (userId, courseId) pair already exists.
	Create(ctx context.Context, cert *domain.Certificate) error
	GetByID(ctx context.Context, id string) (*domain.Certificate, error)
	GetByUserAndCourse(ctx context.Context, userID, courseID primitive.ObjectID) (*domain.Certificate, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Certificate, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// VideoRepository is the read-only catalog accessor.
type VideoRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Video, error)
	ListActiveByCourse(ctx context.Context, courseID primitive.ObjectID) ([]domain.Video, error)
	// ListCourseIDsWithActiveVideos returns courses that have at least one active video.
	ListCourseIDsWithActiveVideos(ctx context.Context) ([]primitive.ObjectID, error)
}

// CourseRepository is the read-only course accessor.
type CourseRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Course, error)
}

// UserRepository is the read-only user accessor.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}
