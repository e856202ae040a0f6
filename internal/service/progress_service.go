package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// CourseProgress is a learner's per-video progress across one course.
type CourseProgress struct {
	CompletionStatus
	Records []domain.ViewingRecord `json:"records"`
}

// --- Service Interface ---
type ProgressService interface {
	// RecordProgress validates an update, upserts the viewing record and, when
	// the record is completed, notifies the completion listener.
	RecordProgress(ctx context.Context, update domain.ProgressUpdate) (*domain.ViewingRecord, error)
	// GetProgress returns nil, nil when the user has no record for the video.
	GetProgress(ctx context.Context, userID, videoID primitive.ObjectID) (*domain.ViewingRecord, error)
	ListCourseProgress(ctx context.Context, userID, courseID primitive.ObjectID) (*CourseProgress, error)
}

// --- Service Implementation ---
type progressService struct {
	recordRepo repository.ViewingRecordRepository
	videoRepo  repository.VideoRepository
	listener   CompletionListener // Optional
	logger     *zap.Logger
	now        func() time.Time
}

func NewProgressService(
	recordRepo repository.ViewingRecordRepository,
	videoRepo repository.VideoRepository,
	listener CompletionListener,
	logger *zap.Logger,
) ProgressService {
	return &progressService{
		recordRepo: recordRepo,
		videoRepo:  videoRepo,
		listener:   listener,
		logger:     logger.Named("progress"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *progressService) RecordProgress(ctx context.Context, update domain.ProgressUpdate) (*domain.ViewingRecord, error) {
	// 1. Validate and resolve percent/status
	write, err := s.resolveWrite(ctx, update)
	if err != nil {
		return nil, err
	}

	// 2. Atomic upsert
	record, err := s.recordRepo.Upsert(ctx, write)
	if err != nil {
		return nil, storageFailure("upsert viewing record", err)
	}

	// 3. Completion trigger. Runs on every completed write; issuance is idempotent.
	if record.IsCompleted() && s.listener != nil {
		s.listener.OnVideoCompleted(ctx, record.UserID, record.CourseID)
	}
	return record, nil
}

func (s *progressService) resolveWrite(ctx context.Context, u domain.ProgressUpdate) (domain.ProgressWrite, error) {
	if u.UserID.IsZero() || u.VideoID.IsZero() || u.CourseID.IsZero() {
		return domain.ProgressWrite{}, invalidInput("userId, videoId and courseId are required")
	}
	if !validSeconds(u.CurrentPosition) {
		return domain.ProgressWrite{}, invalidInput("currentPosition must be a non-negative number")
	}
	if !validSeconds(u.TotalWatchedTime) {
		return domain.ProgressWrite{}, invalidInput("totalWatchedTime must be a non-negative number")
	}

	var percent int
	switch {
	case u.ProgressPercent != nil:
		percent = *u.ProgressPercent
		if percent < 0 || percent > 100 {
			return domain.ProgressWrite{}, invalidInput("progressPercent must be between 0 and 100")
		}
	case u.VideoDuration != nil:
		if !validSeconds(*u.VideoDuration) || *u.VideoDuration == 0 {
			return domain.ProgressWrite{}, invalidInput("videoDuration must be positive")
		}
		percent = domain.ComputePercent(u.CurrentPosition, *u.VideoDuration)
	default:
		duration, err := s.catalogDuration(ctx, u.VideoID, u.CourseID)
		if err != nil {
			return domain.ProgressWrite{}, err
		}
		percent = domain.ComputePercent(u.CurrentPosition, duration)
	}

	return domain.ProgressWrite{
		UserID:           u.UserID,
		VideoID:          u.VideoID,
		CourseID:         u.CourseID,
		CurrentPosition:  u.CurrentPosition,
		TotalWatchedTime: u.TotalWatchedTime,
		ProgressPercent:  percent,
		Status:           domain.DeriveStatus(percent),
		At:               s.now(),
	}, nil
}

// catalogDuration is the fallback when the client sent neither percent nor duration.
func (s *progressService) catalogDuration(ctx context.Context, videoID, courseID primitive.ObjectID) (float64, error) {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, invalidInput("unknown video %s and no progressPercent or videoDuration given", videoID.Hex())
		}
		return 0, dependencyUnavailable("video catalog", err)
	}
	if video.CourseID != courseID {
		return 0, invalidInput("video %s does not belong to course %s", videoID.Hex(), courseID.Hex())
	}
	if video.Duration <= 0 {
		return 0, invalidInput("video %s has no duration; send progressPercent or videoDuration", videoID.Hex())
	}
	return video.Duration, nil
}

func validSeconds(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (s *progressService) GetProgress(ctx context.Context, userID, videoID primitive.ObjectID) (*domain.ViewingRecord, error) {
	if userID.IsZero() || videoID.IsZero() {
		return nil, invalidInput("userId and videoId are required")
	}
	record, err := s.recordRepo.GetByUserAndVideo(ctx, userID, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, storageFailure("get viewing record", err)
	}
	return record, nil
}

func (s *progressService) ListCourseProgress(ctx context.Context, userID, courseID primitive.ObjectID) (*CourseProgress, error) {
	if userID.IsZero() || courseID.IsZero() {
		return nil, invalidInput("userId and courseId are required")
	}

	records, err := s.recordRepo.ListByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, storageFailure("list viewing records", err)
	}
	videos, err := s.videoRepo.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, dependencyUnavailable("list active videos", err)
	}

	if records == nil {
		records = []domain.ViewingRecord{}
	}
	return &CourseProgress{
		CompletionStatus: evaluateCompletion(courseID, videos, records, s.now()),
		Records:          records,
	}, nil
}
