package service

import (
	"context"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionStatus is the result of evaluating one user against one course.
type CompletionStatus struct {
	CourseID        primitive.ObjectID   `json:"courseId"`
	Complete        bool                 `json:"complete"`
	RequiredVideos  int                  `json:"requiredVideos"`
	CompletedVideos int                  `json:"completedVideos"`
	MissingVideoIDs []primitive.ObjectID `json:"missingVideoIds"`
	// LatestCompletion is the newest completion timestamp among the required
	// videos the user has finished. Nil when none are finished.
	LatestCompletion *time.Time `json:"latestCompletion,omitempty"`
}

// --- Service Interface ---
type CompletionEvaluator interface {
	// IsComplete is true only when the course has at least one active video and
	// every one of them has a completed record for the user.
	IsComplete(ctx context.Context, userID, courseID primitive.ObjectID) (bool, error)
	LatestCompletionTimestamp(ctx context.Context, userID, courseID primitive.ObjectID) (*time.Time, error)
	Evaluate(ctx context.Context, userID, courseID primitive.ObjectID) (*CompletionStatus, error)
}

// --- Service Implementation ---
type completionEvaluator struct {
	videoRepo  repository.VideoRepository
	recordRepo repository.ViewingRecordRepository
	now        func() time.Time
}

func NewCompletionEvaluator(videoRepo repository.VideoRepository, recordRepo repository.ViewingRecordRepository) CompletionEvaluator {
	return &completionEvaluator{
		videoRepo:  videoRepo,
		recordRepo: recordRepo,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *completionEvaluator) IsComplete(ctx context.Context, userID, courseID primitive.ObjectID) (bool, error) {
	status, err := e.Evaluate(ctx, userID, courseID)
	if err != nil {
		return false, err
	}
	return status.Complete, nil
}

func (e *completionEvaluator) LatestCompletionTimestamp(ctx context.Context, userID, courseID primitive.ObjectID) (*time.Time, error) {
	status, err := e.Evaluate(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return status.LatestCompletion, nil
}

// Evaluate reads the live catalog and the user's completed records and
// compares them. Catalog failures surface as ErrDependencyUnavailable.
func (e *completionEvaluator) Evaluate(ctx context.Context, userID, courseID primitive.ObjectID) (*CompletionStatus, error) {
	if userID.IsZero() || courseID.IsZero() {
		return nil, invalidInput("userId and courseId are required")
	}

	required, err := e.videoRepo.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, dependencyUnavailable("list active videos", err)
	}

	completed, err := e.recordRepo.ListCompletedByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, storageFailure("list completed records", err)
	}

	status := evaluateCompletion(courseID, required, completed, e.now())
	return &status, nil
}

// evaluateCompletion is shared by the per-user evaluator and the batch sweep.
// records may contain any status; only completed ones count. A qualifying
// record with no stored timestamp at all contributes now.
func evaluateCompletion(courseID primitive.ObjectID, required []domain.Video, records []domain.ViewingRecord, now time.Time) CompletionStatus {
	done := make(map[primitive.ObjectID]*time.Time, len(records))
	for i := range records {
		rec := &records[i]
		if !rec.IsCompleted() {
			continue
		}
		ts := rec.CompletionTimestamp()
		if ts == nil {
			ts = &now
		}
		// A video should have one record per user, keep the earliest if not.
		if prev, ok := done[rec.VideoID]; ok && prev.Before(*ts) {
			continue
		}
		done[rec.VideoID] = ts
	}

	status := CompletionStatus{
		CourseID:        courseID,
		RequiredVideos:  len(required),
		MissingVideoIDs: []primitive.ObjectID{},
	}
	for _, v := range required {
		ts, ok := done[v.ID]
		if !ok {
			status.MissingVideoIDs = append(status.MissingVideoIDs, v.ID)
			continue
		}
		status.CompletedVideos++
		if status.LatestCompletion == nil || ts.After(*status.LatestCompletion) {
			t := *ts
			status.LatestCompletion = &t
		}
	}

	// An empty course is never complete.
	status.Complete = status.RequiredVideos > 0 && len(status.MissingVideoIDs) == 0
	return status
}
