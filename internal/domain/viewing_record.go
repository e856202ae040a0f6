package domain

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ViewingStatus is the derived per-video completion state.
type ViewingStatus string

const (
	StatusNotStarted ViewingStatus = "not_started"
	StatusInProgress ViewingStatus = "in_progress"
	StatusCompleted  ViewingStatus = "completed"
)

// CompletionThresholdPercent is the percent at which a video counts as watched.
// Players rarely report the exact end-of-stream position, so 100 is never required.
const CompletionThresholdPercent = 95

// ViewingRecord tracks how far one user got through one video.
// Unique per (UserID, VideoID).
type ViewingRecord struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	VideoID          primitive.ObjectID `bson:"videoId" json:"videoId"`
	CourseID         primitive.ObjectID `bson:"courseId" json:"courseId"` // Denormalized for per-course queries
	CurrentPosition  float64            `bson:"currentPosition" json:"currentPosition"`
	TotalWatchedTime float64            `bson:"totalWatchedTime" json:"totalWatchedTime"` // Never decreases
	ProgressPercent  int                `bson:"progressPercent" json:"progressPercent"`
	Status           ViewingStatus      `bson:"status" json:"status"`
	StartTime        *time.Time         `bson:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime          *time.Time         `bson:"endTime,omitempty" json:"endTime,omitempty"`
	LastUpdated      time.Time          `bson:"lastUpdated" json:"lastUpdated"`
	CompletedAt      *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// ProgressUpdate is one playback telemetry event as sent by a client.
// ProgressPercent and VideoDuration are optional.
type ProgressUpdate struct {
	UserID           primitive.ObjectID
	VideoID          primitive.ObjectID
	CourseID         primitive.ObjectID
	CurrentPosition  float64
	TotalWatchedTime float64
	ProgressPercent  *int
	VideoDuration    *float64
}

// ProgressWrite is a validated update with percent and status resolved,
// ready to be upserted.
type ProgressWrite struct {
	UserID           primitive.ObjectID
	VideoID          primitive.ObjectID
	CourseID         primitive.ObjectID
	CurrentPosition  float64
	TotalWatchedTime float64
	ProgressPercent  int
	Status           ViewingStatus
	At               time.Time
}

// ComputePercent converts a playback position into a 0..100 percent.
func ComputePercent(position, duration float64) int {
	if duration <= 0 || position <= 0 {
		return 0
	}
	// Clamp before converting; an oversized ratio does not fit in an int.
	ratio := position / duration * 100
	if ratio >= 100 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return 100
	}
	return int(math.Round(ratio))
}

// DeriveStatus maps a percent onto a ViewingStatus.
func DeriveStatus(percent int) ViewingStatus {
	switch {
	case percent >= CompletionThresholdPercent:
		return StatusCompleted
	case percent <= 0:
		return StatusNotStarted
	default:
		return StatusInProgress
	}
}

// NotStartedRecord is the lazily-materialized view of a record that has no
// telemetry yet.
func NotStartedRecord(userID, videoID, courseID primitive.ObjectID) *ViewingRecord {
	return &ViewingRecord{
		UserID:   userID,
		VideoID:  videoID,
		CourseID: courseID,
		Status:   StatusNotStarted,
	}
}

// MergeProgress applies a write on top of the current record (nil when the
// record does not exist yet) and returns the resulting state.
//
// Position, percent and timestamps are last-write-wins. TotalWatchedTime only
// grows. StartTime is set once. A completed record stays completed and keeps
// its first CompletedAt; any other record carries no CompletedAt. The Mongo
// repository performs the same merge server-side in a single pipeline update.
func MergeProgress(current *ViewingRecord, w ProgressWrite) ViewingRecord {
	at := w.At
	next := ViewingRecord{
		UserID:   w.UserID,
		VideoID:  w.VideoID,
		CourseID: w.CourseID,
	}
	if current != nil {
		next = *current
		next.CourseID = w.CourseID
	}

	next.CurrentPosition = w.CurrentPosition
	next.ProgressPercent = w.ProgressPercent
	if w.TotalWatchedTime > next.TotalWatchedTime {
		next.TotalWatchedTime = w.TotalWatchedTime
	}
	if next.StartTime == nil {
		next.StartTime = &at
	}
	next.EndTime = &at
	next.LastUpdated = at

	if next.Status != StatusCompleted {
		next.Status = w.Status
	}
	switch {
	case next.Status != StatusCompleted:
		next.CompletedAt = nil
	case next.CompletedAt == nil:
		next.CompletedAt = &at
	}
	return next
}

func (r *ViewingRecord) IsCompleted() bool {
	return r.Status == StatusCompleted
}

// CompletionTimestamp is CompletedAt, or LastUpdated for legacy records that
// never stored it. Nil when neither is known.
func (r *ViewingRecord) CompletionTimestamp() *time.Time {
	if r.CompletedAt != nil && !r.CompletedAt.IsZero() {
		t := *r.CompletedAt
		return &t
	}
	if !r.LastUpdated.IsZero() {
		t := r.LastUpdated
		return &t
	}
	return nil
}
