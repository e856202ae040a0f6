package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRecordProgress_PercentFromDuration(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "ada@example.com")
	courseID, videos := env.addCourse("Go Basics", 2)

	duration := 600.0
	rec, err := env.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:           userID,
		VideoID:          videos[0].ID,
		CourseID:         courseID,
		CurrentPosition:  300,
		TotalWatchedTime: 310,
		VideoDuration:    &duration,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, rec.ProgressPercent)
	assert.Equal(t, domain.StatusInProgress, rec.Status)
	assert.Nil(t, rec.CompletedAt)
	assert.Equal(t, 0, env.certs.count())
}

func TestRecordProgress_OversizedPositionIsClampedToFull(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "ada@example.com")
	courseID, videos := env.addCourse("Go Basics", 2)

	duration := 1.0
	rec, err := env.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:          userID,
		VideoID:         videos[0].ID,
		CourseID:        courseID,
		CurrentPosition: 1e20,
		VideoDuration:   &duration,
	})
	require.NoError(t, err)

	assert.Equal(t, 100, rec.ProgressPercent)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
}

func TestRecordProgress_CatalogDurationFallback(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	courseID, videos := env.addCourse("Go Basics", 2)

	rec, err := env.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:          userID,
		VideoID:         videos[0].ID,
		CourseID:        courseID,
		CurrentPosition: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, rec.ProgressPercent)

	_, err = env.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:          userID,
		VideoID:         primitive.NewObjectID(),
		CourseID:        courseID,
		CurrentPosition: 25,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	otherCourse, _ := env.addCourse("Other", 1)
	_, err = env.progress.RecordProgress(context.Background(), domain.ProgressUpdate{
		UserID:          userID,
		VideoID:         videos[1].ID,
		CourseID:        otherCourse,
		CurrentPosition: 25,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecordProgress_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	courseID, videos := env.addCourse("Go Basics", 1)
	videoID := videos[0].ID
	zero, negative := 0.0, -1.0

	tests := []struct {
		name   string
		update domain.ProgressUpdate
	}{
		{"missing user", domain.ProgressUpdate{VideoID: videoID, CourseID: courseID, ProgressPercent: percent(10)}},
		{"missing video", domain.ProgressUpdate{UserID: userID, CourseID: courseID, ProgressPercent: percent(10)}},
		{"missing course", domain.ProgressUpdate{UserID: userID, VideoID: videoID, ProgressPercent: percent(10)}},
		{"negative position", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, CurrentPosition: -1, ProgressPercent: percent(10)}},
		{"negative watched", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, TotalWatchedTime: -3, ProgressPercent: percent(10)}},
		{"NaN position", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, CurrentPosition: math.NaN(), ProgressPercent: percent(10)}},
		{"percent above 100", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, ProgressPercent: percent(101)}},
		{"percent below 0", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, ProgressPercent: percent(-1)}},
		{"zero duration", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, CurrentPosition: 5, VideoDuration: &zero}},
		{"negative duration", domain.ProgressUpdate{UserID: userID, VideoID: videoID, CourseID: courseID, CurrentPosition: 5, VideoDuration: &negative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.progress.RecordProgress(context.Background(), tt.update)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	env.records.mu.Lock()
	defer env.records.mu.Unlock()
	assert.Empty(t, env.records.records, "rejected updates must not write")
}

// Single-video course: crossing the threshold issues the certificate inline.
func TestRecordProgress_CompletionIssuesCertificate(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada Lovelace", "ada@example.com")
	courseID, videos := env.addCourse("Intro", 1)

	rec, err := env.watch(userID, videos[0], 96)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, env.clock.Now(), *rec.CompletedAt)

	cert, err := env.certs.GetByUserAndCourse(context.Background(), userID, courseID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", cert.UserName)
	assert.Equal(t, "Intro", cert.CourseTitle)
	assert.True(t, cert.IsActive)
	assert.Equal(t, *rec.CompletedAt, cert.CompletionDate)
	assert.Regexp(t, `^CERT-[0-9A-Z]+-[0-9A-F]{12}$`, cert.ID)
}

func TestRecordProgress_CompletionIsMonotonic(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	_, videos := env.addCourse("Intro", 2)

	first, err := env.watch(userID, videos[0], 97)
	require.NoError(t, err)
	completedAt := *first.CompletedAt

	env.clock.Advance(time.Hour)
	rec, err := env.watch(userID, videos[0], 10)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, completedAt, *rec.CompletedAt)
	assert.Equal(t, 10, rec.ProgressPercent, "percent follows the latest report")
	assert.Equal(t, float64(97), rec.TotalWatchedTime)
	assert.Equal(t, env.clock.Now(), rec.LastUpdated)
}

func TestRecordProgress_TriggerFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	courseID, videos := env.addCourse("Intro", 1)
	env.users.err = errBoom

	rec, err := env.watch(userID, videos[0], 100)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, 0, env.certs.count())

	// The sweep settles it once the user lookup recovers.
	env.users.err = nil
	report, err := env.sweep.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Issued)
	_, err = env.certs.GetByUserAndCourse(context.Background(), userID, courseID)
	assert.NoError(t, err)
}

func TestRecordProgress_StorageFailure(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	_, videos := env.addCourse("Intro", 1)
	env.records.upsertErr = errBoom

	_, err := env.watch(userID, videos[0], 50)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, errBoom)
}

func TestGetProgress(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	_, videos := env.addCourse("Intro", 1)

	rec, err := env.progress.GetProgress(context.Background(), userID, videos[0].ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = env.watch(userID, videos[0], 40)
	require.NoError(t, err)

	rec, err = env.progress.GetProgress(context.Background(), userID, videos[0].ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 40, rec.ProgressPercent)

	_, err = env.progress.GetProgress(context.Background(), primitive.NilObjectID, videos[0].ID)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListCourseProgress(t *testing.T) {
	env := newTestEnv()
	userID := env.addUser("Ada", "")
	courseID, videos := env.addCourse("Intro", 3)

	_, err := env.watch(userID, videos[0], 100)
	require.NoError(t, err)
	_, err = env.watch(userID, videos[1], 30)
	require.NoError(t, err)

	progress, err := env.progress.ListCourseProgress(context.Background(), userID, courseID)
	require.NoError(t, err)

	assert.Len(t, progress.Records, 2)
	assert.Equal(t, 3, progress.RequiredVideos)
	assert.Equal(t, 1, progress.CompletedVideos)
	assert.False(t, progress.Complete)
	assert.ElementsMatch(t, []primitive.ObjectID{videos[1].ID, videos[2].ID}, progress.MissingVideoIDs)
}
