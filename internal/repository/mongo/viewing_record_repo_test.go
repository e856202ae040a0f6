package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func sampleWrite(percent int) domain.ProgressWrite {
	return domain.ProgressWrite{
		UserID:           primitive.NewObjectID(),
		VideoID:          primitive.NewObjectID(),
		CourseID:         primitive.NewObjectID(),
		CurrentPosition:  float64(percent),
		TotalWatchedTime: float64(percent),
		ProgressPercent:  percent,
		Status:           domain.DeriveStatus(percent),
		At:               time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
	}
}

func recordDoc(w domain.ProgressWrite, status domain.ViewingStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "userId", Value: w.UserID},
		{Key: "videoId", Value: w.VideoID},
		{Key: "courseId", Value: w.CourseID},
		{Key: "currentPosition", Value: w.CurrentPosition},
		{Key: "totalWatchedTime", Value: w.TotalWatchedTime},
		{Key: "progressPercent", Value: w.ProgressPercent},
		{Key: "status", Value: string(status)},
		{Key: "startTime", Value: w.At},
		{Key: "endTime", Value: w.At},
		{Key: "lastUpdated", Value: w.At},
	}
}

func TestViewingRecordRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert returns stored record", func(mt *mtest.T) {
		repo := NewMongoViewingRecordRepository(mt.DB)
		w := sampleWrite(50)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: recordDoc(w, domain.StatusInProgress)}})

		rec, err := repo.Upsert(context.Background(), w)
		require.NoError(mt, err)
		assert.Equal(mt, w.UserID, rec.UserID)
		assert.Equal(mt, 50, rec.ProgressPercent)
		assert.Equal(mt, domain.StatusInProgress, rec.Status)
	})

	mt.Run("upsert retries once after racing insert", func(mt *mtest.T) {
		repo := NewMongoViewingRecordRepository(mt.DB)
		w := sampleWrite(100)
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11000, Name: "DuplicateKey", Message: "E11000 duplicate key error"}),
			bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: recordDoc(w, domain.StatusCompleted)}},
		)

		rec, err := repo.Upsert(context.Background(), w)
		require.NoError(mt, err)
		assert.Equal(mt, domain.StatusCompleted, rec.Status)
	})

	mt.Run("upsert rejects missing ids", func(mt *mtest.T) {
		repo := NewMongoViewingRecordRepository(mt.DB)
		w := sampleWrite(10)
		w.CourseID = primitive.NilObjectID

		_, err := repo.Upsert(context.Background(), w)
		assert.Error(mt, err)
	})

	mt.Run("list completed decodes batch", func(mt *mtest.T) {
		repo := NewMongoViewingRecordRepository(mt.DB)
		w := sampleWrite(100)
		ns := mt.DB.Name() + "." + viewingRecordCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			recordDoc(w, domain.StatusCompleted),
			recordDoc(sampleWrite(97), domain.StatusCompleted),
		))

		recs, err := repo.ListCompletedByUserAndCourse(context.Background(), w.UserID, w.CourseID)
		require.NoError(mt, err)
		assert.Len(mt, recs, 2)
	})
}

func TestProgressPipeline_KeepsCompletedStatus(t *testing.T) {
	w := sampleWrite(10)
	pipeline := progressPipeline(w)
	require.Len(t, pipeline, 2)

	first := pipeline[0][0].Value.(bson.D)
	var status bson.D
	for _, e := range first {
		if e.Key == "status" {
			status = e.Value.(bson.D)
		}
	}
	require.NotNil(t, status)
	cond := status[0].Value.(bson.A)
	assert.Equal(t, domain.StatusCompleted, cond[1])
	assert.Equal(t, domain.StatusInProgress, cond[2])
}

func TestVideoRepository_ListCourseIDsWithActiveVideos(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes distinct ids", func(mt *mtest.T) {
		repo := NewMongoVideoRepository(mt.DB)
		a, b := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "values", Value: bson.A{a, b}}})

		ids, err := repo.ListCourseIDsWithActiveVideos(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, []primitive.ObjectID{a, b}, ids)
	})
}
