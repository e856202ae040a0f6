// internal/api/progress_handler.go
package api

import (
	"net/http"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ProgressHandler struct {
	progressService service.ProgressService
	evaluator       service.CompletionEvaluator
	logger          *zap.Logger
}

func NewProgressHandler(progressService service.ProgressService, evaluator service.CompletionEvaluator, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{progressService: progressService, evaluator: evaluator, logger: logger}
}

// --- DTOs ---

// RecordProgressRequest is one player telemetry event. The user comes from the token.
type RecordProgressRequest struct {
	VideoID          string   `json:"videoId" binding:"required"`
	CourseID         string   `json:"courseId" binding:"required"`
	CurrentPosition  float64  `json:"currentPosition"`
	TotalWatchedTime float64  `json:"totalWatchedTime"`
	ProgressPercent  *int     `json:"progressPercent,omitempty"`
	VideoDuration    *float64 `json:"videoDuration,omitempty"`
}

type ProgressResponse struct {
	VideoID          string               `json:"videoId"`
	CourseID         string               `json:"courseId,omitempty"`
	CurrentPosition  float64              `json:"currentPosition"`
	TotalWatchedTime float64              `json:"totalWatchedTime"`
	ProgressPercent  int                  `json:"progressPercent"`
	Status           domain.ViewingStatus `json:"status"`
	StartTime        *time.Time           `json:"startTime,omitempty"`
	EndTime          *time.Time           `json:"endTime,omitempty"`
	LastUpdated      *time.Time           `json:"lastUpdated,omitempty"`
	CompletedAt      *time.Time           `json:"completedAt,omitempty"`
}

type CourseProgressResponse struct {
	CourseID        string             `json:"courseId"`
	Complete        bool               `json:"complete"`
	RequiredVideos  int                `json:"requiredVideos"`
	CompletedVideos int                `json:"completedVideos"`
	MissingVideoIDs []string           `json:"missingVideoIds"`
	Videos          []ProgressResponse `json:"videos"`
}

type CompletionResponse struct {
	CourseID         string     `json:"courseId"`
	Complete         bool       `json:"complete"`
	RequiredVideos   int        `json:"requiredVideos"`
	CompletedVideos  int        `json:"completedVideos"`
	LatestCompletion *time.Time `json:"latestCompletion,omitempty"`
}

func MapRecordToResponse(r *domain.ViewingRecord) ProgressResponse {
	resp := ProgressResponse{
		VideoID:          r.VideoID.Hex(),
		CurrentPosition:  r.CurrentPosition,
		TotalWatchedTime: r.TotalWatchedTime,
		ProgressPercent:  r.ProgressPercent,
		Status:           r.Status,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		CompletedAt:      r.CompletedAt,
	}
	if !r.CourseID.IsZero() {
		resp.CourseID = r.CourseID.Hex()
	}
	if !r.LastUpdated.IsZero() {
		t := r.LastUpdated
		resp.LastUpdated = &t
	}
	return resp
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

// --- Handler Methods ---

// RecordProgress godoc
// @Summary Report playback progress
// @Tags Progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param progress body RecordProgressRequest true "Playback telemetry"
// @Success 200 {object} ProgressResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 429 {object} gin.H "Rate limited"
// @Router /progress [post]
func (h *ProgressHandler) RecordProgress(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}

	var req RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	videoID, err := primitive.ObjectIDFromHex(req.VideoID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid video ID format.")
		return
	}
	courseID, err := primitive.ObjectIDFromHex(req.CourseID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid course ID format.")
		return
	}

	record, err := h.progressService.RecordProgress(c.Request.Context(), domain.ProgressUpdate{
		UserID:           userID,
		VideoID:          videoID,
		CourseID:         courseID,
		CurrentPosition:  req.CurrentPosition,
		TotalWatchedTime: req.TotalWatchedTime,
		ProgressPercent:  req.ProgressPercent,
		VideoDuration:    req.VideoDuration,
	})
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapRecordToResponse(record))
}

// GetVideoProgress returns a not_started view when nothing was reported yet.
// An optional courseId query parameter is echoed into that view.
func (h *ProgressHandler) GetVideoProgress(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}
	videoID, err := primitive.ObjectIDFromHex(c.Param("videoId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid video ID format.")
		return
	}

	record, err := h.progressService.GetProgress(c.Request.Context(), userID, videoID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	if record == nil {
		courseID, _ := primitive.ObjectIDFromHex(c.Query("courseId")) // Nil when absent
		record = domain.NotStartedRecord(userID, videoID, courseID)
	}
	c.JSON(http.StatusOK, MapRecordToResponse(record))
}

func (h *ProgressHandler) GetCourseProgress(c *gin.Context) {
	userID, courseID, ok := userAndCourse(c)
	if !ok {
		return
	}

	progress, err := h.progressService.ListCourseProgress(c.Request.Context(), userID, courseID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}

	resp := CourseProgressResponse{
		CourseID:        courseID.Hex(),
		Complete:        progress.Complete,
		RequiredVideos:  progress.RequiredVideos,
		CompletedVideos: progress.CompletedVideos,
		MissingVideoIDs: hexIDs(progress.MissingVideoIDs),
		Videos:          make([]ProgressResponse, 0, len(progress.Records)),
	}
	for i := range progress.Records {
		resp.Videos = append(resp.Videos, MapRecordToResponse(&progress.Records[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProgressHandler) GetCourseCompletion(c *gin.Context) {
	userID, courseID, ok := userAndCourse(c)
	if !ok {
		return
	}

	status, err := h.evaluator.Evaluate(c.Request.Context(), userID, courseID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, CompletionResponse{
		CourseID:         courseID.Hex(),
		Complete:         status.Complete,
		RequiredVideos:   status.RequiredVideos,
		CompletedVideos:  status.CompletedVideos,
		LatestCompletion: status.LatestCompletion,
	})
}

// userAndCourse reads the caller and the :courseId param, aborting on failure.
func userAndCourse(c *gin.Context) (primitive.ObjectID, primitive.ObjectID, bool) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	courseID, err := primitive.ObjectIDFromHex(c.Param("courseId"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid course ID format.")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	return userID, courseID, true
}
