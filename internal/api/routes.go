package api

import (
	"net/http"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain" // Needed for RoleMiddleware
	"github.com/alcyxob/lms-progress/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps carries everything SetupRoutes wires into handlers.
type RouterDeps struct {
	JWTSecret         string
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	SweepTimeout      time.Duration // Admin-triggered sweeps get the scheduler's budget
	ProgressPerMinute int

	ProgressService    service.ProgressService
	Evaluator          service.CompletionEvaluator
	CertificateService service.CertificateService
	SweepService       service.SweepService
	RateLimiter        *RateLimiter // nil disables rate limiting
	Logger             *zap.Logger
}

func SetupRoutes(router *gin.Engine, deps RouterDeps) {
	router.Use(RequestLogger(deps.Logger))
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	progressHandler := NewProgressHandler(deps.ProgressService, deps.Evaluator, deps.Logger)
	certificateHandler := NewCertificateHandler(deps.CertificateService, deps.Logger)
	adminHandler := NewAdminHandler(deps.SweepService, deps.CertificateService, deps.Logger)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(AuthMiddleware(deps.JWTSecret))

	learner := apiV1.Group("")
	learner.Use(RequestTimeout(deps.RequestTimeout))
	{
		// --- Progress Routes ---
		learner.POST("/progress", deps.RateLimiter.Limit("progress", deps.ProgressPerMinute, time.Minute), progressHandler.RecordProgress)
		learner.GET("/progress/videos/:videoId", progressHandler.GetVideoProgress)

		// --- Course Routes ---
		courseGroup := learner.Group("/courses/:courseId")
		{
			courseGroup.GET("/progress", progressHandler.GetCourseProgress)
			courseGroup.GET("/completion", progressHandler.GetCourseCompletion)
			courseGroup.POST("/certificate", certificateHandler.IssueCertificate)
		}

		// --- Certificate Routes ---
		certGroup := learner.Group("/certificates")
		{
			certGroup.GET("", certificateHandler.ListMyCertificates)
			certGroup.GET("/:id", certificateHandler.GetCertificate)
			certGroup.GET("/:id/document", certificateHandler.GetCertificateDocument)
		}
	}

	// --- Admin Routes ---
	adminGroup := apiV1.Group("/admin")
	adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
	{
		adminGroup.POST("/sweeps", RequestTimeout(deps.SweepTimeout), adminHandler.RunSweep)
		adminGroup.PATCH("/certificates/:id", RequestTimeout(deps.RequestTimeout), adminHandler.SetCertificateActive)
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}
