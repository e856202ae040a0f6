// internal/api/certificate_handler.go
package api

import (
	"net/http"
	"time"

	"github.com/alcyxob/lms-progress/internal/domain"
	"github.com/alcyxob/lms-progress/internal/service"
	"github.com/alcyxob/lms-progress/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// documentURLExpiry matches the presign lifetime used by the certificate service.
const documentURLExpiry = storage.DefaultPresignedURLExpiry

type CertificateHandler struct {
	certificateService service.CertificateService
	logger             *zap.Logger
}

func NewCertificateHandler(certificateService service.CertificateService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService, logger: logger}
}

// --- DTOs ---

type CertificateResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CourseID       string    `json:"courseId"`
	UserName       string    `json:"userName"`
	CourseTitle    string    `json:"courseTitle"`
	CompletionDate time.Time `json:"completionDate"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

type IssueCertificateResponse struct {
	Created     bool                `json:"created"`
	Certificate CertificateResponse `json:"certificate"`
}

type DocumentResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresInSeconds"`
}

func MapCertificateToResponse(cert *domain.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:             cert.ID,
		UserID:         cert.UserID.Hex(),
		CourseID:       cert.CourseID.Hex(),
		UserName:       cert.UserName,
		CourseTitle:    cert.CourseTitle,
		CompletionDate: cert.CompletionDate,
		IsActive:       cert.IsActive,
		CreatedAt:      cert.CreatedAt,
	}
}

func MapCertificatesToResponse(certs []domain.Certificate) []CertificateResponse {
	res := make([]CertificateResponse, len(certs))
	for i := range certs {
		res[i] = MapCertificateToResponse(&certs[i])
	}
	return res
}

// --- Handler Methods ---

// IssueCertificate godoc
// @Summary Claim the certificate for a completed course
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ObjectID Hex"
// @Success 201 {object} IssueCertificateResponse "Newly issued"
// @Success 200 {object} IssueCertificateResponse "Already issued"
// @Failure 409 {object} gin.H "Course not complete"
// @Failure 503 {object} gin.H "User or course lookup unavailable"
// @Router /courses/{courseId}/certificate [post]
func (h *CertificateHandler) IssueCertificate(c *gin.Context) {
	userID, courseID, ok := userAndCourse(c)
	if !ok {
		return
	}

	result, err := h.certificateService.IssueIfEligible(c.Request.Context(), userID, courseID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, IssueCertificateResponse{
		Created:     result.Created,
		Certificate: MapCertificateToResponse(result.Certificate),
	})
}

func (h *CertificateHandler) ListMyCertificates(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return
	}

	certs, err := h.certificateService.ListUserCertificates(c.Request.Context(), userID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapCertificatesToResponse(certs))
}

func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	cert, ok := h.loadOwnedCertificate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, MapCertificateToResponse(cert))
}

// GetCertificateDocument returns a short-lived link to the printable certificate.
func (h *CertificateHandler) GetCertificateDocument(c *gin.Context) {
	cert, ok := h.loadOwnedCertificate(c)
	if !ok {
		return
	}

	url, err := h.certificateService.DocumentURL(c.Request.Context(), cert.ID)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, DocumentResponse{URL: url, ExpiresIn: int(documentURLExpiry.Seconds())})
}

// loadOwnedCertificate fetches :id and checks the caller owns it or is an admin.
func (h *CertificateHandler) loadOwnedCertificate(c *gin.Context) (*domain.Certificate, bool) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return nil, false
	}
	role, _ := getUserRoleFromContext(c)

	cert, err := h.certificateService.GetCertificate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return nil, false
	}
	if cert.UserID != userID && role != domain.RoleAdmin {
		abortWithError(c, http.StatusForbidden, "Access denied to this certificate.")
		return nil, false
	}
	return cert, true
}
