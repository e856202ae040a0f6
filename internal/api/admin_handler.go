// internal/api/admin_handler.go
package api

import (
	"net/http"

	"github.com/alcyxob/lms-progress/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	sweepService       service.SweepService
	certificateService service.CertificateService
	logger             *zap.Logger
}

func NewAdminHandler(sweepService service.SweepService, certificateService service.CertificateService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sweepService: sweepService, certificateService: certificateService, logger: logger}
}

type SetCertificateActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type SweepResponse struct {
	*service.SweepReport
	Partial bool `json:"partial"`
}

// RunSweep triggers a reconciliation sweep and waits for its report.
// The request timeout bounds it; large catalogs should rely on the scheduler.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	report, err := h.sweepService.RunSweep(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SweepResponse{SweepReport: report, Partial: report.Partial()})
}

// SetCertificateActive revokes (isActive=false) or restores a certificate.
func (h *AdminHandler) SetCertificateActive(c *gin.Context) {
	var req SetCertificateActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cert, err := h.certificateService.SetCertificateActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		respondWithServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MapCertificateToResponse(cert))
}
