// Package handler provides HTTP handlers for statistics endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prmetrics/extractor/internal/statistics/service"
)

// Handler handles HTTP requests for statistics endpoints.
type Handler struct {
	service service.Service
	logger  *zap.SugaredLogger
}

// New creates a new statistics handler instance.
func New(svc service.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// GetOverview handles GET /api/statistics/overview request.
func (h *Handler) GetOverview(c *gin.Context) {
	resp, err := h.service.GetOverview(c.Request.Context())
	if err != nil {
		h.logger.Errorw("error getting overview statistics", "error", err)
		storeUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetRepositories handles GET /api/statistics/repositories request.
func (h *Handler) GetRepositories(c *gin.Context) {
	resp, err := h.service.GetRepositoryStatistics(c.Request.Context())
	if err != nil {
		h.logger.Errorw("error getting repository statistics", "error", err)
		storeUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetVotes handles GET /api/statistics/votes request.
func (h *Handler) GetVotes(c *gin.Context) {
	resp, err := h.service.GetVoteDistribution(c.Request.Context())
	if err != nil {
		h.logger.Errorw("error getting vote distribution", "error", err)
		storeUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetManifest handles GET /api/manifest request.
func (h *Handler) GetManifest(c *gin.Context) {
	manifest, err := h.service.BuildManifest(c.Request.Context())
	if err != nil {
		h.logger.Errorw("error building manifest", "error", err)
		storeUnavailable(c)
		return
	}

	c.JSON(http.StatusOK, manifest)
}
