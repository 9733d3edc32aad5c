// Package router provides statistics module routes registration.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prmetrics/extractor/internal/statistics/handler"
	"github.com/prmetrics/extractor/internal/statistics/repository"
	"github.com/prmetrics/extractor/internal/statistics/service"
)

// RegisterRoutes registers statistics module routes.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, logger *zap.SugaredLogger) {
	repo := repository.New(db, logger)
	svc := service.New(repo, logger)
	h := handler.New(svc, logger)

	r.GET("/api/statistics/overview", h.GetOverview)
	r.GET("/api/statistics/repositories", h.GetRepositories)
	r.GET("/api/statistics/votes", h.GetVotes)
	r.GET("/api/manifest", h.GetManifest)
}
