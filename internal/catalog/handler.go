package catalog

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/pkg/response"
)

// Handler exposes the public reference data endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the catalog routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/categories", h.ListCategories)
	r.GET("/cities", h.ListCities)
}

// ListCategories returns all activity categories.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.repo.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.Error("list categories", zap.Error(err))
		response.Internal(c, "failed to load categories")
		return
	}
	response.OK(c, categories)
}

// ListCities returns all cities with their regions.
func (h *Handler) ListCities(c *gin.Context) {
	cities, err := h.repo.ListCities(c.Request.Context())
	if err != nil {
		h.logger.Error("list cities", zap.Error(err))
		response.Internal(c, "failed to load cities")
		return
	}
	response.OK(c, cities)
}
