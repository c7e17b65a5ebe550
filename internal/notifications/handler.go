package notifications

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/internal/models"
	"github.com/good-deed-map/backend/pkg/response"
)

// lister reads recorded notifications. Satisfied by Repository.
type lister interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.Notification, error)
}

// Handler exposes the notification outbox to administrators.
type Handler struct {
	repo   lister
	logger *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo lister, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the admin notification routes.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/organizations/:id/notifications", h.ListForOrganization)
}

// ListForOrganization returns an organization's recorded notifications,
// newest first, for moderation audits.
func (h *Handler) ListForOrganization(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	list, err := h.repo.ListByOrganization(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list notifications", zap.Error(err))
		response.Internal(c, "failed to load notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	response.OK(c, list)
}
