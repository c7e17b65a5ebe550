package moderation

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/internal/middleware"
	"github.com/good-deed-map/backend/internal/models"
	"github.com/good-deed-map/backend/pkg/response"
)

// Handler exposes the application and moderation endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a moderation handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the authenticated and admin routes.
func (h *Handler) RegisterRoutes(authed, admin *gin.RouterGroup) {
	authed.POST("/organizations", h.SubmitCreate)
	authed.PUT("/organizations/:id", h.SubmitEdit)
	authed.POST("/organizations/:id/transfer", h.SubmitTransfer)
	authed.GET("/organizations/:id/pending-version", h.GetPendingVersion)
	authed.GET("/my/requests", h.MyRequests)

	admin.GET("/moderation/queue", h.Queue)
	admin.GET("/organizations/:id/versions", h.ListVersions)
	admin.POST("/versions/:id/approve", h.Approve)
	admin.POST("/versions/:id/reject", h.Reject)
}

// SubmitCreate stages a new organization application.
func (h *Handler) SubmitCreate(c *gin.Context) {
	var snap Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	v, err := h.service.SubmitCreate(c.Request.Context(), currentUserID(c), snap)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, v)
}

// SubmitEdit stages an edit to the caller's organization.
func (h *Handler) SubmitEdit(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	var snap Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	v, err := h.service.SubmitEdit(c.Request.Context(), orgID, currentUserID(c), snap)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, v)
}

type transferRequest struct {
	NewOwnerEmail string `json:"new_owner_email" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
}

// SubmitTransfer stages an ownership-transfer request.
func (h *Handler) SubmitTransfer(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "new_owner_email and reason are required")
		return
	}
	v, err := h.service.SubmitTransfer(c.Request.Context(), orgID, currentUserID(c), req.NewOwnerEmail, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, v)
}

// GetPendingVersion returns the organization's version awaiting review,
// or null when there is none.
func (h *Handler) GetPendingVersion(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	v, err := h.service.GetPendingVersion(c.Request.Context(), orgID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, v)
}

// MyRequests returns the caller's applications grouped by outcome.
func (h *Handler) MyRequests(c *gin.Context) {
	reqs, err := h.service.RequestsFor(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, reqs)
}

// Queue returns the administrator review queue.
func (h *Handler) Queue(c *gin.Context) {
	list, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.OrganizationVersion{}
	}
	response.OK(c, list)
}

// ListVersions returns an organization's versions filtered by status.
func (h *Handler) ListVersions(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	filter := Filter(c.DefaultQuery("filter", string(FilterPending)))
	list, err := h.service.ListVersions(c.Request.Context(), orgID, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.OrganizationVersion{}
	}
	response.OK(c, list)
}

// Approve applies a pending version.
func (h *Handler) Approve(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid version id")
		return
	}
	dec, err := h.service.Approve(c.Request.Context(), versionID, currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, dec)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject marks a pending version rejected.
func (h *Handler) Reject(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid version id")
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	dec, err := h.service.Reject(c.Request.Context(), versionID, currentUserID(c), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, dec)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var conflict *ConflictError
	var invalid *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "not found")
	case errors.As(err, &conflict):
		response.Conflict(c, conflict.Reason)
	case errors.As(err, &invalid):
		response.BadRequest(c, invalid.Error())
	default:
		h.logger.Error("moderation request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func currentUserID(c *gin.Context) uuid.UUID {
	val, _ := c.Get(middleware.ContextUserID)
	id, _ := val.(uuid.UUID)
	return id
}
