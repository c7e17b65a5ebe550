package organizations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-deed-map/backend/internal/middleware"
	"github.com/good-deed-map/backend/pkg/response"
	"github.com/good-deed-map/backend/pkg/storage"
)

// Handler exposes the public directory and logo endpoints.
type Handler struct {
	repo   *Repository
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a directory handler.
func NewHandler(repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// RegisterRoutes mounts the public and authenticated directory routes.
func (h *Handler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.GET("/organizations", h.List)
	public.GET("/organizations/:id", h.Get)

	authed.GET("/my/organization", h.MyOrganization)
	authed.DELETE("/my/organization", h.DeactivateMyOrganization)
	authed.POST("/logos/upload-url", h.LogoUploadURL)
	authed.POST("/logos/upload", h.LogoUpload)
}

// List returns approved, active organizations for the public map and
// directory pages. Supports city, category and free-text filters.
func (h *Handler) List(c *gin.Context) {
	var filter ListFilter
	if raw := c.Query("city_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid city_id")
			return
		}
		filter.CityID = &id
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	filter.Search = c.Query("search")

	list, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list organizations", zap.Error(err))
		response.Internal(c, "failed to load organizations")
		return
	}
	for i := range list {
		h.attachLogoURL(c, &list[i])
	}
	if list == nil {
		list = []DirectoryEntry{}
	}
	response.OK(c, list)
}

// Get returns a single organization. Unapproved or deactivated records
// are hidden from the public; their owner reads them via /my/organization.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	entry, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !entry.IsApproved || !entry.IsActive {
		response.NotFound(c, "organization not found")
		return
	}
	h.attachLogoURL(c, entry)
	response.OK(c, entry)
}

// MyOrganization returns the caller's organization, approved or not.
func (h *Handler) MyOrganization(c *gin.Context) {
	entry, err := h.repo.GetByOwner(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.attachLogoURL(c, entry)
	response.OK(c, entry)
}

// DeactivateMyOrganization soft-deletes the caller's organization,
// removing it from the directory and freeing the caller to register a
// new one.
func (h *Handler) DeactivateMyOrganization(c *gin.Context) {
	entry, err := h.repo.GetByOwner(c.Request.Context(), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.repo.Deactivate(c.Request.Context(), entry.ID); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// LogoUploadRequest is the body for POST /logos/upload-url.
type LogoUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// LogoUploadResponse carries the presigned PUT URL and the key the client
// submits back in its application snapshot.
type LogoUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in_seconds"`
	MaxBytes  int64  `json:"max_bytes"`
}

// LogoUploadURL issues a presigned upload URL for an organization logo.
// The returned key goes into the application snapshot and reaches the
// live record only through an approval.
func (h *Handler) LogoUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "logo storage is not configured")
		return
	}
	var req LogoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename is required")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	if !storage.ValidateLogoFileType(contentType, req.Filename) {
		response.BadRequest(c, "logo must be a JPEG, PNG, WebP, or SVG image")
		return
	}

	key := storage.LogoKey(callerID(c).String(), req.Filename)
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), key, contentType, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign logo upload", zap.Error(err))
		response.Internal(c, "failed to create upload URL")
		return
	}
	response.OK(c, LogoUploadResponse{
		UploadURL: url,
		Key:       key,
		ExpiresIn: int(h.s3.PresignExpire().Seconds()),
		MaxBytes:  storage.MaxLogoFileSize,
	})
}

// LogoUpload accepts a logo as multipart form data and stores it
// server-side, for clients that cannot PUT to a presigned URL directly.
func (h *Handler) LogoUpload(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "logo storage is not configured")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if header.Size > storage.MaxLogoFileSize {
		response.BadRequest(c, "logo exceeds the 5MB size limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(header.Filename)
	}
	if !storage.ValidateLogoFileType(contentType, header.Filename) {
		response.BadRequest(c, "logo must be a JPEG, PNG, WebP, or SVG image")
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("open logo upload", zap.Error(err))
		response.Internal(c, "failed to read upload")
		return
	}
	defer file.Close()

	key := storage.LogoKey(callerID(c).String(), header.Filename)
	url, err := h.s3.Upload(c.Request.Context(), key, contentType, file, header.Size)
	if err != nil {
		h.logger.Error("upload logo", zap.Error(err))
		response.Internal(c, "failed to store logo")
		return
	}
	response.Created(c, gin.H{"key": key, "url": url})
}

func (h *Handler) attachLogoURL(c *gin.Context, entry *DirectoryEntry) {
	if entry.LogoKey == "" || h.s3 == nil {
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), entry.LogoKey, h.s3.PresignExpire())
	if err != nil {
		h.logger.Warn("presign logo download", zap.String("key", entry.LogoKey), zap.Error(err))
		return
	}
	entry.LogoURL = url
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "organization not found")
		return
	}
	h.logger.Error("directory request failed", zap.Error(err))
	response.Internal(c, "internal error")
}

func callerID(c *gin.Context) uuid.UUID {
	val, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, _ := val.(uuid.UUID)
	return id
}
