package events

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/storage"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Date        string `json:"date" binding:"required"` // YYYY-MM-DD
	Location    string `json:"location" binding:"required"`
	Capacity    int    `json:"capacity" binding:"required"`
}

// UpdateRequest is the body for PATCH /events/:id. Omitted fields are unchanged.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Location    *string `json:"location"`
	Capacity    *int    `json:"capacity"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	svc           *Service
	maxImageBytes int64
	logger        *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(svc *Service, maxImageBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxImageBytes <= 0 {
		maxImageBytes = storage.MaxImageSize
	}
	return &Handler{svc: svc, maxImageBytes: maxImageBytes, logger: logger}
}

// List handles GET /events. The result depends on the caller's role.
func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /events (organizer only).
func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), actor, models.EventFields{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Location:    req.Location,
		Capacity:    req.Capacity,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ev)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Update handles PATCH /events/:id (owning organizer only).
func (h *Handler) Update(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := Patch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
	}
	if req.Date != nil {
		date, err := models.ParseDate(*req.Date)
		if err != nil {
			response.BadRequest(c, "invalid date, expected YYYY-MM-DD")
			return
		}
		p.Date = &date
	}
	ev, err := h.svc.Update(c.Request.Context(), actor, id, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Delete handles DELETE /events/:id (owning organizer only).
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadImage handles POST /events/:id/image (multipart, form field "image").
func (h *Handler) UploadImage(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "missing file (form field: image)")
		return
	}
	if file.Size > h.maxImageBytes {
		response.BadRequest(c, fmt.Sprintf("file size exceeds %dMB limit", h.maxImageBytes/(1024*1024)))
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateImageType(contentType, file.Filename) {
		response.BadRequest(c, "invalid file type: only jpg, png, webp and gif images are allowed")
		return
	}
	if _, ok := storage.AllowedImageTypes[contentType]; !ok {
		contentType = storage.ContentTypeForFilename(file.Filename)
	}
	f, err := file.Open()
	if err != nil {
		response.BadRequest(c, "failed to read file")
		return
	}
	defer f.Close()

	ev, err := h.svc.SetImage(c.Request.Context(), actor, id, Upload{
		Filename:    file.Filename,
		ContentType: contentType,
		Size:        file.Size,
		Body:        f,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Attendees handles GET /events/:id/attendees (owning organizer or admin).
func (h *Handler) Attendees(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	roster, err := h.svc.Roster(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"event_id": id, "count": len(roster), "attendees": roster, "generated_at": time.Now().UTC()})
}
