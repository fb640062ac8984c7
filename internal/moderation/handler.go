package moderation

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/pkg/response"
)

// RejectRequest is the body for POST /admin/events/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Handler handles moderation HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a moderation handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Queue handles GET /admin/events?state=pending|approved|rejected|all.
func (h *Handler) Queue(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	q, err := h.svc.ListQueue(c.Request.Context(), actor, c.Query("state"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, q)
}

// Approve handles POST /admin/events/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	ev, err := h.svc.Approve(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Reject handles POST /admin/events/:id/reject. The reason is optional.
func (h *Handler) Reject(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	ev, err := h.svc.Reject(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}
