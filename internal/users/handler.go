package users

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

// RoleRequest is the body for PATCH /admin/users/:id/role.
type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// Handler handles the admin user endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a user directory handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /admin/users?role=organizer|attendee|admin|all.
func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), actor, c.Query("role"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ChangeRole handles PATCH /admin/users/:id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	id, ok := middleware.PathID(c, "id")
	if !ok {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u, err := h.svc.ChangeRole(c.Request.Context(), actor, id, models.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

// Delete handles DELETE /admin/users/:id.
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
