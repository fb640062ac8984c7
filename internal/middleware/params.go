package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

// PathID parses a positive integer path parameter. On failure it writes 400 and returns false.
func PathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// MustActor returns the authenticated caller. On failure it writes 401 and returns false.
func MustActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
	}
	return actor, ok
}
