package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-events/backend/internal/apperr"
	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/pkg/response"
)

func newRouter(jwtSvc *auth.JWTService, roles ...models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/who", JWT(jwtSvc), RequireRole(roles...), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, actor)
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTSetsActor(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	token, err := svc.Generate(&models.User{ID: 7, Email: "a@example.com", Role: models.RoleAttendee})
	require.NoError(t, err)

	w := do(newRouter(svc, models.RoleAttendee), token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"role":"attendee"}`, w.Body.String())
}

func TestJWTRejectsMissingOrBadToken(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := newRouter(svc, models.RoleAttendee)
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)
}

func TestRequireRoleForbidsOtherRoles(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	token, err := svc.Generate(&models.User{ID: 7, Role: models.RoleAttendee})
	require.NoError(t, err)

	w := do(newRouter(svc, models.RoleAdmin), token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerLevelsAndCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/events/:id", func(c *gin.Context) {
		SetActor(c, models.Actor{ID: 9, Role: models.RoleAttendee})
		response.Error(c, apperr.New(apperr.CodeEventFull, "event is full"))
	})

	for _, path := range []string{"/ok", "/events/3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	fields := entries[1].ContextMap()
	assert.Equal(t, "/events/:id", fields["route"])
	assert.Equal(t, "EVENT_FULL", fields["code"])
	assert.Equal(t, int64(9), fields["user_id"])
}
