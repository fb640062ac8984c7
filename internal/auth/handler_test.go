package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store/sqlite"
)

func setup(t *testing.T) (*gin.Engine, *Repository) {
	t.Helper()
	st, err := sqlite.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	repo := NewRepository(st)
	h := NewHandler(repo, NewJWTService("secret", 1), nil)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	return r, repo
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSignupThenLogin(t *testing.T) {
	r, _ := setup(t)

	w := post(r, "/auth/signup", SignupRequest{Name: "Olga", Email: "Olga@Example.com", Password: "correct horse", Role: "organizer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = post(r, "/auth/login", LoginRequest{Email: "olga@example.com", Password: "correct horse"})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.Token)
	assert.Equal(t, models.RoleOrganizer, body.Data.User.Role)

	w = post(r, "/auth/login", LoginRequest{Email: "olga@example.com", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignupRejectsAdminRoleAndDuplicates(t *testing.T) {
	r, _ := setup(t)

	w := post(r, "/auth/signup", SignupRequest{Name: "Eve", Email: "eve@example.com", Password: "12345678", Role: "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(r, "/auth/signup", SignupRequest{Name: "Ann", Email: "ann@example.com", Password: "12345678"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = post(r, "/auth/signup", SignupRequest{Name: "Ann", Email: "ann@example.com", Password: "12345678"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	created, err := repo.EnsureAdmin(ctx, "Admin", "admin@example.com", "supersecret")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureAdmin(ctx, "Admin", "admin@example.com", "supersecret")
	require.NoError(t, err)
	assert.False(t, created)

	u, err := repo.Authenticate(ctx, "admin@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
}
