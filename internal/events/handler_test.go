package events

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/store/storetest"
)

func router(f *fixture, actor models.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, 1024, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetActor(c, actor)
		c.Next()
	})
	r.POST("/events", h.Create)
	r.GET("/events/:id", h.Get)
	r.PATCH("/events/:id", h.Update)
	r.POST("/events/:id/image", h.UploadImage)
	return r
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func send(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func upload(r http.Handler, path, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(hdr)
	part.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newFixture(t)
	r := router(f, f.org)

	w := send(r, http.MethodPost, "/events", CreateRequest{
		Title: "Meetup", Description: "d", Date: "2001-02-30", Location: "l", Capacity: 5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodPost, "/events", CreateRequest{
		Title: "Meetup", Description: "d", Date: storetest.Day(2).Format(models.DateLayout), Location: "l", Capacity: 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body struct {
		Data models.EventView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.StatePending, body.Data.State)

	att := storetest.User(t, f.st, "att@example.com", models.RoleAttendee)
	w = send(router(f, att), http.MethodGet, "/events/"+itoa(body.Data.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND_OR_UNAUTHORIZED")

	w = send(r, http.MethodGet, "/events/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerUpdateCapacityViolation(t *testing.T) {
	f := newFixture(t)
	ev := storetest.Event(t, f.st, f.org.ID, storetest.Day(3), 5, models.StateApproved)
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		a := storetest.User(t, f.st, email, models.RoleAttendee)
		storetest.Reserve(t, f.st, ev.ID, a.ID)
	}

	w := send(router(f, f.org), http.MethodPatch, "/events/"+itoa(ev.ID), map[string]int{"capacity": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "CAPACITY_VIOLATION")
}

func TestHandlerUploadImage(t *testing.T) {
	f := newFixture(t)
	ev := storetest.Event(t, f.st, f.org.ID, storetest.Day(3), 5, models.StateApproved)
	r := router(f, f.org)
	path := "/events/" + itoa(ev.ID) + "/image"

	w := upload(r, path, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(r, path, "big.png", "image/png", bytes.Repeat([]byte{1}, 2048))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = upload(r, path, "cover.png", "image/png", []byte("png"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.images.objects, 1)
}
