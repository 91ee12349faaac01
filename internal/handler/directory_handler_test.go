package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
)

type fakeTeacherDirectory struct {
	lastFilter models.TeacherFilter
}

func (f *fakeTeacherDirectory) List(_ context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	f.lastFilter = filter
	return []models.Teacher{{ID: "t1", FullName: "Ana Torres", Active: true}}, nil
}

func (f *fakeTeacherDirectory) Get(_ context.Context, id string) (*models.Teacher, error) {
	return &models.Teacher{ID: id, FullName: "Ana Torres", Active: true}, nil
}

func withClaims(c *gin.Context, claims *models.JWTClaims) {
	c.Set(middleware.ContextUserKey, claims)
	c.Request = c.Request.WithContext(models.WithClaims(c.Request.Context(), claims))
}

func TestTeacherHandlerListParsesActive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := &fakeTeacherDirectory{}
	handler := NewTeacherHandler(dir)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/teachers?active=true&search=%20ana%20", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, dir.lastFilter.Active)
	assert.True(t, *dir.lastFilter.Active)
	assert.Equal(t, "ana", dir.lastFilter.Search)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/teachers?active=maybe", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationHandlerListMine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := service.NewNotificationFeed(10, nil)
	alice := models.WithClaims(context.Background(), &models.JWTClaims{UserID: "alice"})
	bob := models.WithClaims(context.Background(), &models.JWTClaims{UserID: "bob"})
	feed.Notify(alice, models.NotificationSuccess, "Course created", "")
	feed.Notify(bob, models.NotificationError, "Could not update course", "")
	feed.Notify(alice, models.NotificationSuccess, "Course restored", "")
	handler := NewNotificationHandler(feed)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications?mine=true&limit=1", nil)
	withClaims(c, &models.JWTClaims{UserID: "alice", Role: models.RoleAdmin})

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Course restored", body.Data[0].Title)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications", nil)

	handler.List(c)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 3)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications?limit=0", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(service.DefaultRolePermissions())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)

	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	withClaims(c, &models.JWTClaims{UserID: "viewer-1", Role: models.RoleViewer})

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "viewer-1", body.Data.UserID)
	assert.True(t, body.Data.Permissions[models.PermissionViewCourses])
	assert.False(t, body.Data.Permissions[models.PermissionEditCourses])
}

func TestMetricsHandlerReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()

	handler := NewMetricsHandler(metrics, map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	handler = NewMetricsHandler(metrics, map[string]ReadinessCheck{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}
