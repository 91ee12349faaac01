package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	"github.com/noah-isme/course-admin-api/internal/service"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func newCourseRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	teachers := repository.NewTeacherMemoryRepository([]models.Teacher{
		{ID: "t1", FullName: "Ana Torres", Active: true},
		{ID: "t2", FullName: "Bruno Diaz", Active: false},
	})
	courses := service.NewCourseService(repository.NewCourseMemoryRepository(nil), teachers, nil, zap.NewNop())
	h := NewCourseHandler(courses, service.NewCourseStatsService(courses, nil, nil))

	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.GET("/courses", h.List)
	r.GET("/courses/stats", h.Stats)
	r.POST("/courses/validate", h.Validate)
	r.GET("/courses/:id", h.Get)
	r.POST("/courses", h.Create)
	r.PUT("/courses/:id", h.Update)
	r.DELETE("/courses/:id", h.Deactivate)
	r.PATCH("/courses/:id/restore", h.Restore)
	return r
}

func courseForm(overrides map[string]interface{}) []byte {
	form := map[string]interface{}{
		"name":            "Robotics Club",
		"level":           "Secondary",
		"max_capacity":    20,
		"lead_teacher_id": "t1",
		"room":            "Lab 1",
		"start_time":      "09:00",
		"end_time":        "10:30",
		"days_of_week":    []string{"mon", "wed"},
		"enrollment_fee":  "5000",
		"monthly_fee":     2500,
		"term_start":      "2024-03-01",
		"term_end":        "2024-12-15",
	}
	for k, v := range overrides {
		form[k] = v
	}
	body, _ := json.Marshal(form)
	return body
}

func perform(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestCourseHandlerCreateAndGet(t *testing.T) {
	r := newCourseRouter(t)

	rec := perform(r, http.MethodPost, "/courses", courseForm(nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result struct {
		Success bool          `json:"success"`
		Data    models.Course `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), result.Data.ID)
	assert.Equal(t, "Ana Torres", result.Data.LeadTeacherName)
	assert.True(t, result.Data.Active)

	rec = perform(r, http.MethodGet, "/courses/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = perform(r, http.MethodGet, "/courses/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(r, http.MethodGet, "/courses/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCourseHandlerCreateReportsFieldErrors(t *testing.T) {
	r := newCourseRouter(t)

	rec := perform(r, http.MethodPost, "/courses", courseForm(map[string]interface{}{"name": "A", "max_capacity": "lots"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, service.MsgNameLength, env.Error.Details[service.FieldName])
	assert.Equal(t, service.MsgCapacityNumber, env.Error.Details[service.FieldMaxCapacity])

	rec = perform(r, http.MethodPost, "/courses", courseForm(map[string]interface{}{"lead_teacher_id": "t2"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, service.MsgTeacherInactive, env.Error.Details[service.FieldLeadTeacherID])

	rec = perform(r, http.MethodPost, "/courses", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCourseHandlerListFiltersAndSorts(t *testing.T) {
	r := newCourseRouter(t)
	require.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/courses", courseForm(map[string]interface{}{"name": "Zumba"})).Code)
	require.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/courses", courseForm(map[string]interface{}{"name": "Art", "level": "Elementary"})).Code)

	rec := perform(r, http.MethodGet, "/courses?sort_by=name&sort_order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var courses []models.Course
	require.NoError(t, json.Unmarshal(env.Data, &courses))
	require.Len(t, courses, 2)
	assert.Equal(t, "Zumba", courses[0].Name)
	assert.EqualValues(t, 2, env.Meta["count"])

	rec = perform(r, http.MethodGet, "/courses?level=Elementary", nil)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &courses))
	require.Len(t, courses, 1)
	assert.Equal(t, "Art", courses[0].Name)

	rec = perform(r, http.MethodGet, "/courses?sort_by=colour", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SORT_FIELD", decodeEnvelope(t, rec).Error.Code)
}

func TestCourseHandlerDeactivateRestoreAndStats(t *testing.T) {
	r := newCourseRouter(t)
	require.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/courses", courseForm(nil)).Code)

	rec := perform(r, http.MethodDelete, "/courses/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Data models.Course `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.False(t, result.Data.Active)
	assert.NotNil(t, result.Data.DeletedAt)

	rec = perform(r, http.MethodGet, "/courses/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	var stats struct {
		Total    int `json:"total"`
		Inactive int `json:"inactive"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, false, env.Meta["cache_hit"])

	rec = perform(r, http.MethodPatch, "/courses/1/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.True(t, result.Data.Active)
	assert.Nil(t, result.Data.DeletedAt)

	rec = perform(r, http.MethodDelete, "/courses/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCourseHandlerUpdate(t *testing.T) {
	r := newCourseRouter(t)
	require.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/courses", courseForm(nil)).Code)

	rec := perform(r, http.MethodPut, "/courses/1", courseForm(map[string]interface{}{"room": "Lab 2", "enrolled_count": 5}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Data models.Course `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, "Lab 2", result.Data.Room)
	assert.Equal(t, 5, result.Data.EnrolledCount)

	rec = perform(r, http.MethodPut, "/courses/1", courseForm(map[string]interface{}{"end_time": "08:00"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.MsgTimeOrder, decodeEnvelope(t, rec).Error.Details[service.FieldEndTime])
}

func TestCourseHandlerValidate(t *testing.T) {
	r := newCourseRouter(t)

	rec := perform(r, http.MethodPost, "/courses/validate", courseForm(map[string]interface{}{"term_end": "2024-01-01"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		IsValid bool              `json:"is_valid"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.False(t, result.IsValid)
	assert.Equal(t, service.MsgTermOrder, result.Errors[service.FieldTermStart])
	assert.Equal(t, service.MsgTermOrder, result.Errors[service.FieldTermEnd])
}
