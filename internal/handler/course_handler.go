package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/middleware"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/service"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
	"github.com/noah-isme/course-admin-api/pkg/response"
)

type courseManager interface {
	Version() uint64
	Query(ctx context.Context, q models.CourseQuery) ([]models.Course, error)
	Get(ctx context.Context, id int64) (*models.Course, error)
	Create(ctx context.Context, draft models.CourseDraft) (*models.Course, error)
	Update(ctx context.Context, id int64, patch models.CoursePatch) (*models.Course, error)
	Deactivate(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
}

type courseStatsProvider interface {
	Stats(ctx context.Context) (*dto.CourseStats, bool, error)
}

// CourseHandler exposes the course catalogue.
type CourseHandler struct {
	courses courseManager
	stats   courseStatsProvider
}

// NewCourseHandler constructs a CourseHandler.
func NewCourseHandler(courses courseManager, stats courseStatsProvider) *CourseHandler {
	return &CourseHandler{courses: courses, stats: stats}
}

// List godoc
// @Summary List courses
// @Description Filter by search text, level, lead teacher and status, sorted by any course field
// @Tags Courses
// @Produce json
// @Param search query string false "Case-insensitive match on name, teacher, room or level"
// @Param level query string false "Preschool, Elementary, Secondary or Special"
// @Param lead_teacher_id query string false "Lead teacher ID"
// @Param status query string false "all, active or inactive"
// @Param sort_by query string false "Sort field (default name)"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var q models.CourseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course query"))
		return
	}
	courses, err := h.courses.Query(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(courses))
	middleware.SetMeta(c, "version", h.courses.Version())
	response.OK(c, courses, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get course detail
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	id, err := service.ParseCourseID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Create godoc
// @Summary Create course
// @Description Validates the raw form, resolves the lead teacher and stores an active course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CourseForm true "Course form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	form, ok := bindCourseForm(c)
	if !ok {
		return
	}
	draft, result := service.ParseCourseForm(form)
	if !result.IsValid {
		response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload", result.Errors))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewMutationResult(course, nil))
}

// Update godoc
// @Summary Update course
// @Description Overwrites the supplied fields; enrolled_count may only change here
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path int true "Course ID"
// @Param payload body dto.CourseForm true "Course form"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	id, err := service.ParseCourseID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	form, ok := bindCourseForm(c)
	if !ok {
		return
	}
	patch, result := service.PatchFromCourseForm(form)
	if !result.IsValid {
		response.Error(c, appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload", result.Errors))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMutationResult(course, nil))
}

// Deactivate godoc
// @Summary Deactivate course
// @Description Soft delete; the record stays in the catalogue as inactive
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Deactivate(c *gin.Context) {
	h.toggle(c, h.courses.Deactivate)
}

// Restore godoc
// @Summary Restore course
// @Tags Courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/restore [patch]
func (h *CourseHandler) Restore(c *gin.Context) {
	h.toggle(c, h.courses.Restore)
}

// Stats godoc
// @Summary Course dashboard statistics
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/stats [get]
func (h *CourseHandler) Stats(c *gin.Context) {
	stats, hit, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.OK(c, stats, middleware.ExtractMeta(c))
}

// Validate godoc
// @Summary Validate course form
// @Description Reports every failing field without storing anything
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CourseForm true "Course form"
// @Success 200 {object} response.Envelope
// @Router /courses/validate [post]
func (h *CourseHandler) Validate(c *gin.Context) {
	form, ok := bindCourseForm(c)
	if !ok {
		return
	}
	response.OK(c, service.ValidateCourseForm(form))
}

func (h *CourseHandler) toggle(c *gin.Context, op func(ctx context.Context, id int64) error) {
	id, err := service.ParseCourseID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := op(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMutationResult(course, nil))
}

func bindCourseForm(c *gin.Context) (dto.CourseForm, bool) {
	var form dto.CourseForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return form, false
	}
	return form, true
}
