package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

// Mutation operation labels used in metrics and logs.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDeactivate = "deactivate"
	OpRestore    = "restore"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Count(ctx context.Context) (int, error)
}

// TeacherDirectory resolves lead teacher references.
type TeacherDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CourseService owns the canonical course collection. Mutations are applied one
// at a time and either fully succeed or leave the collection untouched.
type CourseService struct {
	repo      courseRepository
	teachers  TeacherDirectory
	validator *validator.Validate
	logger    *zap.Logger
	notifier  NotificationSink
	identity  IdentityProvider
	clock     Clock
	latency   Latency
	metrics   *MetricsService

	mu      sync.Mutex
	version atomic.Uint64
}

// CourseServiceOption configures the service.
type CourseServiceOption func(*CourseService)

// WithCourseNotifier sets the sink receiving mutation outcomes.
func WithCourseNotifier(n NotificationSink) CourseServiceOption {
	return func(s *CourseService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCourseIdentity overrides how the acting user is resolved.
func WithCourseIdentity(p IdentityProvider) CourseServiceOption {
	return func(s *CourseService) {
		if p != nil {
			s.identity = p
		}
	}
}

// WithCourseClock overrides the time source for audit stamps.
func WithCourseClock(c Clock) CourseServiceOption {
	return func(s *CourseService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCourseLatency delays every mutation.
func WithCourseLatency(l Latency) CourseServiceOption {
	return func(s *CourseService) {
		if l != nil {
			s.latency = l
		}
	}
}

// WithCourseMetrics enables mutation counters.
func WithCourseMetrics(m *MetricsService) CourseServiceOption {
	return func(s *CourseService) {
		s.metrics = m
	}
}

// NewCourseService constructs the service with defaults.
func NewCourseService(repo courseRepository, teachers TeacherDirectory, validate *validator.Validate, logger *zap.Logger, opts ...CourseServiceOption) *CourseService {
	if validate == nil {
		validate = NewCourseValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CourseService{
		repo:      repo,
		teachers:  teachers,
		validator: validate,
		logger:    logger,
		notifier:  noopNotifier{},
		identity:  ContextIdentity{},
		clock:     time.Now,
		latency:   NoLatency{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Version increases after every mutation that changed the collection.
func (s *CourseService) Version() uint64 {
	return s.version.Load()
}

// List returns every course, active or not, in store order.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Query lists the courses matching q.
func (s *CourseService) Query(ctx context.Context, q models.CourseQuery) ([]models.Course, error) {
	courses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterCourses(courses, q)
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create stores a new course. The id, enrolled count, active flag and audit
// fields are assigned here regardless of the draft.
func (s *CourseService) Create(ctx context.Context, draft models.CourseDraft) (*models.Course, error) {
	var created *models.Course
	err := s.mutate(ctx, OpCreate, func(ctx context.Context) (bool, error) {
		if err := s.validator.Struct(draft); err != nil {
			return false, validationError("invalid course payload", err)
		}
		if err := s.ensureUniqueName(ctx, draft.Name, draft.TermStart.Year(), 0); err != nil {
			return false, err
		}
		teacher, err := s.resolveTeacher(ctx, draft.LeadTeacherID)
		if err != nil {
			return false, err
		}

		actor := s.identity.CurrentActorID(ctx)
		now := s.clock().UTC()
		course := &models.Course{
			Name:            trimmed(draft.Name),
			Level:           draft.Level,
			Description:     draft.Description,
			MaxCapacity:     draft.MaxCapacity,
			EnrolledCount:   0,
			LeadTeacherID:   teacher.ID,
			LeadTeacherName: teacher.FullName,
			Room:            trimmed(draft.Room),
			StartTime:       models.CanonicalClock(draft.StartTime),
			EndTime:         models.CanonicalClock(draft.EndTime),
			DaysOfWeek:      draft.DaysOfWeek.Normalize(),
			EnrollmentFee:   draft.EnrollmentFee,
			MonthlyFee:      draft.MonthlyFee,
			TermStart:       draft.TermStart,
			TermEnd:         draft.TermEnd,
			Active:          true,
			CreatedBy:       actor,
			CreatedAt:       now,
			UpdatedBy:       actor,
			UpdatedAt:       now,
		}
		if draft.Notes != nil {
			if notes := trimmed(*draft.Notes); notes != "" {
				course.Notes = &notes
			}
		}
		if err := s.repo.Create(ctx, course); err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
		}
		created = course
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update merges patch over the stored course. Fields absent from the patch keep their values.
func (s *CourseService) Update(ctx context.Context, id int64, patch models.CoursePatch) (*models.Course, error) {
	var updated *models.Course
	err := s.mutate(ctx, OpUpdate, func(ctx context.Context) (bool, error) {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}

		next := existing.Clone()
		patch.Apply(&next)
		if next.LeadTeacherID != existing.LeadTeacherID {
			teacher, err := s.resolveTeacher(ctx, next.LeadTeacherID)
			if err != nil {
				return false, err
			}
			next.LeadTeacherID = teacher.ID
			next.LeadTeacherName = teacher.FullName
		}
		if err := s.validator.Struct(recordFromCourse(next)); err != nil {
			return false, validationError("invalid course payload", err)
		}
		if err := s.ensureUniqueName(ctx, next.Name, next.SchoolYear(), existing.ID); err != nil {
			return false, err
		}

		next.ID = existing.ID
		next.UpdatedBy = s.identity.CurrentActorID(ctx)
		next.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, &next); err != nil {
			return false, s.writeError(err, "failed to update course")
		}
		updated = &next
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Deactivate soft deletes a course. Deactivating an inactive course succeeds without changes.
func (s *CourseService) Deactivate(ctx context.Context, id int64) error {
	return s.mutate(ctx, OpDeactivate, func(ctx context.Context) (bool, error) {
		course, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if !course.Active {
			return false, nil
		}
		actor := s.identity.CurrentActorID(ctx)
		now := s.clock().UTC()
		course.Active = false
		course.DeletedBy = &actor
		course.DeletedAt = &now
		if err := s.repo.Update(ctx, course); err != nil {
			return false, s.writeError(err, "failed to deactivate course")
		}
		return true, nil
	})
}

// Restore reactivates a course and clears its deletion stamps. Restoring an active course succeeds without changes.
func (s *CourseService) Restore(ctx context.Context, id int64) error {
	return s.mutate(ctx, OpRestore, func(ctx context.Context) (bool, error) {
		course, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if course.Active && course.DeletedAt == nil && course.DeletedBy == nil {
			return false, nil
		}
		course.Active = true
		course.DeletedBy = nil
		course.DeletedAt = nil
		course.UpdatedBy = s.identity.CurrentActorID(ctx)
		course.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, course); err != nil {
			return false, s.writeError(err, "failed to restore course")
		}
		return true, nil
	})
}

// mutate serializes fn against other mutations and reports its outcome exactly once.
// fn reports whether it changed the collection.
func (s *CourseService) mutate(ctx context.Context, op string, fn func(ctx context.Context) (bool, error)) error {
	// Once started a mutation runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.latency.Wait(ctx)
	changed := false
	if err == nil {
		changed, err = fn(ctx)
	} else {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "course store unavailable")
	}

	s.metrics.RecordCourseMutation(op, err)
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status >= 500 {
			s.logger.Error("course mutation failed", zap.String("operation", op), zap.Error(err))
		} else {
			s.logger.Info("course mutation rejected", zap.String("operation", op), zap.String("code", appErr.Code))
		}
		s.notifier.Notify(ctx, models.NotificationError, failureTitles[op], appErr.Message)
		return err
	}

	if changed {
		s.version.Add(1)
		if n, countErr := s.repo.Count(ctx); countErr == nil {
			s.metrics.SetCourseCount(n)
		}
	}
	s.notifier.Notify(ctx, models.NotificationSuccess, successTitles[op], "")
	return nil
}

var successTitles = map[string]string{
	OpCreate:     "Course created",
	OpUpdate:     "Course updated",
	OpDeactivate: "Course deactivated",
	OpRestore:    "Course restored",
}

var failureTitles = map[string]string{
	OpCreate:     "Could not create course",
	OpUpdate:     "Could not update course",
	OpDeactivate: "Could not deactivate course",
	OpRestore:    "Could not restore course",
}

func (s *CourseService) resolveTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	if s.teachers == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "teacher directory unavailable")
	}
	teacher, err := s.teachers.FindByID(ctx, trimmed(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload",
				map[string]string{FieldLeadTeacherID: MsgTeacherUnknown})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload",
			map[string]string{FieldLeadTeacherID: MsgTeacherInactive})
	}
	return teacher, nil
}

// ensureUniqueName rejects a name already used by another course, active or not,
// whose term starts in the same year. Names compare case-insensitively.
func (s *CourseService) ensureUniqueName(ctx context.Context, name string, year int, excludeID int64) error {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	caser := cases.Fold()
	want := caser.String(trimmed(name))
	for i := range courses {
		c := &courses[i]
		if c.ID == excludeID || c.SchoolYear() != year {
			continue
		}
		if caser.String(trimmed(c.Name)) == want {
			return appErrors.WithDetails(appErrors.ErrValidation, "invalid course payload",
				map[string]string{FieldName: MsgNameTaken})
		}
	}
	return nil
}

func (s *CourseService) writeError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(message string, err error) error {
	return appErrors.WithDetails(appErrors.ErrValidation, message, ValidationDetails(err))
}

// ParseCourseID converts a path parameter into a course id.
func ParseCourseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(trimmed(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid course id")
	}
	return id, nil
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
