package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type recordedNotification struct {
	kind  models.NotificationKind
	title string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []recordedNotification
}

func (r *recordingNotifier) Notify(ctx context.Context, kind models.NotificationKind, title, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, recordedNotification{kind: kind, title: title})
}

func (r *recordingNotifier) all() []recordedNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedNotification(nil), r.items...)
}

type fixedIdentity string

func (f fixedIdentity) CurrentActorID(context.Context) string { return string(f) }

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type failingCourseRepo struct {
	*repository.CourseMemoryRepository
	updateErr error
}

func (f *failingCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.CourseMemoryRepository.Update(ctx, course)
}

type courseFixture struct {
	svc      *CourseService
	repo     *repository.CourseMemoryRepository
	notifier *recordingNotifier
	clock    *stepClock
}

func newCourseFixture(t *testing.T, opts ...CourseServiceOption) courseFixture {
	t.Helper()
	repo := repository.NewCourseMemoryRepository(nil)
	notifier := &recordingNotifier{}
	clock := &stepClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	base := []CourseServiceOption{
		WithCourseNotifier(notifier),
		WithCourseIdentity(fixedIdentity("admin-1")),
		WithCourseClock(clock.Now),
	}
	svc := NewCourseService(repo, newTeacherDirectory(), NewCourseValidator(), zap.NewNop(), append(base, opts...)...)
	return courseFixture{svc: svc, repo: repo, notifier: notifier, clock: clock}
}

func validDraft(t *testing.T) models.CourseDraft {
	t.Helper()
	draft, result := ParseCourseForm(validForm())
	require.True(t, result.IsValid, "%v", result.Errors)
	return draft
}

func TestCourseServiceCreate(t *testing.T) {
	f := newCourseFixture(t)

	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, 0, created.EnrolledCount)
	assert.True(t, created.Active)
	assert.Equal(t, "Ana Torres", created.LeadTeacherName)
	assert.Equal(t, "admin-1", created.CreatedBy)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, uint64(1), f.svc.Version())

	stored, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *stored)

	assert.Equal(t, []recordedNotification{{models.NotificationSuccess, "Course created"}}, f.notifier.all())
}

func TestCourseServiceCreateAssignsUniqueIDsConcurrently(t *testing.T) {
	f := newCourseFixture(t, WithCourseLatency(FixedLatency(time.Millisecond)))
	draft := validDraft(t)

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d := draft
			d.Name = fmt.Sprintf("Robotics Club %02d", n)
			c, err := f.svc.Create(context.Background(), d)
			if assert.NoError(t, err) {
				ids <- c.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, 20)
	assert.Len(t, f.notifier.all(), 20)
}

func TestCourseServiceCreateRejectsInvalidDraft(t *testing.T) {
	f := newCourseFixture(t)
	draft := validDraft(t)
	draft.MaxCapacity = 80
	draft.Name = "A"

	_, err := f.svc.Create(context.Background(), draft)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	details := appErrors.FromError(err).Details
	assert.Equal(t, MsgCapacityRange, details[FieldMaxCapacity])
	assert.Equal(t, MsgNameLength, details[FieldName])

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, uint64(0), f.svc.Version())
	assert.Equal(t, []recordedNotification{{models.NotificationError, "Could not create course"}}, f.notifier.all())
}

func TestCourseServiceCreateRejectsInactiveOrUnknownTeacher(t *testing.T) {
	f := newCourseFixture(t)
	draft := validDraft(t)

	draft.LeadTeacherID = "t3"
	_, err := f.svc.Create(context.Background(), draft)
	require.Error(t, err)
	assert.Equal(t, MsgTeacherInactive, appErrors.FromError(err).Details[FieldLeadTeacherID])

	draft.LeadTeacherID = "ghost"
	_, err = f.svc.Create(context.Background(), draft)
	require.Error(t, err)
	assert.Equal(t, MsgTeacherUnknown, appErrors.FromError(err).Details[FieldLeadTeacherID])
}

func TestCourseServiceUpdateMergesPatch(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	room := "  Lab 2 "
	teacher := "t2"
	updated, err := f.svc.Update(context.Background(), created.ID, models.CoursePatch{Room: &room, LeadTeacherID: &teacher})
	require.NoError(t, err)
	assert.Equal(t, "Lab 2", updated.Room)
	assert.Equal(t, "Bruno Diaz", updated.LeadTeacherName)
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestCourseServiceUpdateEmptyPatchOnlyTouchesAudit(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), created.ID, models.CoursePatch{})
	require.NoError(t, err)

	expected := *created
	expected.UpdatedAt = updated.UpdatedAt
	expected.UpdatedBy = updated.UpdatedBy
	assert.Equal(t, expected, *updated)
	assert.NotEqual(t, created.UpdatedAt, updated.UpdatedAt)
}

func TestCourseServiceUpdateExplicitEnrolledCount(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	enrolled := 12
	updated, err := f.svc.Update(context.Background(), created.ID, models.CoursePatch{EnrolledCount: &enrolled})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.EnrolledCount)
}

func TestCourseServiceUpdateFailureLeavesRecord(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	start := "11:00"
	_, err = f.svc.Update(context.Background(), created.ID, models.CoursePatch{StartTime: &start})
	require.Error(t, err)
	details := appErrors.FromError(err).Details
	assert.Equal(t, MsgTimeOrder, details[FieldStartTime])
	assert.Equal(t, MsgTimeOrder, details[FieldEndTime])

	stored, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *stored)
	assert.Equal(t, uint64(1), f.svc.Version())
}

func TestCourseServiceNotFound(t *testing.T) {
	f := newCourseFixture(t)

	_, err := f.svc.Update(context.Background(), 9, models.CoursePatch{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Deactivate(context.Background(), 9), appErrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Restore(context.Background(), 9), appErrors.ErrNotFound)
	_, err = f.svc.Get(context.Background(), 9)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	notes := f.notifier.all()
	require.Len(t, notes, 3)
	for _, n := range notes {
		assert.Equal(t, models.NotificationError, n.kind)
	}
}

func TestCourseServiceDeactivateRestoreRoundTrip(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(context.Background(), created.ID))
	inactive, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, inactive.Active)
	require.NotNil(t, inactive.DeletedBy)
	assert.Equal(t, "admin-1", *inactive.DeletedBy)
	require.NotNil(t, inactive.DeletedAt)

	// Idempotent: no field changes and no version bump.
	version := f.svc.Version()
	require.NoError(t, f.svc.Deactivate(context.Background(), created.ID))
	again, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, *inactive, *again)
	assert.Equal(t, version, f.svc.Version())

	require.NoError(t, f.svc.Restore(context.Background(), created.ID))
	restored, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.DeletedBy)
	assert.Nil(t, restored.DeletedAt)

	expected := *created
	expected.UpdatedAt = restored.UpdatedAt
	expected.UpdatedBy = restored.UpdatedBy
	assert.Equal(t, expected, *restored)

	require.NoError(t, f.svc.Restore(context.Background(), created.ID))
	assert.Len(t, f.notifier.all(), 5)
}

func TestCourseServiceWriteFailureReported(t *testing.T) {
	repo := &failingCourseRepo{CourseMemoryRepository: repository.NewCourseMemoryRepository(nil)}
	notifier := &recordingNotifier{}
	svc := NewCourseService(repo, newTeacherDirectory(), nil, nil, WithCourseNotifier(notifier))

	created, err := svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)

	repo.updateErr = errors.New("disk full")
	err = svc.Deactivate(context.Background(), created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	stored, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, models.NotificationError, notifier.all()[1].kind)
}

func TestCourseServiceMutationSurvivesCallerCancel(t *testing.T) {
	f := newCourseFixture(t, WithCourseLatency(FixedLatency(20*time.Millisecond)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	created, err := f.svc.Create(ctx, validDraft(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
}

func TestCourseServiceQuery(t *testing.T) {
	f := newCourseFixture(t)
	draft := validDraft(t)
	_, err := f.svc.Create(context.Background(), draft)
	require.NoError(t, err)
	draft.Name = "Art"
	second, err := f.svc.Create(context.Background(), draft)
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(context.Background(), second.ID))

	active, err := f.svc.Query(context.Background(), models.CourseQuery{Status: models.CourseStatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Robotics Club", active[0].Name)

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestParseCourseID(t *testing.T) {
	id, err := ParseCourseID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = ParseCourseID("abc")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = ParseCourseID("0")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestNewMutationResult(t *testing.T) {
	f := newCourseFixture(t)

	_, err := f.svc.Update(context.Background(), 9, models.CoursePatch{})
	failed := dto.NewMutationResult(nil, err)
	assert.False(t, failed.Success)
	assert.Equal(t, "NOT_FOUND", failed.Code)
	assert.NotEmpty(t, failed.Error)
	assert.Nil(t, failed.Data)

	ok := dto.NewMutationResult(&models.Course{ID: 1}, nil)
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)
	assert.NotNil(t, ok.Data)
}

func TestCourseServiceStoresCanonicalClock(t *testing.T) {
	f := newCourseFixture(t)
	early := validDraft(t)
	early.Name = "Early"
	early.StartTime = "9:00"
	early.EndTime = "9:45"
	late := validDraft(t)
	late.Name = "Late"
	late.StartTime = "10:00"
	late.EndTime = "11:00"

	created, err := f.svc.Create(context.Background(), early)
	require.NoError(t, err)
	assert.Equal(t, "09:00", created.StartTime)
	assert.Equal(t, "09:45", created.EndTime)
	_, err = f.svc.Create(context.Background(), late)
	require.NoError(t, err)

	sorted, err := f.svc.Query(context.Background(), models.CourseQuery{SortBy: "start_time"})
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, "Early", sorted[0].Name)
	assert.Equal(t, "Late", sorted[1].Name)

	start := "8:05"
	updated, err := f.svc.Update(context.Background(), created.ID, models.CoursePatch{StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, "08:05", updated.StartTime)
}

func TestCourseServiceRejectsDuplicateNameInSameYear(t *testing.T) {
	f := newCourseFixture(t)
	first, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(context.Background(), first.ID))

	dup := validDraft(t)
	dup.Name = "  ROBOTICS club "
	_, err = f.svc.Create(context.Background(), dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, MsgNameTaken, appErrors.FromError(err).Details[FieldName])

	nextYear := validDraft(t)
	nextYear.TermStart = nextYear.TermStart.AddDate(1, 0, 0)
	nextYear.TermEnd = nextYear.TermEnd.AddDate(1, 0, 0)
	second, err := f.svc.Create(context.Background(), nextYear)
	require.NoError(t, err)

	// Renaming a course to its own name is not a conflict.
	same := first.Name
	_, err = f.svc.Update(context.Background(), first.ID, models.CoursePatch{Name: &same})
	require.NoError(t, err)

	// Moving the second course into the first one's year is.
	termStart := first.TermStart
	termEnd := first.TermEnd
	_, err = f.svc.Update(context.Background(), second.ID, models.CoursePatch{TermStart: &termStart, TermEnd: &termEnd})
	require.Error(t, err)
	assert.Equal(t, MsgNameTaken, appErrors.FromError(err).Details[FieldName])

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCourseServiceBlankNotesStayUnset(t *testing.T) {
	f := newCourseFixture(t)
	created, err := f.svc.Create(context.Background(), validDraft(t))
	require.NoError(t, err)
	require.Nil(t, created.Notes)

	patch, result := PatchFromCourseForm(validForm())
	require.True(t, result.IsValid, "%v", result.Errors)
	updated, err := f.svc.Update(context.Background(), created.ID, patch)
	require.NoError(t, err)
	assert.Nil(t, updated.Notes)

	notes := "Bring a laptop"
	updated, err = f.svc.Update(context.Background(), created.ID, models.CoursePatch{Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)

	blank := "  "
	updated, err = f.svc.Update(context.Background(), created.ID, models.CoursePatch{Notes: &blank})
	require.NoError(t, err)
	assert.Nil(t, updated.Notes)
}
