package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

func TestComputeCourseStatsEmpty(t *testing.T) {
	stats := ComputeCourseStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AverageOccupancy)
	assert.Zero(t, stats.ActivePercentage)
	assert.NotNil(t, stats.TopDemand)
	assert.NotNil(t, stats.ByLevel)
}

func TestComputeCourseStatsOccupancy(t *testing.T) {
	stats := ComputeCourseStats([]models.Course{
		{ID: 1, Level: models.CourseLevelSecondary, MaxCapacity: 20, EnrolledCount: 18, MonthlyFee: 100, Active: true},
		{ID: 2, Level: models.CourseLevelElementary, MaxCapacity: 10, EnrolledCount: 2, MonthlyFee: 50, Active: true},
	})
	assert.InDelta(t, 66.67, stats.AverageOccupancy, 0.01)
	assert.Equal(t, 30, stats.TotalCapacity)
	assert.Equal(t, 20, stats.TotalEnrolled)
	assert.Equal(t, int64(18*100+2*50), stats.EstimatedMonthlyRevenue)
	assert.Equal(t, 100.0, stats.ActivePercentage)
}

func TestComputeCourseStatsIgnoresInactive(t *testing.T) {
	stats := ComputeCourseStats([]models.Course{
		{ID: 1, Level: models.CourseLevelSecondary, MaxCapacity: 20, EnrolledCount: 10, MonthlyFee: 100, Active: true},
		{ID: 2, Level: models.CourseLevelSecondary, MaxCapacity: 40, EnrolledCount: 40, MonthlyFee: 999, Active: false},
		{ID: 3, Level: models.CourseLevelSpecial, MaxCapacity: 5, EnrolledCount: 0, Active: true},
	})
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	assert.InDelta(t, 66.67, stats.ActivePercentage, 0.01)
	assert.Equal(t, map[models.CourseLevel]int{models.CourseLevelSecondary: 1, models.CourseLevelSpecial: 1}, stats.ByLevel)
	assert.Equal(t, 25, stats.TotalCapacity)
	assert.Equal(t, int64(1000), stats.EstimatedMonthlyRevenue)
	require.Len(t, stats.TopDemand, 1)
	assert.Equal(t, int64(1), stats.TopDemand[0].ID)
}

func TestComputeCourseStatsTopDemand(t *testing.T) {
	stats := ComputeCourseStats([]models.Course{
		{ID: 1, MaxCapacity: 10, EnrolledCount: 5, Active: true},
		{ID: 2, MaxCapacity: 10, EnrolledCount: 9, Active: true},
		{ID: 3, MaxCapacity: 20, EnrolledCount: 10, Active: true},
		{ID: 4, MaxCapacity: 4, EnrolledCount: 4, Active: true},
		{ID: 5, MaxCapacity: 10, EnrolledCount: 0, Active: true},
	})
	require.Len(t, stats.TopDemand, 3)
	assert.Equal(t, int64(4), stats.TopDemand[0].ID)
	assert.Equal(t, int64(2), stats.TopDemand[1].ID)
	// 1 and 3 tie at 50%; the earlier record wins.
	assert.Equal(t, int64(1), stats.TopDemand[2].ID)
	assert.Equal(t, 100.0, stats.TopDemand[0].Occupancy)
}

type fakeSnapshotSource struct {
	courses []models.Course
	version uint64
	calls   int
	err     error
}

func (f *fakeSnapshotSource) List(ctx context.Context) ([]models.Course, error) {
	f.calls++
	return f.courses, f.err
}

func (f *fakeSnapshotSource) Version() uint64 { return f.version }

type memorySnapshots struct {
	values map[uint64]dto.CourseStats
	purged []uint64
}

func (m *memorySnapshots) Load(_ context.Context, _ string, version uint64) (*dto.CourseStats, error) {
	v, ok := m.values[version]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return &v, nil
}

func (m *memorySnapshots) Save(_ context.Context, _ string, version uint64, stats dto.CourseStats, _ time.Duration) error {
	m.values[version] = stats
	return nil
}

func (m *memorySnapshots) PurgeOlder(_ context.Context, _ string, version uint64) (int, error) {
	removed := 0
	for v := range m.values {
		if v < version {
			delete(m.values, v)
			m.purged = append(m.purged, v)
			removed++
		}
	}
	return removed, nil
}

func TestCourseStatsServiceCachesPerVersion(t *testing.T) {
	source := &fakeSnapshotSource{courses: []models.Course{{ID: 1, MaxCapacity: 10, EnrolledCount: 5, Active: true}}}
	snapshots := &memorySnapshots{values: map[uint64]dto.CourseStats{}}
	cache := NewStatsCache(snapshots, NewMetricsService(), time.Minute, zap.NewNop())
	svc := NewCourseStatsService(source, cache, zap.NewNop())

	first, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, first.Active)

	_, hit, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, source.calls)

	source.courses = append(source.courses, models.Course{ID: 2, MaxCapacity: 10, Active: true})
	source.version++
	second, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, second.Active)
	assert.Equal(t, 2, source.calls)

	// The snapshot of the previous version is dropped once a newer one is stored.
	assert.Equal(t, []uint64{source.version - 1}, snapshots.purged)
	assert.Len(t, snapshots.values, 1)
}

type failingSnapshots struct{ memorySnapshots }

func (f *failingSnapshots) Load(context.Context, string, uint64) (*dto.CourseStats, error) {
	return nil, errors.New("connection refused")
}

func TestStatsCacheTreatsStoreErrorsAsMiss(t *testing.T) {
	cache := NewStatsCache(&failingSnapshots{memorySnapshots{values: map[uint64]dto.CourseStats{}}}, nil, 0, nil)
	require.True(t, cache.Enabled())

	stats, ok := cache.GetStats(context.Background(), 3)
	assert.False(t, ok)
	assert.Nil(t, stats)

	var disabled *StatsCache
	assert.False(t, disabled.Enabled())
	disabled.SetStats(context.Background(), 1, dto.CourseStats{})
	_, ok = disabled.GetStats(context.Background(), 1)
	assert.False(t, ok)
}

func TestCourseStatsServiceWithoutCache(t *testing.T) {
	source := &fakeSnapshotSource{}
	svc := NewCourseStatsService(source, nil, nil)

	_, _, err := svc.Stats(context.Background())
	require.NoError(t, err)
	_, hit, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, source.calls)

	source.err = errors.New("boom")
	_, _, err = svc.Stats(context.Background())
	assert.Error(t, err)
}
