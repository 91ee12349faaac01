package service

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
)

// TopDemandSize is the number of courses reported in the demand ranking.
const TopDemandSize = 3

// ComputeCourseStats derives the dashboard figures from a snapshot of the collection.
// Totals cover every record; every other figure considers active courses only.
func ComputeCourseStats(records []models.Course) dto.CourseStats {
	stats := dto.CourseStats{
		Total:     len(records),
		ByLevel:   make(map[models.CourseLevel]int),
		TopDemand: []dto.CourseDemand{},
	}

	demand := make([]models.Course, 0, len(records))
	for i := range records {
		c := &records[i]
		if !c.Active {
			stats.Inactive++
			continue
		}
		stats.Active++
		stats.ByLevel[c.Level]++
		stats.TotalCapacity += c.MaxCapacity
		stats.TotalEnrolled += c.EnrolledCount
		stats.EstimatedMonthlyRevenue += int64(c.EnrolledCount) * c.MonthlyFee
		if c.EnrolledCount > 0 {
			demand = append(demand, *c)
		}
	}

	if stats.Total > 0 {
		stats.ActivePercentage = percentage(float64(stats.Active), float64(stats.Total))
	}
	if stats.TotalCapacity > 0 {
		stats.AverageOccupancy = percentage(float64(stats.TotalEnrolled), float64(stats.TotalCapacity))
	}

	sort.SliceStable(demand, func(i, j int) bool {
		return demand[i].Occupancy() > demand[j].Occupancy()
	})
	if len(demand) > TopDemandSize {
		demand = demand[:TopDemandSize]
	}
	for _, c := range demand {
		stats.TopDemand = append(stats.TopDemand, dto.CourseDemand{
			ID:              c.ID,
			Name:            c.Name,
			Level:           c.Level,
			LeadTeacherName: c.LeadTeacherName,
			EnrolledCount:   c.EnrolledCount,
			MaxCapacity:     c.MaxCapacity,
			Occupancy:       percentage(float64(c.EnrolledCount), float64(c.MaxCapacity)),
		})
	}
	return stats
}

// percentage returns part/whole*100 rounded to two decimals.
func percentage(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(part/whole*10000) / 100
}

type courseSnapshotSource interface {
	List(ctx context.Context) ([]models.Course, error)
	Version() uint64
}

// CourseStatsService serves ComputeCourseStats, caching results per store version.
type CourseStatsService struct {
	source courseSnapshotSource
	cache  *StatsCache
	logger *zap.Logger
}

// NewCourseStatsService constructs the stats service. cache may be nil.
func NewCourseStatsService(source courseSnapshotSource, cache *StatsCache, logger *zap.Logger) *CourseStatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseStatsService{source: source, cache: cache, logger: logger}
}

// Stats returns the statistics for the current collection and whether they came from cache.
func (s *CourseStatsService) Stats(ctx context.Context) (*dto.CourseStats, bool, error) {
	version := s.source.Version()
	if cached, ok := s.cache.GetStats(ctx, version); ok {
		return cached, true, nil
	}

	records, err := s.source.List(ctx)
	if err != nil {
		return nil, false, err
	}
	stats := ComputeCourseStats(records)

	// A mutation landed while listing; the snapshot may be newer than version.
	if s.source.Version() != version {
		s.logger.Debug("stats snapshot not cached", zap.Uint64("version", version))
		return &stats, false, nil
	}
	s.cache.SetStats(ctx, version, stats)
	return &stats, false, nil
}
