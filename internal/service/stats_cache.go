package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type statsSnapshotStore interface {
	Load(ctx context.Context, epoch string, version uint64) (*dto.CourseStats, error)
	Save(ctx context.Context, epoch string, version uint64, stats dto.CourseStats, ttl time.Duration) error
	PurgeOlder(ctx context.Context, epoch string, version uint64) (int, error)
}

// StatsCache stores dashboard statistics per course store version. A nil
// *StatsCache is a disabled cache.
type StatsCache struct {
	store   statsSnapshotStore
	metrics *MetricsService
	ttl     time.Duration
	epoch   string
	logger  *zap.Logger
}

// NewStatsCache constructs the cache. Versions restart at zero with the process,
// so snapshots are also scoped to a per-process epoch.
func NewStatsCache(store statsSnapshotStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{store: store, metrics: metrics, ttl: ttl, epoch: uuid.NewString(), logger: logger}
}

// Enabled indicates whether snapshots are stored at all.
func (c *StatsCache) Enabled() bool {
	return c != nil && c.store != nil
}

// GetStats returns the snapshot computed for version. Store failures count as misses.
func (c *StatsCache) GetStats(ctx context.Context, version uint64) (*dto.CourseStats, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	stats, err := c.store.Load(ctx, c.epoch, version)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("stats cache read failed", zap.Uint64("version", version), zap.Error(err))
		}
		return nil, false
	}
	return stats, true
}

// SetStats stores stats for version and drops the snapshots of earlier versions.
func (c *StatsCache) SetStats(ctx context.Context, version uint64, stats dto.CourseStats) {
	if !c.Enabled() {
		return
	}
	start := time.Now()
	err := c.store.Save(ctx, c.epoch, version, stats, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("stats cache write failed", zap.Uint64("version", version), zap.Error(err))
		return
	}
	if version == 0 {
		return
	}
	if _, err := c.store.PurgeOlder(ctx, c.epoch, version); err != nil {
		c.logger.Debug("stats cache purge skipped", zap.Error(err))
	}
}
