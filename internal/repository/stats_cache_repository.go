package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/dto"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

const statsKeyPrefix = "courses:stats:"

// StatsCacheKey names the snapshot computed from store version within epoch.
func StatsCacheKey(epoch string, version uint64) string {
	return fmt.Sprintf("%s%s:v%d", statsKeyPrefix, epoch, version)
}

// statsKeyVersion extracts the version from a snapshot key of epoch.
func statsKeyVersion(key, epoch string) (uint64, bool) {
	prefix := statsKeyPrefix + epoch + ":v"
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(key[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StatsCacheRepository keeps course dashboard snapshots in Redis. A nil client
// behaves as an always-empty cache.
type StatsCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStatsCacheRepository constructs the repository.
func NewStatsCacheRepository(client *redis.Client, logger *zap.Logger) *StatsCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCacheRepository{client: client, logger: logger}
}

// Load returns the snapshot for version. Absent snapshots yield ErrCacheMiss.
func (r *StatsCacheRepository) Load(ctx context.Context, epoch string, version uint64) (*dto.CourseStats, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := StatsCacheKey(epoch, version)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var stats dto.CourseStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("decode stats snapshot %s: %w", key, err)
	}
	return &stats, nil
}

// Save stores the snapshot for version with the given TTL.
func (r *StatsCacheRepository) Save(ctx context.Context, epoch string, version uint64, stats dto.CourseStats, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	key := StatsCacheKey(epoch, version)
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode stats snapshot %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// PurgeOlder removes the snapshots of epoch computed before version and returns
// how many were removed. Snapshots of other epochs are left to expire.
func (r *StatsCacheRepository) PurgeOlder(ctx context.Context, epoch string, version uint64) (int, error) {
	if r.client == nil {
		return 0, nil
	}
	var stale []string
	iter := r.client.Scan(ctx, 0, statsKeyPrefix+epoch+":v*", 100).Iterator()
	for iter.Next(ctx) {
		if v, ok := statsKeyVersion(iter.Val(), epoch); ok && v < version {
			stale = append(stale, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan stats snapshots: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.client.Del(ctx, stale...).Err(); err != nil {
		return 0, fmt.Errorf("redis delete stats snapshots: %w", err)
	}
	r.logger.Debug("stale stats snapshots removed", zap.String("epoch", epoch), zap.Int("count", len(stale)))
	return len(stale), nil
}

// Ping reports whether Redis is reachable.
func (r *StatsCacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return errors.New("stats cache has no redis client")
	}
	return r.client.Ping(ctx).Err()
}
