package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// NotificationSink receives one user facing message per store mutation.
type NotificationSink interface {
	Notify(ctx context.Context, kind models.NotificationKind, title, description string)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements NotificationSink.
func (n *LogNotifier) Notify(ctx context.Context, kind models.NotificationKind, title, description string) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("title", title),
		zap.String("actor_id", ContextIdentity{}.CurrentActorID(ctx)),
	}
	if description != "" {
		fields = append(fields, zap.String("description", description))
	}
	switch kind {
	case models.NotificationError:
		n.logger.Error("notification", fields...)
	case models.NotificationWarning:
		n.logger.Warn("notification", fields...)
	default:
		n.logger.Info("notification", fields...)
	}
}

// NotificationFeed keeps the most recent notifications in memory, newest first on read.
type NotificationFeed struct {
	mu    sync.RWMutex
	items []models.Notification
	next  int
	full  bool
	now   func() time.Time
}

// NewNotificationFeed returns a feed retaining at most size entries.
func NewNotificationFeed(size int, clock func() time.Time) *NotificationFeed {
	if size <= 0 {
		size = 50
	}
	if clock == nil {
		clock = time.Now
	}
	return &NotificationFeed{items: make([]models.Notification, size), now: clock}
}

// Notify implements NotificationSink.
func (f *NotificationFeed) Notify(ctx context.Context, kind models.NotificationKind, title, description string) {
	n := models.Notification{
		ID:          uuid.NewString(),
		Kind:        kind,
		Title:       title,
		Description: description,
		ActorID:     ContextIdentity{}.CurrentActorID(ctx),
		CreatedAt:   f.now().UTC(),
	}
	f.mu.Lock()
	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()
}

// Recent returns up to limit notifications, newest first. A non-positive limit returns all retained entries.
func (f *NotificationFeed) Recent(limit int) []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := f.next
	if f.full {
		count = len(f.items)
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]models.Notification, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (f.next - 1 - i + len(f.items)) % len(f.items)
		out = append(out, f.items[idx])
	}
	return out
}

// MultiNotifier fans a notification out to several sinks.
type MultiNotifier []NotificationSink

// Notify implements NotificationSink.
func (m MultiNotifier) Notify(ctx context.Context, kind models.NotificationKind, title, description string) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, kind, title, description)
		}
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.NotificationKind, string, string) {}
