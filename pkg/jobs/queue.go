package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer cannot accept another task.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueStopped is returned when enqueueing before Start or after Stop.
	ErrQueueStopped = errors.New("queue stopped")
)

// Task wraps a payload travelling through a queue.
type Task[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a task. A returned error schedules a retry.
type Handler[T any] func(context.Context, Task[T]) error

// GiveUpFunc runs once a task has exhausted its retries.
type GiveUpFunc[T any] func(context.Context, Task[T], error)

// Config configures worker pool behaviour.
type Config struct {
	Name       string
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory task dispatcher backed by a fixed worker pool.
type Queue[T any] struct {
	cfg     Config
	handler Handler[T]
	giveUp  GiveUpFunc[T]

	tasks   chan Task[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// New builds a queue. giveUp may be nil.
func New[T any](handler Handler[T], giveUp GiveUpFunc[T], cfg Config) *Queue[T] {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		cfg:     cfg,
		handler: handler,
		giveUp:  giveUp,
		tasks:   make(chan Task[T], cfg.BufferSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.cfg.Logger.Info("queue started", zap.String("queue", q.cfg.Name), zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and pending retries and waits for them to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.cfg.Logger.Info("queue stopped", zap.String("queue", q.cfg.Name))
}

// Enqueue adds a task without blocking.
func (q *Queue[T]) Enqueue(task Task[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.stopped {
		return fmt.Errorf("%s: %w", q.cfg.Name, ErrQueueStopped)
	}
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now().UTC()
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%s: %w", q.cfg.Name, ErrQueueFull)
	}
}

// Pending reports how many tasks wait in the buffer.
func (q *Queue[T]) Pending() int {
	return len(q.tasks)
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			if err := q.handler(q.ctx, task); err != nil {
				q.handleFailure(task, err)
			}
		}
	}
}

func (q *Queue[T]) handleFailure(task Task[T], err error) {
	if task.Attempt >= q.cfg.MaxRetries || q.ctx.Err() != nil {
		q.cfg.Logger.Error("task exceeded retries",
			zap.String("queue", q.cfg.Name), zap.String("task_id", task.ID), zap.Int("attempt", task.Attempt), zap.Error(err))
		if q.giveUp != nil {
			q.giveUp(context.WithoutCancel(q.ctx), task, err)
		}
		return
	}
	task.Attempt++
	q.cfg.Logger.Warn("task failed, retrying",
		zap.String("queue", q.cfg.Name), zap.String("task_id", task.ID), zap.Int("attempt", task.Attempt), zap.Error(err))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case q.tasks <- task:
		case <-q.ctx.Done():
		}
	}()
}
