package service

import (
	"context"
	"time"
)

// Clock supplies the current time for audit stamps.
type Clock func() time.Time

// Latency delays store mutations, standing in for a remote backend round trip.
type Latency interface {
	Wait(ctx context.Context) error
}

// NoLatency returns immediately.
type NoLatency struct{}

// Wait implements Latency.
func (NoLatency) Wait(context.Context) error { return nil }

// FixedLatency sleeps for a constant duration unless ctx ends first.
type FixedLatency time.Duration

// Wait implements Latency.
func (l FixedLatency) Wait(ctx context.Context) error {
	if l <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(l))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
