package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"cleantree/internal/domain"
)

// Simulation adds artificial round-trip latency and random failures to
// backing-store calls, so optimistic updates and rollbacks can be watched
// against the demo server.
type Simulation struct {
	Latency     time.Duration
	FailureRate float64 // 0..1
}

// apply waits out the latency and then fails with probability FailureRate.
func (sim Simulation) apply(ctx context.Context, call string) error {
	if sim.Latency > 0 {
		timer := time.NewTimer(sim.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if sim.FailureRate > 0 && rand.Float64() < sim.FailureRate {
		return fmt.Errorf("simulated %s failure: %w", call, domain.ErrUnavailable)
	}
	return nil
}
