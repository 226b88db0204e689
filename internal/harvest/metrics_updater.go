package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tab-harvester/internal/retry"
)

// ErrMetricsContention is returned when the compare-and-swap budget runs out.
var ErrMetricsContention = errors.New("metrics row contention")

// MetricsUpdater advances the aggregate without losing concurrent increments.
// Stores with a server-side increment are used directly; versioned stores go
// through a read, apply, compare-and-swap loop.
type MetricsUpdater struct {
	atomic    AtomicMetricsStore
	versioned VersionedMetricsStore
	policy    *retry.Policy
	clock     Clock
}

// NewMetricsUpdater picks the update strategy supported by store.
func NewMetricsUpdater(store MetricsStore, clock Clock, policy *retry.Policy) (*MetricsUpdater, error) {
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if policy == nil {
		policy = retry.NewExponential(0, time.Millisecond, 50*time.Millisecond)
	}
	u := &MetricsUpdater{policy: policy, clock: clock}
	switch s := store.(type) {
	case AtomicMetricsStore:
		u.atomic = s
	case VersionedMetricsStore:
		u.versioned = s
	default:
		return nil, fmt.Errorf("metrics store %T supports neither atomic increments nor compare-and-swap", store)
	}
	return u, nil
}

// Apply adds delta to the aggregate. The write is all-or-nothing: either the
// whole delta lands in one statement or nothing changes.
func (u *MetricsUpdater) Apply(ctx context.Context, delta MetricsDelta) error {
	if u.atomic != nil {
		if err := u.atomic.IncrementMetrics(ctx, delta); err != nil {
			return fmt.Errorf("increment metrics: %w", err)
		}
		return nil
	}

	for attempt := 1; ; attempt++ {
		current, err := u.versioned.ReadMetrics(ctx)
		if err != nil {
			return fmt.Errorf("read metrics: %w", err)
		}
		next := current.Apply(delta, u.clock.Now().UTC())
		swapped, err := u.versioned.CompareAndSwapMetrics(ctx, current.Version, next)
		if err != nil {
			return fmt.Errorf("swap metrics: %w", err)
		}
		if swapped {
			return nil
		}
		if u.policy.Exhausted(attempt) {
			return fmt.Errorf("swap metrics after %d attempts: %w", attempt, ErrMetricsContention)
		}
		if err := u.policy.Wait(ctx, attempt); err != nil {
			return err
		}
	}
}
