// Package memory keeps archived tabs and the metrics aggregate in process
// memory for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
	"github.com/JakeFAU/tab-harvester/internal/storage"
)

// Store is an in-memory archive. Metrics are updated by compare-and-swap on
// the row version.
type Store struct {
	mu      sync.RWMutex
	records []harvest.ArchivedTab
	ids     map[string]struct{}
	metrics harvest.Metrics
}

var (
	_ storage.Store                 = (*Store)(nil)
	_ harvest.VersionedMetricsStore = (*Store)(nil)
)

// New constructs an empty store whose metrics row uses rowID.
func New(rowID int64) *Store {
	if rowID == 0 {
		rowID = 1
	}
	return &Store{
		ids:     make(map[string]struct{}),
		metrics: harvest.Metrics{ID: rowID},
	}
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// InsertArchivedTab appends a record. Duplicate ids are rejected.
func (s *Store) InsertArchivedTab(ctx context.Context, record harvest.ArchivedTab) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert archived tab: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[record.ID]; exists {
		return errors.New("archived tab already exists")
	}
	record.Tags = append([]string(nil), record.Tags...)
	s.records = append(s.records, record)
	s.ids[record.ID] = struct{}{}
	return nil
}

// ReadMetrics returns the current aggregate.
func (s *Store) ReadMetrics(ctx context.Context) (harvest.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return harvest.Metrics{}, fmt.Errorf("read metrics: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics, nil
}

// CompareAndSwapMetrics stores next only if the row is still at expectedVersion.
func (s *Store) CompareAndSwapMetrics(ctx context.Context, expectedVersion int64, next harvest.Metrics) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("swap metrics: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics.Version != expectedVersion {
		return false, nil
	}
	next.ID = s.metrics.ID
	s.metrics = next
	return true, nil
}

// Records returns a copy of every archived tab in insertion order.
func (s *Store) Records() []harvest.ArchivedTab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]harvest.ArchivedTab, len(s.records))
	copy(out, s.records)
	return out
}
