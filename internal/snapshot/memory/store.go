// Package memory keeps page content snapshots in memory for development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

// Store keeps snapshots in a map and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ harvest.SnapshotStore = (*Store)(nil)

// New creates an empty in-memory snapshot store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// PutObject stores a copy of the content and returns a memory:// URI.
func (s *Store) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = content
	return "memory://" + path, nil
}

// Object returns the stored content for path.
func (s *Store) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}
