package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	prompts  []string
	systems  []string
	released chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.systems = append(g.systems, systemInstruction)
	block := g.block
	g.mu.Unlock()
	if block {
		<-g.released
		return "", errors.New("released")
	}
	return g.reply, g.err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeArchive struct {
	mu      sync.Mutex
	records []ArchivedTab
	err     error
	onWrite func()
}

func (a *fakeArchive) InsertArchivedTab(ctx context.Context, record ArchivedTab) error {
	if a.err != nil {
		return a.err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	a.mu.Lock()
	a.records = append(a.records, record)
	a.mu.Unlock()
	if a.onWrite != nil {
		a.onWrite()
	}
	return nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

type fakeAtomicStore struct {
	mu      sync.Mutex
	metrics Metrics
	err     error
	deltas  []MetricsDelta
	ctxErrs []error
}

func (s *fakeAtomicStore) ReadMetrics(_ context.Context) (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, nil
}

func (s *fakeAtomicStore) IncrementMetrics(ctx context.Context, delta MetricsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.err != nil {
		return s.err
	}
	s.deltas = append(s.deltas, delta)
	s.metrics = s.metrics.Apply(delta, time.Time{})
	return nil
}

func (s *fakeAtomicStore) applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deltas)
}

// fakeVersionedStore forces contention by separating the read from the swap.
type fakeVersionedStore struct {
	mu        sync.Mutex
	metrics   Metrics
	conflicts int
	swaps     int
	alwaysErr error
}

func (s *fakeVersionedStore) ReadMetrics(_ context.Context) (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, nil
}

func (s *fakeVersionedStore) CompareAndSwapMetrics(_ context.Context, expected int64, next Metrics) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alwaysErr != nil {
		return false, s.alwaysErr
	}
	if s.metrics.Version != expected {
		s.conflicts++
		return false, nil
	}
	s.metrics = next
	s.swaps++
	return true, nil
}

type stuckStore struct{}

func (stuckStore) ReadMetrics(_ context.Context) (Metrics, error) {
	return Metrics{Version: 7}, nil
}

func (stuckStore) CompareAndSwapMetrics(_ context.Context, _ int64, _ Metrics) (bool, error) {
	return false, nil
}

type readOnlyStore struct{}

func (readOnlyStore) ReadMetrics(_ context.Context) (Metrics, error) {
	return Metrics{}, nil
}

type fakeSnapshots struct {
	mu    sync.Mutex
	paths []string
	data  []string
	err   error
}

func (f *fakeSnapshots) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.data = append(f.data, string(b))
	return "memory://" + path, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.payloads)), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	mu  sync.Mutex
	n   int
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tab-%d", g.n), nil
}
