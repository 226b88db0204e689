package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tab-harvester/internal/metrics"
)

// Config controls Service behavior.
type Config struct {
	ModelTimeout        time.Duration
	StoreTimeout        time.Duration
	MetricsTimeout      time.Duration
	MaxContentChars     int
	SnapshotPrefix      string
	SnapshotContentType string
	Topic               string
}

// Service runs the archiving pipeline. It is the only caller of the archive
// writer and the metrics updater. Snapshot and publish side effects run in the
// background after Summarize returns; Drain waits for them.
type Service struct {
	background sync.WaitGroup

	invoker   *Invoker
	archive   ArchiveWriter
	metrics   *MetricsUpdater
	snapshots SnapshotStore
	publisher Publisher
	clock     Clock
	ids       IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// NewService constructs a Service. snapshots and publisher may be nil.
func NewService(
	generator Generator,
	archive ArchiveWriter,
	updater *MetricsUpdater,
	snapshots SnapshotStore,
	publisher Publisher,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.MetricsTimeout <= 0 {
		cfg.MetricsTimeout = cfg.StoreTimeout
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = MaxContentChars
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "tabs"
	}
	if cfg.SnapshotContentType == "" {
		cfg.SnapshotContentType = "text/plain; charset=utf-8"
	}
	return &Service{
		invoker:   NewInvoker(generator, cfg.ModelTimeout),
		archive:   archive,
		metrics:   updater,
		snapshots: snapshots,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Summarize validates req, asks the model for a summary, archives the result
// and advances the aggregate counters. Errors are *StageError values.
func (s *Service) Summarize(ctx context.Context, req Request) (ArchivedTab, error) {
	record, err := s.run(ctx, req)
	if err != nil {
		metrics.ObserveSummarize(outcomeFor(err))
		s.logger.Info("summarize failed",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return ArchivedTab{}, err
	}
	metrics.ObserveSummarize(metrics.OutcomeOK)
	s.logger.Info("tab archived",
		zap.String("id", record.ID),
		zap.String("url", record.URL),
		zap.String("title", record.Title),
		zap.Int("tags", len(record.Tags)),
	)
	return record, nil
}

func (s *Service) run(ctx context.Context, req Request) (ArchivedTab, error) {
	if err := req.Validate(); err != nil {
		return ArchivedTab{}, err
	}

	prompt := BuildPrompt(req, s.cfg.MaxContentChars)
	raw, err := s.invoker.Invoke(ctx, prompt)
	if err != nil {
		return ArchivedTab{}, err
	}

	summary, err := ParseSummary(raw)
	if err != nil {
		return ArchivedTab{}, err
	}

	record, err := s.persist(ctx, req, summary)
	if err != nil {
		return ArchivedTab{}, err
	}

	s.updateMetrics(ctx, record)
	s.sideEffects(ctx, req.Content, record)
	return record, nil
}

// sideEffects starts the snapshot and the event publish without holding up
// the response. Both are best effort with their own timeouts.
func (s *Service) sideEffects(ctx context.Context, content string, record ArchivedTab) {
	if s.snapshots == nil && s.publisher == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.snapshot(detached, content, record)
		s.publish(detached, record)
	}()
}

// Drain blocks until background side effects finish or ctx ends.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain side effects: %w", ctx.Err())
	}
}

func (s *Service) persist(ctx context.Context, req Request, summary Summary) (ArchivedTab, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return ArchivedTab{}, newStageError(StagePersisting, ErrPersistence, "generate record id: "+err.Error(), err)
	}
	record := ArchivedTab{
		ID:         id,
		URL:        req.URL,
		Title:      req.Title,
		Summary:    summary.Summary,
		Tags:       summary.Tags,
		ArchivedAt: s.clock.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.archive.InsertArchivedTab(storeCtx, record); err != nil {
		return ArchivedTab{}, newStageError(StagePersisting, ErrPersistence, "archive insert failed: "+err.Error(), err)
	}
	return record, nil
}

// updateMetrics runs detached from the caller's cancellation: the archive has
// committed, so the increment should land even if the client went away.
func (s *Service) updateMetrics(ctx context.Context, record ArchivedTab) {
	if s.metrics == nil {
		return
	}
	metricsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MetricsTimeout)
	defer cancel()
	if err := s.metrics.Apply(metricsCtx, DefaultDelta); err != nil {
		metrics.ObserveMetricsUpdateFailure()
		s.logger.Warn("metrics update failed",
			zap.String("id", record.ID),
			zap.Error(newStageError(StageUpdatingMetrics, ErrMetricsUpdate, err.Error(), err)),
		)
	}
}

func (s *Service) snapshot(ctx context.Context, content string, record ArchivedTab) {
	if s.snapshots == nil {
		return
	}
	snapCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	path := SnapshotPath(s.cfg.SnapshotPrefix, record)
	uri, err := s.snapshots.PutObject(snapCtx, path, s.cfg.SnapshotContentType, strings.NewReader(content))
	if err != nil {
		metrics.ObserveSideEffectFailure("snapshot")
		s.logger.Warn("content snapshot failed", zap.String("id", record.ID), zap.Error(err))
		return
	}
	s.logger.Debug("content snapshot stored", zap.String("id", record.ID), zap.String("uri", uri))
}

func (s *Service) publish(ctx context.Context, record ArchivedTab) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	msgID, err := s.publisher.Publish(pubCtx, s.cfg.Topic, record)
	if err != nil {
		metrics.ObserveSideEffectFailure("publish")
		s.logger.Warn("archive event publish failed", zap.String("id", record.ID), zap.Error(err))
		return
	}
	s.logger.Debug("archive event published", zap.String("id", record.ID), zap.String("message_id", msgID))
}

// SnapshotPath places content under <prefix>/<yyyy>/<mm>/<dd>/<id>.txt.
func SnapshotPath(prefix string, record ArchivedTab) string {
	prefix = strings.Trim(prefix, "/")
	return fmt.Sprintf("%s/%s/%s.txt", prefix, record.ArchivedAt.UTC().Format("2006/01/02"), record.ID)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeValidationError
	case errors.Is(err, ErrUpstreamModel):
		return metrics.OutcomeUpstreamError
	case errors.Is(err, ErrMalformedResponse):
		return metrics.OutcomeMalformedResponse
	default:
		return metrics.OutcomePersistenceError
	}
}
