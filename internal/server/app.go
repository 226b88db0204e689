// Package server is the composition root: it builds every collaborator from
// configuration and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tab-harvester/internal/api"
	"github.com/JakeFAU/tab-harvester/internal/clock/system"
	"github.com/JakeFAU/tab-harvester/internal/config"
	"github.com/JakeFAU/tab-harvester/internal/harvest"
	"github.com/JakeFAU/tab-harvester/internal/id/uuid"
	"github.com/JakeFAU/tab-harvester/internal/logging"
	"github.com/JakeFAU/tab-harvester/internal/model"
	memorypublisher "github.com/JakeFAU/tab-harvester/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/tab-harvester/internal/publisher/pubsub"
	gcssnapshot "github.com/JakeFAU/tab-harvester/internal/snapshot/gcs"
	localsnapshot "github.com/JakeFAU/tab-harvester/internal/snapshot/local"
	memorysnapshot "github.com/JakeFAU/tab-harvester/internal/snapshot/memory"
	"github.com/JakeFAU/tab-harvester/internal/storage"
	memorystore "github.com/JakeFAU/tab-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/tab-harvester/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/tab-harvester/internal/storage/sqlite"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	service         *harvest.Service
	store           storage.Store
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	gcsClient       *gcs.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("model_provider", cfg.Model.Provider),
		zap.String("model", cfg.Model.Name),
	)

	if err := app.build(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	var err error
	a.store, err = OpenStore(ctx, a.cfg.Store, a.logger.Named("store"))
	if err != nil {
		return err
	}
	if a.cfg.Store.AutoMigrate {
		if err := a.store.Migrate(ctx); err != nil {
			return fmt.Errorf("store migrate failed: %w", err)
		}
		a.logger.Info("store schema migrated")
	}

	generator, err := model.New(ctx, model.Config{
		Provider:       a.cfg.Model.Provider,
		ProjectID:      a.cfg.Model.ProjectID,
		Location:       a.cfg.Model.Location,
		Model:          a.cfg.Model.Name,
		APIKey:         a.cfg.Model.APIKey,
		BaseURL:        a.cfg.Model.BaseURL,
		MaxTokens:      a.cfg.Model.MaxTokens,
		Temperature:    a.cfg.Model.Temperature,
		JSONMode:       a.cfg.Model.JSONMode,
		MaxAttempts:    a.cfg.Model.MaxAttempts,
		RetryBaseDelay: a.cfg.Model.RetryBaseDelay,
	}, a.logger.Named("model"))
	if err != nil {
		return fmt.Errorf("model client init failed: %w", err)
	}

	snapshots, err := setupSnapshots(ctx, a)
	if err != nil {
		return err
	}
	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		return err
	}

	clock := system.New()
	ids := uuid.New()
	updater, err := harvest.NewMetricsUpdater(a.store, clock, nil)
	if err != nil {
		return fmt.Errorf("metrics updater init failed: %w", err)
	}
	a.service = harvest.NewService(
		generator,
		a.store,
		updater,
		snapshots,
		publisher,
		clock,
		ids,
		harvest.Config{
			ModelTimeout:        a.cfg.Model.Timeout,
			StoreTimeout:        a.cfg.Store.Timeout,
			MetricsTimeout:      a.cfg.Store.MetricsTimeout,
			MaxContentChars:     a.cfg.Model.MaxContentChars,
			SnapshotPrefix:      a.cfg.Snapshots.Prefix,
			SnapshotContentType: a.cfg.Snapshots.ContentType,
			Topic:               a.cfg.PubSub.TopicName,
		},
		a.logger.Named("harvest"),
	)

	a.apiServer = api.NewServer(a.service, a.store, ids, *a.cfg, a.logger.Named("api"))
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close()
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close waits for pending snapshots and archive events, then releases every
// client the app opened.
func (a *App) Close() error {
	if a.service != nil {
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.service.Drain(ctx); err != nil {
			a.logger.Warn("pending side effects abandoned", zap.Error(err))
		}
		cancel()
	}
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// Sync on a terminal fd returns EINVAL; nothing useful to report.
	_ = a.logger.Sync()
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
		a.store = nil
	}
}

// OpenStore connects the configured archive backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (storage.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			ArchiveTable:    cfg.ArchiveTable,
			MetricsTable:    cfg.MetricsTable,
			MetricsRowID:    cfg.MetricsRowID,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres store",
			zap.String("archive_table", cfg.ArchiveTable),
			zap.String("metrics_table", cfg.MetricsTable),
			zap.Int64("metrics_row_id", cfg.MetricsRowID),
		)
		return store, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{
			Path:         cfg.SQLitePath,
			ArchiveTable: cfg.ArchiveTable,
			MetricsTable: cfg.MetricsTable,
			MetricsRowID: cfg.MetricsRowID,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		logger.Info("using sqlite store",
			zap.String("path", cfg.SQLitePath),
			zap.String("archive_table", cfg.ArchiveTable),
			zap.String("metrics_table", cfg.MetricsTable),
		)
		return store, nil
	case config.BackendMemory, "":
		logger.Warn("using in-memory store; archived tabs are lost on restart")
		return memorystore.New(cfg.MetricsRowID), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func setupSnapshots(ctx context.Context, app *App) (harvest.SnapshotStore, error) {
	switch app.cfg.Snapshots.Backend {
	case config.SnapshotsGCS:
		var err error
		app.gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcssnapshot.New(app.gcsClient, gcssnapshot.Config{Bucket: app.cfg.Snapshots.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs snapshot store init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot backend", zap.String("bucket", app.cfg.Snapshots.Bucket))
		return store, nil
	case config.SnapshotsLocal:
		store, err := localsnapshot.New(localsnapshot.Config{BaseDir: app.cfg.Snapshots.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local snapshot store init failed: %w", err)
		}
		app.logger.Info("using local snapshot backend", zap.String("path", app.cfg.Snapshots.Local.BaseDir))
		return store, nil
	case config.SnapshotsMemory:
		app.logger.Info("using in-memory snapshot backend")
		return memorysnapshot.New(), nil
	default:
		app.logger.Debug("content snapshots disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (harvest.Publisher, error) {
	switch app.cfg.PubSub.Backend {
	case config.PublisherPubSub:
		var err error
		app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicName)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
		return gcppublisher.New(app.pubsubPublisher), nil
	case config.PublisherMemory:
		app.logger.Info("using in-memory archive event publisher")
		return memorypublisher.New(), nil
	default:
		app.logger.Debug("archive events disabled")
		return nil, nil
	}
}
