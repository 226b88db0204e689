// Package postgres stores archived tabs and the metrics aggregate in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
	"github.com/JakeFAU/tab-harvester/internal/storage"
)

// Config controls the Postgres connection pool and table layout.
type Config struct {
	DSN             string
	ArchiveTable    string
	MetricsTable    string
	MetricsRowID    int64
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes archive rows and increments the metrics row in one statement.
type Store struct {
	pool         pool
	archiveTable string
	metricsTable string
	metricsRowID int64
}

var (
	_ storage.Store              = (*Store)(nil)
	_ harvest.AtomicMetricsStore = (*Store)(nil)
)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	archiveTable, metricsTable, err := storage.TableNames(cfg.ArchiveTable, cfg.MetricsTable)
	if err != nil {
		return nil, err
	}
	rowID := cfg.MetricsRowID
	if rowID == 0 {
		rowID = 1
	}
	return &Store{
		pool:         p,
		archiveTable: archiveTable,
		metricsTable: metricsTable,
		metricsRowID: rowID,
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// InsertArchivedTab inserts one archive row.
func (s *Store) InsertArchivedTab(ctx context.Context, record harvest.ArchivedTab) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, url, title, summary, tags, archived_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.archiveTable)

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	if _, err := s.pool.Exec(ctx, query,
		record.ID,
		record.URL,
		record.Title,
		record.Summary,
		tags,
		record.ArchivedAt,
	); err != nil {
		return fmt.Errorf("insert archived tab: %w", err)
	}
	return nil
}

// IncrementMetrics adds delta to the metrics row server side, so concurrent
// callers never overwrite each other.
func (s *Store) IncrementMetrics(ctx context.Context, delta harvest.MetricsDelta) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	total_tabs_closed = total_tabs_closed + $1,
	total_ram_saved_mb = total_ram_saved_mb + $2,
	total_power_saved_watts = ROUND((total_power_saved_watts + $3)::numeric, 2)::double precision,
	version = version + 1,
	updated_at = now()
WHERE id = $4`, s.metricsTable)

	tag, err := s.pool.Exec(ctx, query, delta.TabsClosed, delta.RAMSavedMB, delta.PowerSavedWatts, s.metricsRowID)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("metrics row %d: %w", s.metricsRowID, storage.ErrMetricsRowMissing)
	}
	return nil
}

// ReadMetrics returns the metrics row.
func (s *Store) ReadMetrics(ctx context.Context) (harvest.Metrics, error) {
	query := fmt.Sprintf(`
SELECT id, total_tabs_closed, total_ram_saved_mb, total_power_saved_watts, version, updated_at
FROM %s WHERE id = $1`, s.metricsTable)

	var m harvest.Metrics
	err := s.pool.QueryRow(ctx, query, s.metricsRowID).Scan(
		&m.ID,
		&m.TotalTabsClosed,
		&m.TotalRAMSavedMB,
		&m.TotalPowerSavedWatts,
		&m.Version,
		&m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return harvest.Metrics{}, fmt.Errorf("metrics row %d: %w", s.metricsRowID, storage.ErrMetricsRowMissing)
	}
	if err != nil {
		return harvest.Metrics{}, fmt.Errorf("read metrics: %w", err)
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

// Migrate creates both tables and seeds the metrics row. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	url text NOT NULL,
	title text NOT NULL DEFAULT '',
	summary text NOT NULL,
	tags text[] NOT NULL DEFAULT '{}',
	archived_at timestamptz NOT NULL
)`, s.archiveTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id bigint PRIMARY KEY,
	total_tabs_closed bigint NOT NULL DEFAULT 0,
	total_ram_saved_mb double precision NOT NULL DEFAULT 0,
	total_power_saved_watts double precision NOT NULL DEFAULT 0,
	version bigint NOT NULL DEFAULT 0,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, s.metricsTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	seed := fmt.Sprintf(`INSERT INTO %s (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, s.metricsTable)
	if _, err := s.pool.Exec(ctx, seed, s.metricsRowID); err != nil {
		return fmt.Errorf("seed metrics row: %w", err)
	}
	return nil
}
