// Package sqlite stores archived tabs and the metrics aggregate in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/tab-harvester/internal/harvest"
	"github.com/JakeFAU/tab-harvester/internal/storage"
)

const timeLayout = time.RFC3339Nano

// Config selects the database file, the table names and the metrics row.
type Config struct {
	Path         string
	ArchiveTable string
	MetricsTable string
	MetricsRowID int64
}

// Store is a SQLite-backed archive. Writes are serialized on one connection.
type Store struct {
	db           *sql.DB
	archiveTable string
	metricsTable string
	metricsRowID int64
}

var (
	_ storage.Store              = (*Store)(nil)
	_ harvest.AtomicMetricsStore = (*Store)(nil)
)

// Open opens (or creates) the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store.sqlite_path is required")
	}
	archiveTable, metricsTable, err := storage.TableNames(cfg.ArchiveTable, cfg.MetricsTable)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	rowID := cfg.MetricsRowID
	if rowID == 0 {
		rowID = 1
	}
	return &Store{
		db:           db,
		archiveTable: archiveTable,
		metricsTable: metricsTable,
		metricsRowID: rowID,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Migrate creates both tables and seeds the metrics row.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			archived_at TEXT NOT NULL
		)`, s.archiveTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			total_tabs_closed INTEGER NOT NULL DEFAULT 0,
			total_ram_saved_mb REAL NOT NULL DEFAULT 0,
			total_power_saved_watts REAL NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT ''
		)`, s.metricsTable),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, updated_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, s.metricsTable),
		s.metricsRowID, time.Now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("seed metrics row: %w", err)
	}
	return nil
}

// InsertArchivedTab inserts one archive row. Tags are stored as a JSON array.
func (s *Store) InsertArchivedTab(ctx context.Context, record harvest.ArchivedTab) error {
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, url, title, summary, tags, archived_at) VALUES (?, ?, ?, ?, ?, ?)`, s.archiveTable),
		record.ID, record.URL, record.Title, record.Summary, string(tagsJSON),
		record.ArchivedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert archived tab: %w", err)
	}
	return nil
}

// IncrementMetrics adds delta to the metrics row in a single UPDATE.
func (s *Store) IncrementMetrics(ctx context.Context, delta harvest.MetricsDelta) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET
			total_tabs_closed = total_tabs_closed + ?,
			total_ram_saved_mb = total_ram_saved_mb + ?,
			total_power_saved_watts = ROUND(total_power_saved_watts + ?, 2),
			version = version + 1,
			updated_at = ?
		WHERE id = ?`, s.metricsTable),
		delta.TabsClosed, delta.RAMSavedMB, delta.PowerSavedWatts,
		time.Now().UTC().Format(timeLayout), s.metricsRowID,
	)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("metrics row %d: %w", s.metricsRowID, storage.ErrMetricsRowMissing)
	}
	return nil
}

// ReadMetrics returns the metrics row.
func (s *Store) ReadMetrics(ctx context.Context) (harvest.Metrics, error) {
	var (
		m       harvest.Metrics
		updated string
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, total_tabs_closed, total_ram_saved_mb, total_power_saved_watts, version, updated_at
		FROM %s WHERE id = ?`, s.metricsTable), s.metricsRowID,
	).Scan(&m.ID, &m.TotalTabsClosed, &m.TotalRAMSavedMB, &m.TotalPowerSavedWatts, &m.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return harvest.Metrics{}, fmt.Errorf("metrics row %d: %w", s.metricsRowID, storage.ErrMetricsRowMissing)
	}
	if err != nil {
		return harvest.Metrics{}, fmt.Errorf("read metrics: %w", err)
	}
	if updated != "" {
		if m.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return harvest.Metrics{}, fmt.Errorf("parse updated_at: %w", err)
		}
	}
	return m, nil
}
