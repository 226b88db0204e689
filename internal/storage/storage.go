// Package storage defines the contract shared by the archive backends.
//
// Backends live in subpackages: postgres (pgx, the production store), sqlite
// (single-node deployments) and memory (development and tests).
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

// Default table names used when the configuration leaves them empty.
const (
	DefaultArchiveTable = "archived_tabs"
	DefaultMetricsTable = "system_metrics"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableNames applies the defaults and rejects names that are not plain
// identifiers, since they are interpolated into SQL.
func TableNames(archive, metrics string) (string, string, error) {
	if archive == "" {
		archive = DefaultArchiveTable
	}
	if metrics == "" {
		metrics = DefaultMetricsTable
	}
	for _, table := range []string{archive, metrics} {
		if !validTableName.MatchString(table) {
			return "", "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return archive, metrics, nil
}

// ErrMetricsRowMissing is returned when the configured metrics row does not
// exist. Run the migrate command to provision it.
var ErrMetricsRowMissing = errors.New("metrics row missing")

// Store is implemented by every archive backend. Each backend also implements
// harvest.AtomicMetricsStore or harvest.VersionedMetricsStore.
type Store interface {
	harvest.ArchiveWriter
	harvest.MetricsStore
	// Migrate creates the tables if needed and seeds the metrics row.
	Migrate(ctx context.Context) error
	Close() error
}
