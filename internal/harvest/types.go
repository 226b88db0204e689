package harvest

import (
	"math"
	"time"
)

// Request is one captured page submitted for archiving.
type Request struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Summary is the structured reply extracted from the model output.
type Summary struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// ArchivedTab is the immutable record written once per accepted request.
type ArchivedTab struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Metrics is the singleton aggregate row.
type Metrics struct {
	ID                   int64     `json:"id"`
	TotalTabsClosed      int64     `json:"total_tabs_closed"`
	TotalRAMSavedMB      float64   `json:"total_ram_saved_mb"`
	TotalPowerSavedWatts float64   `json:"total_power_saved_watts"`
	Version              int64     `json:"version"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// MetricsDelta is the per-archive increment applied to the aggregate.
type MetricsDelta struct {
	TabsClosed      int64
	RAMSavedMB      float64
	PowerSavedWatts float64
}

// DefaultDelta is applied once for every successful archive.
var DefaultDelta = MetricsDelta{
	TabsClosed:      1,
	RAMSavedMB:      400,
	PowerSavedWatts: 0.18,
}

// Apply returns m advanced by d. Power is rounded to two decimals after the
// addition and the version is bumped.
func (m Metrics) Apply(d MetricsDelta, at time.Time) Metrics {
	next := m
	next.TotalTabsClosed += d.TabsClosed
	next.TotalRAMSavedMB += d.RAMSavedMB
	next.TotalPowerSavedWatts = RoundWatts(m.TotalPowerSavedWatts + d.PowerSavedWatts)
	next.Version++
	next.UpdatedAt = at
	return next
}

// RoundWatts rounds to two decimal places.
func RoundWatts(v float64) float64 {
	return math.Round(v*100) / 100
}
