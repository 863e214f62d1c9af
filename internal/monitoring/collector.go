// Package monitoring watches refresh health and posts alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/store"
)

// MetricsSnapshot holds a point-in-time view of data freshness.
type MetricsSnapshot struct {
	// Refreshes within the lookback window.
	RefreshTotal    int     `json:"refresh_total"`
	RefreshComplete int     `json:"refresh_complete"`
	RefreshFailed   int     `json:"refresh_failed"`
	RefreshRunning  int     `json:"refresh_running"`
	RefreshFailRate float64 `json:"refresh_fail_rate"`
	LastError       string  `json:"last_error,omitempty"`

	// Published snapshot. SnapshotAge is zero when none is loaded.
	SnapshotLoaded   bool          `json:"snapshot_loaded"`
	SnapshotAge      time.Duration `json:"snapshot_age"`
	ExecutionRecords int           `json:"execution_records"`
	UnlinkedOrders   int           `json:"unlinked_orders"`
	UnlinkedRate     float64       `json:"unlinked_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RefreshLister abstracts the refresh history query.
type RefreshLister interface {
	Refreshes(ctx context.Context, filter store.RefreshFilter) ([]model.Refresh, error)
}

// SnapshotSource returns the published snapshot, or nil before the first
// refresh.
type SnapshotSource interface {
	Snapshot() *engine.Snapshot
}

// Collector gathers refresh metrics. *engine.Service satisfies both of its
// dependencies.
type Collector struct {
	history   RefreshLister
	snapshots SnapshotSource
	now       func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(history RefreshLister, snapshots SnapshotSource) *Collector {
	return &Collector{history: history, snapshots: snapshots, now: time.Now}
}

// Collect gathers a snapshot of refresh metrics over the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Newest first, so the first failure seen is the latest.
	runs, err := c.history.Refreshes(ctx, store.RefreshFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list refreshes")
	}
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RefreshTotal++
		switch r.Status {
		case model.RefreshComplete:
			snap.RefreshComplete++
		case model.RefreshFailed:
			snap.RefreshFailed++
			if snap.LastError == "" {
				snap.LastError = r.Error
			}
		case model.RefreshRunning:
			snap.RefreshRunning++
		}
	}
	if finished := snap.RefreshComplete + snap.RefreshFailed; finished > 0 {
		snap.RefreshFailRate = float64(snap.RefreshFailed) / float64(finished)
	}

	if s := c.snapshots.Snapshot(); s != nil {
		snap.SnapshotLoaded = true
		snap.SnapshotAge = now.Sub(s.LoadedAt)
		snap.ExecutionRecords = len(s.Data.Execution.Records)
		snap.UnlinkedOrders = len(s.Data.Links.UnlinkedExecution)
		if snap.ExecutionRecords > 0 {
			snap.UnlinkedRate = float64(snap.UnlinkedOrders) / float64(snap.ExecutionRecords)
		}
	}

	return snap, nil
}
