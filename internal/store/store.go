// Package store persists the history of snapshot refreshes. Collection data
// itself is never stored.
package store

import (
	"context"

	"github.com/sells-group/bi-agent/internal/model"
)

// RefreshFilter specifies criteria for listing refreshes.
type RefreshFilter struct {
	Status  model.RefreshStatus `json:"status,omitempty"`
	Trigger string              `json:"trigger,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for refresh history.
type Store interface {
	CreateRefresh(ctx context.Context, trigger string) (*model.Refresh, error)
	CompleteRefresh(ctx context.Context, id string, stats *model.RefreshStats) error
	FailRefresh(ctx context.Context, id string, cause error) error
	GetRefresh(ctx context.Context, id string) (*model.Refresh, error)
	ListRefreshes(ctx context.Context, filter RefreshFilter) ([]model.Refresh, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
