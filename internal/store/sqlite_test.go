package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RefreshLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r, err := st.CreateRefresh(ctx, "cli")
	require.NoError(t, err)
	assert.Equal(t, model.RefreshRunning, r.Status)

	stats := &model.RefreshStats{
		PipelineRaw:       12,
		PipelineRetained:  10,
		ExecutionRaw:      8,
		ExecutionRetained: 8,
		Links:             model.LinkStats{Exact: 5, Fallback: 2, UnlinkedExecution: 1},
		DurationMs:        1200,
	}
	require.NoError(t, st.CompleteRefresh(ctx, r.ID, stats))

	got, err := st.GetRefresh(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefreshComplete, got.Status)
	assert.Equal(t, "cli", got.Trigger)
	require.NotNil(t, got.Stats)
	assert.Equal(t, stats.Links, got.Stats.Links)
	assert.Equal(t, int64(1200), got.Stats.DurationMs)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(got.CreatedAt))
}

func TestSQLite_FailRefresh(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r, err := st.CreateRefresh(ctx, "http")
	require.NoError(t, err)
	require.NoError(t, st.FailRefresh(ctx, r.ID, errors.New("notion: query database: 502")))

	got, err := st.GetRefresh(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RefreshFailed, got.Status)
	assert.Equal(t, "notion: query database: 502", got.Error)
	assert.Nil(t, got.Stats)
}

func TestSQLite_RefreshNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRefresh(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.CompleteRefresh(ctx, "nope", &model.RefreshStats{})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.FailRefresh(ctx, "nope", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListRefreshes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, trigger := range []string{"cli", "http", "http"} {
		r, err := st.CreateRefresh(ctx, trigger)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	require.NoError(t, st.CompleteRefresh(ctx, ids[0], &model.RefreshStats{}))

	all, err := st.ListRefreshes(ctx, RefreshFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	done, err := st.ListRefreshes(ctx, RefreshFilter{Status: model.RefreshComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	byTrigger, err := st.ListRefreshes(ctx, RefreshFilter{Trigger: "http"})
	require.NoError(t, err)
	assert.Len(t, byTrigger, 2)

	page, err := st.ListRefreshes(ctx, RefreshFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestStoresImplementInterface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
