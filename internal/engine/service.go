package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/store"
)

// ErrNoSnapshot is returned by queries issued before the first refresh
// has completed.
var ErrNoSnapshot = eris.New("engine: no snapshot loaded")

// Fetcher pulls one raw collection from an upstream source.
type Fetcher interface {
	Fetch(ctx context.Context) (model.RawCollection, error)
}

// Snapshot is an immutable sanitized and linked dataset shared by
// concurrent queries.
type Snapshot struct {
	Data     model.Dataset
	Refresh  model.Refresh
	LoadedAt time.Time
}

// Service keeps the latest snapshot and answers queries against it.
// Refreshes are serialized; queries never block on a refresh.
type Service struct {
	engine    *Engine
	pipeline  Fetcher
	execution Fetcher
	store     store.Store

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// NewService creates a Service. st may be nil, in which case refresh
// history is not recorded.
func NewService(e *Engine, pipeline, execution Fetcher, st store.Store) *Service {
	return &Service{engine: e, pipeline: pipeline, execution: execution, store: st}
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Snapshot returns the current snapshot or nil before the first refresh.
func (s *Service) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Refresh fetches both collections, sanitizes and links them and publishes
// the result. A failed refresh leaves the previous snapshot in place.
func (s *Service) Refresh(ctx context.Context, trigger string) (*model.Refresh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	rec, err := s.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("refresh_id", rec.ID), zap.String("trigger", trigger))
	log.Info("refresh: started")

	var rawPipe, rawExec model.RawCollection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawPipe, err = s.pipeline.Fetch(gctx)
		return eris.Wrap(err, "refresh: fetch pipeline")
	})
	g.Go(func() error {
		var err error
		rawExec, err = s.execution.Fetch(gctx)
		return eris.Wrap(err, "refresh: fetch execution")
	})
	if err := g.Wait(); err != nil {
		return s.fail(ctx, rec, err)
	}

	data, err := s.engine.SanitizeAndLink(rawPipe, rawExec)
	if err != nil {
		return s.fail(ctx, rec, err)
	}

	counts := data.Links.CountByConfidence()
	stats := &model.RefreshStats{
		PipelineRaw:       len(rawPipe.Records),
		PipelineRetained:  len(data.Pipeline.Records),
		ExecutionRaw:      len(rawExec.Records),
		ExecutionRetained: len(data.Execution.Records),
		Links: model.LinkStats{
			Exact:             counts[model.ConfidenceExact],
			Fallback:          counts[model.ConfidenceFallback],
			UnlinkedExecution: len(data.Links.UnlinkedExecution),
			UnlinkedPipeline:  len(data.Links.UnlinkedPipeline),
		},
		Caveats:    data.Caveats,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if s.store != nil {
		if err := s.store.CompleteRefresh(ctx, rec.ID, stats); err != nil {
			log.Warn("refresh: record completion", zap.Error(err))
		}
	}

	now := time.Now().UTC()
	rec.Status = model.RefreshComplete
	rec.Stats = stats
	rec.CompletedAt = &now
	s.snap.Store(&Snapshot{Data: data, Refresh: *rec, LoadedAt: now})

	log.Info("refresh: complete",
		zap.Int("pipeline_retained", stats.PipelineRetained),
		zap.Int("execution_retained", stats.ExecutionRetained),
		zap.Int("links_exact", stats.Links.Exact),
		zap.Int("links_fallback", stats.Links.Fallback),
		zap.Int64("duration_ms", stats.DurationMs),
	)
	return rec, nil
}

func (s *Service) begin(ctx context.Context, trigger string) (*model.Refresh, error) {
	if s.store == nil {
		return &model.Refresh{
			ID:        uuid.New().String(),
			Status:    model.RefreshRunning,
			Trigger:   trigger,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
	rec, err := s.store.CreateRefresh(ctx, trigger)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: record start")
	}
	return rec, nil
}

func (s *Service) fail(ctx context.Context, rec *model.Refresh, cause error) (*model.Refresh, error) {
	zap.L().Warn("refresh: failed", zap.String("refresh_id", rec.ID), zap.Error(cause))
	if s.store != nil {
		if err := s.store.FailRefresh(context.WithoutCancel(ctx), rec.ID, cause); err != nil {
			zap.L().Warn("refresh: record failure", zap.String("refresh_id", rec.ID), zap.Error(err))
		}
	}
	now := time.Now().UTC()
	rec.Status = model.RefreshFailed
	rec.Error = cause.Error()
	rec.CompletedAt = &now
	return rec, cause
}

// Ask answers a question against the current snapshot.
func (s *Service) Ask(question string, history []model.Turn) (Answer, *Snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		return Answer{}, nil, ErrNoSnapshot
	}
	ans, err := s.engine.AnswerQuery(question, snap.Data, WithHistory(history))
	return ans, snap, err
}

// Update assembles the leadership update from the current snapshot.
func (s *Service) Update() (model.StructuredSummary, error) {
	snap := s.snap.Load()
	if snap == nil {
		return model.StructuredSummary{}, ErrNoSnapshot
	}
	return s.engine.LeadershipUpdate(snap.Data)
}

// Refreshes lists recorded refreshes, newest first.
func (s *Service) Refreshes(ctx context.Context, filter store.RefreshFilter) ([]model.Refresh, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListRefreshes(ctx, filter)
}

// RunScheduled refreshes every interval until ctx is cancelled. Failures
// are logged and the previous snapshot stays published.
func (s *Service) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx, "schedule"); err != nil && ctx.Err() == nil {
				zap.L().Error("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}
