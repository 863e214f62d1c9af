// Package source fetches raw collections from the platforms that hold
// them: Notion databases, Salesforce opportunities and exported files.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/resilience"
)

// Source fetches one collection.
type Source interface {
	Fetch(ctx context.Context) (model.RawCollection, error)
}

// Option configures a source's failure handling.
type Option func(*guard)

// WithRetry retries failed fetches that look transient.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *guard) { g.retry = &cfg }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(g *guard) { g.breaker = b }
}

// guard runs upstream calls behind a circuit breaker and, when configured,
// a retry loop. Retries happen inside the breaker so a burst of transient
// failures counts once.
type guard struct {
	breaker *resilience.Breaker
	retry   *resilience.RetryConfig
}

func newGuard(name string, opts []Option) guard {
	g := guard{breaker: resilience.NewBreaker(name, 5, 30*time.Second)}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

func (g guard) run(ctx context.Context, source, op string, fn func(ctx context.Context) error) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		if g.retry == nil {
			return fn(ctx)
		}
		cfg := *g.retry
		cfg.OnRetry = resilience.RetryLogger(source, op)
		return resilience.Do(ctx, cfg, fn)
	})
}

// uniqueByID keeps the first record for each non-empty item id.
func uniqueByID(c model.Collection, records []model.RawRecord) []model.RawRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	dropped := 0
	for _, rec := range records {
		id, _ := rec[model.FieldItemID].(string)
		if id != "" {
			if seen[id] {
				dropped++
				continue
			}
			seen[id] = true
		}
		out = append(out, rec)
	}
	if dropped > 0 {
		zap.L().Warn("source: dropped duplicate item ids",
			zap.String("collection", string(c)),
			zap.Int("dropped", dropped),
		)
	}
	return out
}
