// Package notion reads work-management databases through the Notion API.
package notion

import (
	"context"
	"errors"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/bi-agent/internal/resilience"
)

// Client defines the Notion API operations used by this application. Both
// are read-only.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s).
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry sets the retry policy applied to each API call.
func WithRetry(cfg resilience.RetryConfig) ClientOption {
	return func(c *notionClient) { c.retry = cfg }
}

// notionClient implements Client by wrapping a *notionapi.Client.
type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a new Notion client with the given integration token.
// Calls are throttled to 3 req/s and retried on 429 and 5xx responses.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *notionClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("notion", "query database")
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		if err := c.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "notion: rate limit")
		}
		resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		return resp, classify(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *notionClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("notion", "get database")
	db, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*notionapi.Database, error) {
		if err := c.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "notion: rate limit")
		}
		db, err := c.inner.Database.Get(ctx, notionapi.DatabaseID(dbID))
		return db, classify(err)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: get database %s", dbID)
	}
	return db, nil
}

// classify marks API errors with a retryable status as transient.
func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return resilience.MarkHTTP(err, apiErr.Status)
	}
	return err
}
