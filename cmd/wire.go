package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/fetcher"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/narrate"
	"github.com/sells-group/bi-agent/internal/policy"
	"github.com/sells-group/bi-agent/internal/resilience"
	"github.com/sells-group/bi-agent/internal/source"
	"github.com/sells-group/bi-agent/internal/store"
	"github.com/sells-group/bi-agent/pkg/anthropic"
	"github.com/sells-group/bi-agent/pkg/notion"
	"github.com/sells-group/bi-agent/pkg/salesforce"
)

// salesforceLookback bounds the opportunities pulled from Salesforce.
const salesforceLookback = 3 * 365 * 24 * time.Hour

// appEnv holds the wired service and its resources.
type appEnv struct {
	Service  *engine.Service
	Narrator narrate.Narrator
	Store    store.Store
}

// Close releases the store, if any.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode and wires sources, store, engine
// and narrator. The store is optional: when it cannot be opened, refresh
// history is not recorded.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	p, err := policy.FromConfig(cfg.Engine)
	if err != nil {
		return nil, eris.Wrap(err, "load policy")
	}

	pipe, err := newSource(cfg, model.CollectionPipeline, cfg.Sources.Pipeline, cfg.Notion.PipelineDB)
	if err != nil {
		return nil, err
	}
	exec, err := newSource(cfg, model.CollectionExecution, cfg.Sources.Execution, cfg.Notion.ExecutionDB)
	if err != nil {
		return nil, err
	}

	env := &appEnv{Narrator: initNarrator(cfg.Anthropic)}
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("refresh history disabled", zap.Error(err))
	} else {
		env.Store = st
	}

	env.Service = engine.NewService(engine.New(p), pipe, exec, env.Store)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bi-agent.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newSource builds the fetcher for one collection. notionDB is the
// database id used when the source kind is notion.
func newSource(c *config.Config, collection model.Collection, sc config.SourceConfig, notionDB string) (engine.Fetcher, error) {
	retry := resilience.FromConfig(c.Retry)

	switch sc.Kind {
	case config.SourceNotion:
		client := notion.NewClient(c.Notion.Token,
			notion.WithRateLimit(c.Notion.RateLimit),
			notion.WithRetry(retry),
		)
		return source.NewNotion(client, notionDB, collection), nil

	case config.SourceSalesforce:
		client, err := salesforce.Connect(salesforce.JWTConfig{
			LoginURL: c.Salesforce.LoginURL,
			Username: c.Salesforce.Username,
			ClientID: c.Salesforce.ClientID,
			KeyPath:  c.Salesforce.KeyPath,
		})
		if err != nil {
			return nil, eris.Wrap(err, "connect salesforce")
		}
		q := salesforce.OpportunityQuery{CreatedSince: time.Now().Add(-salesforceLookback)}
		return source.NewSalesforce(client, q, source.WithRetry(retry)), nil

	case config.SourceFile:
		return source.NewFile(fetcher.NewRouter(), collection, sc, source.WithRetry(retry)), nil

	default:
		return nil, eris.Errorf("unsupported source kind %q for %s", sc.Kind, collection)
	}
}

// initNarrator uses Claude when an API key is configured and the
// template renderer otherwise.
func initNarrator(ac config.AnthropicConfig) narrate.Narrator {
	if ac.Key == "" {
		return narrate.TemplateNarrator{}
	}
	return narrate.NewClaude(anthropic.NewClient(ac.Key), narrate.ClaudeConfig{
		Model:     ac.Model,
		MaxTokens: int64(ac.MaxTokens),
	})
}
