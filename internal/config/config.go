package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Source kinds.
const (
	SourceNotion     = "notion"
	SourceSalesforce = "salesforce"
	SourceFile       = "file"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the refresh history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotionConfig holds Notion API credentials and the two collection databases.
type NotionConfig struct {
	Token       string  `yaml:"token" mapstructure:"token"`
	PipelineDB  string  `yaml:"pipeline_db" mapstructure:"pipeline_db"`
	ExecutionDB string  `yaml:"execution_db" mapstructure:"execution_db"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// AnthropicConfig holds settings for the narrative responder.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SourcesConfig selects where each collection is fetched from.
type SourcesConfig struct {
	Pipeline  SourceConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Execution SourceConfig `yaml:"execution" mapstructure:"execution"`
}

// SourceConfig configures one collection source.
type SourceConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind"`
	Path     string `yaml:"path" mapstructure:"path"`
	Sheet    string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	IDColumn string `yaml:"id_column" mapstructure:"id_column"`
}

// EngineConfig holds the scalar engine settings. Lookup tables live in
// TablesFile.
type EngineConfig struct {
	TablesFile              string   `yaml:"tables_file" mapstructure:"tables_file"`
	LinkSimilarityThreshold float64  `yaml:"link_similarity_threshold" mapstructure:"link_similarity_threshold"`
	BacklogAgeThresholdDays int      `yaml:"backlog_age_threshold_days" mapstructure:"backlog_age_threshold_days"`
	FiscalYearStartMonth    int      `yaml:"fiscal_year_start_month" mapstructure:"fiscal_year_start_month"`
	OpenPipelineStatuses    []string `yaml:"open_pipeline_statuses" mapstructure:"open_pipeline_statuses"`
	ActiveWorkOrderStatuses []string `yaml:"active_work_order_statuses" mapstructure:"active_work_order_statuses"`
	BacklogStatuses         []string `yaml:"backlog_statuses" mapstructure:"backlog_statuses"`
	DateFormats             []string `yaml:"date_formats" mapstructure:"date_formats"`
	RiskHighRatio           float64  `yaml:"risk_high_ratio" mapstructure:"risk_high_ratio"`
	RiskMediumRatio         float64  `yaml:"risk_medium_ratio" mapstructure:"risk_medium_ratio"`
	CaveatLimit             int      `yaml:"caveat_limit" mapstructure:"caveat_limit"`
	Workers                 int      `yaml:"workers" mapstructure:"workers"`
}

// RetryConfig configures retries against upstream sources.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	QueryTimeoutSecs int      `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	// RefreshIntervalMins re-fetches both collections on a timer. Zero
	// refreshes only at startup and on POST /refresh.
	RefreshIntervalMins int `yaml:"refresh_interval_mins" mapstructure:"refresh_interval_mins"`
}

// MonitoringConfig configures refresh health alerts. Alerts are only sent
// when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MaxSnapshotAgeMins    int     `yaml:"max_snapshot_age_mins" mapstructure:"max_snapshot_age_mins"`
	UnlinkedRateThreshold float64 `yaml:"unlinked_rate_threshold" mapstructure:"unlinked_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bi-agent.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.query_timeout_secs", 30)
	v.SetDefault("server.refresh_interval_mins", 60)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.max_snapshot_age_mins", 180)
	v.SetDefault("monitoring.unlinked_rate_threshold", 0.5)
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.pipeline_db", "")
	v.SetDefault("notion.execution_db", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("sources.pipeline.kind", SourceNotion)
	v.SetDefault("sources.pipeline.path", "")
	v.SetDefault("sources.execution.kind", SourceNotion)
	v.SetDefault("sources.execution.path", "")
	v.SetDefault("engine.tables_file", "")
	v.SetDefault("engine.link_similarity_threshold", 0.6)
	v.SetDefault("engine.backlog_age_threshold_days", 30)
	v.SetDefault("engine.fiscal_year_start_month", 4)
	v.SetDefault("engine.open_pipeline_statuses", []string{"open", "negotiation"})
	v.SetDefault("engine.active_work_order_statuses", []string{"ongoing", "not_started", "paused", "partially_completed", "pending"})
	v.SetDefault("engine.backlog_statuses", []string{"pending", "queued"})
	v.SetDefault("engine.risk_high_ratio", 1.5)
	v.SetDefault("engine.risk_medium_ratio", 0.75)
	v.SetDefault("engine.caveat_limit", 5)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks mode-specific requirements. Modes: "query" (any command
// that fetches collections) and "serve" (query plus the HTTP server).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "query", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateSource("pipeline", c.Sources.Pipeline, c.Notion.PipelineDB)...)
	errs = append(errs, c.validateSource("execution", c.Sources.Execution, c.Notion.ExecutionDB)...)

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if c.Engine.LinkSimilarityThreshold < 0 || c.Engine.LinkSimilarityThreshold > 1 {
		errs = append(errs, "engine.link_similarity_threshold must be between 0 and 1")
	}
	if c.Engine.FiscalYearStartMonth < 0 || c.Engine.FiscalYearStartMonth > 12 {
		errs = append(errs, "engine.fiscal_year_start_month must be between 1 and 12")
	}
	if c.Engine.Workers < 0 || c.Engine.Workers > 64 {
		errs = append(errs, "engine.workers must be between 1 and 64")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Server.RefreshIntervalMins < 0 {
		errs = append(errs, "server.refresh_interval_mins must be >= 0")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Monitoring.UnlinkedRateThreshold < 0 || c.Monitoring.UnlinkedRateThreshold > 1 {
		errs = append(errs, "monitoring.unlinked_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSource(name string, s SourceConfig, db string) []string {
	var errs []string
	switch s.Kind {
	case SourceNotion:
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if db == "" {
			errs = append(errs, fmt.Sprintf("notion.%s_db is required", name))
		}
	case SourceSalesforce:
		if name != "pipeline" {
			errs = append(errs, "salesforce can only serve the pipeline collection")
		}
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.client_id, username and key_path are required")
		}
	case SourceFile:
		if s.Path == "" {
			errs = append(errs, fmt.Sprintf("sources.%s.path is required", name))
		}
	default:
		errs = append(errs, fmt.Sprintf("sources.%s.kind %q is not notion, salesforce or file", name, s.Kind))
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
