package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/narrate"
	"github.com/sells-group/bi-agent/internal/policy"
	"github.com/sells-group/bi-agent/internal/sanitize"
	"github.com/sells-group/bi-agent/internal/source"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewSource(t *testing.T) {
	c := &config.Config{Notion: config.NotionConfig{Token: "secret", RateLimit: 3}}

	src, err := newSource(c, model.CollectionPipeline, config.SourceConfig{Kind: config.SourceNotion}, "db-1")
	require.NoError(t, err)
	assert.IsType(t, &source.NotionSource{}, src)

	src, err = newSource(c, model.CollectionExecution, config.SourceConfig{Kind: config.SourceFile, Path: "orders.csv"}, "")
	require.NoError(t, err)
	assert.IsType(t, &source.FileSource{}, src)

	_, err = newSource(c, model.CollectionPipeline, config.SourceConfig{Kind: "monday"}, "")
	assert.ErrorContains(t, err, "unsupported source kind")
}

func TestNewSource_SalesforceRequiresCredentials(t *testing.T) {
	c := &config.Config{Salesforce: config.SalesforceConfig{Username: "ops@example.com"}}
	_, err := newSource(c, model.CollectionPipeline, config.SourceConfig{Kind: config.SourceSalesforce}, "")
	assert.ErrorContains(t, err, "connect salesforce")
}

func TestNewSource_FileFetch(t *testing.T) {
	path := writeFile(t, "deals.csv", "Deal Name,Deal Stage,Deal Value\nCoal Survey,Won,2.5 Cr\n")
	src, err := newSource(&config.Config{}, model.CollectionPipeline, config.SourceConfig{Kind: config.SourceFile, Path: path}, "")
	require.NoError(t, err)

	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, raw.Records, 1)
	assert.Equal(t, "Won", raw.Records[0]["Deal Stage"])
}

func TestApplyFileOverrides(t *testing.T) {
	t.Cleanup(func() { pipelineFile, executionFile = "", "" })

	c := &config.Config{Sources: config.SourcesConfig{
		Pipeline:  config.SourceConfig{Kind: config.SourceNotion},
		Execution: config.SourceConfig{Kind: config.SourceNotion},
	}}
	pipelineFile = "deals.xlsx"
	applyFileOverrides(c)

	assert.Equal(t, config.SourceConfig{Kind: config.SourceFile, Path: "deals.xlsx"}, c.Sources.Pipeline)
	assert.Equal(t, config.SourceNotion, c.Sources.Execution.Kind)
}

func TestInitStore(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "history.db")}}
	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	rec, err := st.CreateRefresh(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, model.RefreshRunning, rec.Status)

	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}
	_, err = initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitNarrator(t *testing.T) {
	assert.IsType(t, narrate.TemplateNarrator{}, initNarrator(config.AnthropicConfig{}))
	assert.IsType(t, &narrate.ClaudeNarrator{}, initNarrator(config.AnthropicConfig{Key: "sk-test", Model: "m", MaxTokens: 256}))
}

func TestFormatRefresh(t *testing.T) {
	var buf bytes.Buffer
	formatRefresh(&buf, &model.Refresh{
		ID:     "r-1",
		Status: model.RefreshComplete,
		Stats: &model.RefreshStats{
			PipelineRaw: 4, PipelineRetained: 3, ExecutionRaw: 2, ExecutionRetained: 2,
			Links:      model.LinkStats{Exact: 1, Fallback: 1},
			DurationMs: 42,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Refresh r-1: complete")
	assert.Contains(t, out, "3 retained of 4")
	assert.Contains(t, out, "1 exact, 1 fuzzy, 0 work orders unlinked")

	buf.Reset()
	formatRefresh(&buf, &model.Refresh{ID: "r-2", Status: model.RefreshFailed})
	assert.Equal(t, "Refresh r-2: failed\n", buf.String())
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Refresh{
		{ID: "a1", Status: model.RefreshComplete, Trigger: "api", CreatedAt: time.Date(2025, 5, 15, 9, 30, 0, 0, time.UTC),
			Stats: &model.RefreshStats{PipelineRaw: 3, PipelineRetained: 2, ExecutionRaw: 5, ExecutionRetained: 5, Links: model.LinkStats{Exact: 2, Fallback: 1}}},
		{ID: "b2", Status: model.RefreshFailed, Trigger: "cli", CreatedAt: time.Date(2025, 5, 14, 8, 0, 0, 0, time.UTC)},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "2+1")
	assert.Contains(t, out, "2025-05-15 09:30")
	assert.Contains(t, out, "failed")
}

func TestFormatSchema(t *testing.T) {
	records := []model.RawRecord{
		{model.FieldItemID: "D1", model.FieldItemName: "Coal Survey", "Deal Stage": "Won", "Deal Value": "2.5 Cr"},
	}
	s := sanitize.InferSchema(policy.Default(), model.CollectionPipeline, records, nil)

	var buf bytes.Buffer
	formatSchema(&buf, s, len(records))
	out := buf.String()
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "Deal Value")
	assert.Contains(t, out, "1 records")
	assert.NotContains(t, out, "missing required roles")
}

func TestExplain(t *testing.T) {
	err := explain(model.NewDataShapeError(model.CollectionExecution, "execution_backlog", model.RoleStatus))
	assert.ErrorContains(t, err, "cannot compute execution_backlog")

	assert.Equal(t, assert.AnError, explain(assert.AnError))
}

func TestRefresh_ExplainsDataShapeError(t *testing.T) {
	svc := newTestService(deals, []model.RawRecord{{"Title": "orphan"}})
	rec, err := refresh(context.Background(), svc)
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot compute identity: the execution collection has no field for")
	require.NotNil(t, rec)
	assert.Equal(t, model.RefreshFailed, rec.Status)

	rec, err = refresh(context.Background(), newTestService(deals, workOrders))
	require.NoError(t, err)
	assert.Equal(t, model.RefreshComplete, rec.Status)
}
