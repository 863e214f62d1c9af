package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/config"
	"github.com/sells-group/bi-agent/internal/model"
)

func TestDefault_Valid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	assert.Equal(t, model.StatusWon, p.StatusSynonyms[model.CollectionPipeline]["h. work order received"])
	assert.Equal(t, model.StatusCompleted, p.StatusSynonyms[model.CollectionExecution]["completed"])
	assert.Equal(t, time.April, p.FiscalYearStartMonth)
	assert.InDelta(t, 0.6, p.LinkSimilarityThreshold, 1e-9)

	v, ok := p.Probability(" High ")
	require.True(t, ok)
	assert.InDelta(t, 0.8, v, 1e-9)
	_, ok = p.Probability("certain")
	assert.False(t, ok)

	assert.True(t, p.IsNullToken("n/a"))
	assert.True(t, p.IsNullToken(""))
	assert.False(t, p.IsNullToken("mining"))
}

func TestFromConfig_Overlay(t *testing.T) {
	p, err := FromConfig(config.EngineConfig{
		LinkSimilarityThreshold: 0.8,
		BacklogAgeThresholdDays: 10,
		FiscalYearStartMonth:    1,
		OpenPipelineStatuses:    []string{"Open"},
		Workers:                 2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.8, p.LinkSimilarityThreshold, 1e-9)
	assert.Equal(t, 10, p.BacklogAgeThresholdDays)
	assert.Equal(t, time.January, p.FiscalYearStartMonth)
	assert.Equal(t, []model.Status{model.StatusOpen}, p.OpenPipelineStatuses)
	assert.Equal(t, 2, p.Workers)
	// Untouched settings keep their defaults.
	assert.InDelta(t, 1.5, p.RiskHighRatio, 1e-9)
}

func TestFromConfig_RejectsUnknownStatus(t *testing.T) {
	_, err := FromConfig(config.EngineConfig{ActiveWorkOrderStatuses: []string{"busy"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status category")
}

func TestFromConfig_RejectsBadRisk(t *testing.T) {
	_, err := FromConfig(config.EngineConfig{RiskHighRatio: 0.5, RiskMediumRatio: 0.9})
	require.Error(t, err)
}

func TestLoadTables_Apply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	content := `
tables:
  status_synonyms:
    pipeline:
      "P. Signed LOI": won
    execution:
      "On Site": ongoing
  status_keywords:
    execution:
      - contains: mobiliz
        status: not_started
  probability_labels:
    Certain: 0.95
  role_hints:
    pipeline:
      revenue: ["contract value"]
  schemas:
    execution:
      fields:
        - name: WO Number
          type: identifier
        - name: Project
          type: text
      roles:
        id: WO Number
        name: Project
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := FromConfig(config.EngineConfig{TablesFile: path})
	require.NoError(t, err)

	assert.Equal(t, model.StatusWon, p.StatusSynonyms[model.CollectionPipeline]["p. signed loi"])
	// Built-in synonyms survive the merge.
	assert.Equal(t, model.StatusLost, p.StatusSynonyms[model.CollectionPipeline]["closed lost"])
	assert.Equal(t, model.StatusOngoing, p.StatusSynonyms[model.CollectionExecution]["on site"])
	require.Len(t, p.StatusKeywords[model.CollectionExecution], 1)
	assert.Equal(t, "mobiliz", p.StatusKeywords[model.CollectionExecution][0].Contains)
	assert.InDelta(t, 0.95, p.ProbabilityLabels["certain"], 1e-9)
	assert.Equal(t, []string{"contract value"}, p.RoleHints[model.CollectionPipeline][model.RoleRevenue])
	assert.NotEmpty(t, p.RoleHints[model.CollectionPipeline][model.RoleSector])

	s := p.Schemas[model.CollectionExecution]
	require.NotNil(t, s)
	assert.Equal(t, "WO Number", s.FieldFor(model.RoleID))
	f, ok := s.Field("Project")
	require.True(t, ok)
	assert.Equal(t, model.TypeText, f.Type)
}

func TestLoadTables_Errors(t *testing.T) {
	_, err := LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tables: [oops"), 0644))
	_, err = LoadTables(path)
	assert.Error(t, err)
}

func TestFromConfig_TablesWithBadStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tables:\n  status_synonyms:\n    pipeline:\n      signed: inked\n"), 0644))

	_, err := FromConfig(config.EngineConfig{TablesFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
