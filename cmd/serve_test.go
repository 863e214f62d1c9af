package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/narrate"
	"github.com/sells-group/bi-agent/internal/policy"
)

type fetcherFunc func(ctx context.Context) (model.RawCollection, error)

func (f fetcherFunc) Fetch(ctx context.Context) (model.RawCollection, error) { return f(ctx) }

func static(records ...model.RawRecord) engine.Fetcher {
	return fetcherFunc(func(context.Context) (model.RawCollection, error) {
		return model.RawCollection{Records: records}, nil
	})
}

var deals = []model.RawRecord{
	{model.FieldItemID: "D1", model.FieldItemName: "Coal Survey", "Deal Stage": "Won", "Sector": "Mining", "Deal Value": "2.5 Cr", "Close Date (A)": "2025-04-20"},
	{model.FieldItemID: "D2", model.FieldItemName: "Metro Mapping", "Deal Stage": "Open", "Sector": "Railways", "Deal Value": "30L", "Closure Probability": "High", "Tentative Close Date": "2025-06-01"},
}

var workOrders = []model.RawRecord{
	{model.FieldItemID: "W1", model.FieldItemName: "Coal Survey Phase 1", "Deal Name": "Coal Survey", "Execution Status": "Ongoing", "Date of PO": "2025-04-01"},
	{model.FieldItemID: "W2", model.FieldItemName: "Queued Survey", "Deal Name": "", "Execution Status": "Queued", "Date of PO": "2025-01-01"},
}

func fixedClock() time.Time { return time.Date(2025, 5, 15, 9, 0, 0, 0, time.UTC) }

func newTestService(pipeline, execution []model.RawRecord) *engine.Service {
	e := engine.New(policy.Default(), engine.WithClock(fixedClock))
	return engine.NewService(e, static(pipeline...), static(execution...), nil)
}

func loadedRouter(t *testing.T, pipeline, execution []model.RawRecord) http.Handler {
	t.Helper()
	svc := newTestService(pipeline, execution)
	_, err := svc.Refresh(context.Background(), "test")
	require.NoError(t, err)
	return buildRouter(svc, narrate.TemplateNarrator{}, routerOptions{QueryTimeout: 5 * time.Second})
}

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(newTestService(deals, workOrders), narrate.TemplateNarrator{}, routerOptions{})

	rr := do(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["snapshot_loaded"])
}

func TestRouter_Health_Loaded(t *testing.T) {
	rr := do(loadedRouter(t, deals, workOrders), http.MethodGet, "/health", nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["snapshot_loaded"])
	assert.Equal(t, "2025-05-15", body["as_of"])
}

func TestRouter_Chat(t *testing.T) {
	rr := do(loadedRouter(t, deals, workOrders), http.MethodPost, "/chat", chatRequest{Message: "What is our closed revenue this quarter?"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "revenue", resp.Intent)
	assert.False(t, resp.ClarificationNeeded)
	require.NotEmpty(t, resp.Metrics)
	assert.Equal(t, model.MetricClosedRevenue, resp.Metrics[0].Name)
	assert.InDelta(t, 25000000, resp.Metrics[0].Value, 1e-6)
	assert.Contains(t, resp.Response, "₹2.50 Cr")
	assert.Equal(t, 2, resp.UsedData.PipelineRecords)
	assert.Equal(t, 2, resp.UsedData.ExecutionRecords)
}

func TestRouter_Chat_Clarification(t *testing.T) {
	rr := do(loadedRouter(t, deals, workOrders), http.MethodPost, "/chat", chatRequest{Message: "How are we doing?"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.ClarificationNeeded)
	assert.Equal(t, "ambiguous", resp.Intent)
	assert.NotEmpty(t, resp.Response)
	assert.Empty(t, resp.Metrics)
}

func TestRouter_Chat_EmptyMessage(t *testing.T) {
	h := loadedRouter(t, deals, workOrders)

	rr := do(h, http.MethodPost, "/chat", chatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "message is required")

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Chat_NoSnapshot(t *testing.T) {
	h := buildRouter(newTestService(deals, workOrders), narrate.TemplateNarrator{}, routerOptions{})

	rr := do(h, http.MethodPost, "/chat", chatRequest{Message: "What is our revenue?"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(h, http.MethodPost, "/leadership-update", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_Chat_DataShapeError(t *testing.T) {
	noValues := []model.RawRecord{
		{model.FieldItemID: "D1", model.FieldItemName: "Coal Survey", "Deal Stage": "Won"},
	}
	rr := do(loadedRouter(t, noValues, workOrders), http.MethodPost, "/chat", chatRequest{Message: "What is our closed revenue?"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "pipeline", body["collection"])
	assert.Equal(t, "closed revenue", body["capability"])
	assert.NotEmpty(t, body["missing"])
}

func TestRouter_LeadershipUpdate(t *testing.T) {
	rr := do(loadedRouter(t, deals, workOrders), http.MethodPost, "/leadership-update", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp updateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Leadership Update: Q1 FY2026", resp.Summary.Title)
	assert.Contains(t, resp.Response, "## Leadership Update: Q1 FY2026")
}

func TestRouter_Refresh(t *testing.T) {
	h := buildRouter(newTestService(deals, workOrders), narrate.TemplateNarrator{}, routerOptions{})

	rr := do(h, http.MethodPost, "/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rec model.Refresh
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, model.RefreshComplete, rec.Status)
	assert.Equal(t, "api", rec.Trigger)

	rr = do(h, http.MethodPost, "/chat", chatRequest{Message: "What is our closed revenue?"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_Refresh_Failure(t *testing.T) {
	broken := fetcherFunc(func(context.Context) (model.RawCollection, error) {
		return model.RawCollection{}, context.DeadlineExceeded
	})
	e := engine.New(policy.Default(), engine.WithClock(fixedClock))
	svc := engine.NewService(e, broken, static(workOrders...), nil)
	h := buildRouter(svc, narrate.TemplateNarrator{}, routerOptions{})

	rr := do(h, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "failed")
}

func TestRouter_Runs(t *testing.T) {
	h := loadedRouter(t, deals, workOrders)

	rr := do(h, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = do(h, http.MethodGet, "/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := buildRouter(newTestService(deals, workOrders), narrate.TemplateNarrator{}, routerOptions{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteError_Internal(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), assert.AnError.Error())
}
