package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/merchops/internal/cache"
	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const inventoryCSV = `item_id,store_id,avg_predicted_demand,reorder_point,safety_stock
FOODS_1,CA_1,4.5,40.1,8.2
FOODS_2,TX_1,3.25,30,6
HOBBIES_1,CA_1,1,9.5,
`

const forecastCSV = `id,item_id,store_id,date,pred_units,sell_price_filled,snap,is_event
FOODS_1_CA_1,FOODS_1,CA_1,2016-05-23,4.2,2.5,1,0
FOODS_1_CA_1,FOODS_1,CA_1,2016-05-24,3.9,2.5,0,0
FOODS_2_TX_1,FOODS_2,TX_1,2016-05-23,1.1,3,0,1
`

type countingCache struct {
	mu      sync.Mutex
	entries map[cache.ReportQuery][]byte
	sets    int
}

func (c *countingCache) Get(_ context.Context, q cache.ReportQuery) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[q]
	return b, ok, nil
}

func (c *countingCache) Set(_ context.Context, q cache.ReportQuery, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[cache.ReportQuery][]byte)
	}
	c.entries[q] = payload
	c.sets++
	return nil
}

func (c *countingCache) Close() error { return nil }

func (c *countingCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return nil
}

type fakeRunner struct {
	summary *pipeline.Summary
	err     error
	calls   int
}

func (f *fakeRunner) RunAll(context.Context) (*pipeline.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func (f *fakeRunner) Retrain(context.Context) (*service.RetrainReport, error) {
	f.calls++
	return &service.RetrainReport{Model: "linear"}, f.err
}

func (f *fakeRunner) ForecastFuture(context.Context) (*service.ForecastReport, error) {
	f.calls++
	return &service.ForecastReport{Series: 2, Rows: 56}, f.err
}

func writeReports(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		report.SummaryFile:        `{"run_id":"r-1","pricing_recommendations_rows":12}`,
		report.InventoryFile:      inventoryCSV,
		report.FutureForecastFile: forecastCSV,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestRouter(t *testing.T, c cache.ReportCache, runner *fakeRunner) *gin.Engine {
	t.Helper()
	svc := service.NewReportService(report.NewStore(writeReports(t)), service.WithReportCache(c))
	services := &Services{Reports: svc}
	if runner != nil {
		services.Pipeline = runner
	}
	return NewRouter(services, nil)
}

func get(t *testing.T, r http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, NewRouter(nil, nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSummary(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	w := get(t, r, "/api/v1/summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"run_id":"r-1","pricing_recommendations_rows":12}`, w.Body.String())
}

func TestRecommendations(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	t.Run("store filter and numeric cells", func(t *testing.T) {
		w := get(t, r, "/api/v1/recs/inventory?store_id=CA_1")
		require.Equal(t, http.StatusOK, w.Code)

		var rows []map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "FOODS_1", rows[0]["item_id"])
		assert.Equal(t, 40.1, rows[0]["reorder_point"])
		assert.Nil(t, rows[1]["safety_stock"])
	})

	t.Run("limit", func(t *testing.T) {
		w := get(t, r, "/api/v1/recs/inventory?limit=1")
		require.Equal(t, http.StatusOK, w.Code)
		var rows []map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
		assert.Len(t, rows, 1)
	})

	t.Run("invalid kind", func(t *testing.T) {
		w := get(t, r, "/api/v1/recs/bogus")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not yet published", func(t *testing.T) {
		w := get(t, r, "/api/v1/recs/pricing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("sql kinds without database", func(t *testing.T) {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/api/v1/recs/sql_top_items").Code)
		assert.Equal(t, http.StatusServiceUnavailable, get(t, r, "/api/v1/recs/sql_pricing").Code)
	})
}

func TestFutureForecast(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	w := get(t, r, "/api/v1/forecast/future?store_id=CA_1&item_id=FOODS_1")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2016-05-23", rows[0]["date"])
	assert.Equal(t, 4.2, rows[0]["pred_units"])
}

func TestRecommendationsAreCached(t *testing.T) {
	c := &countingCache{}
	r := newTestRouter(t, c, nil)

	first := get(t, r, "/api/v1/recs/inventory?store_id=TX_1")
	second := get(t, r, "/api/v1/recs/inventory?store_id=TX_1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, c.sets)

	get(t, r, "/api/v1/recs/inventory?store_id=CA_1")
	assert.Equal(t, 2, c.sets)
}

func TestDownloads(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w := get(t, r, "/api/v1/downloads/"+report.InventoryFile)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), report.InventoryFile)
	assert.Equal(t, inventoryCSV, w.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/v1/downloads/secrets.env").Code)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/v1/downloads/"+report.PricingFile).Code)
}

func TestPipelineTriggers(t *testing.T) {
	runner := &fakeRunner{summary: &pipeline.Summary{RunID: "r-2", PricingRecommendationsRows: 3}}
	r := newTestRouter(t, nil, runner)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"r-2"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/forecast_future", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rows":56`)
	assert.Equal(t, 2, runner.calls)
}

func TestPipelineErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"busy", service.ErrRunInProgress, http.StatusConflict},
		{"data", domain.NewDataError("train", "history frame has no rows"), http.StatusUnprocessableEntity},
		{"infra", assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, nil, &fakeRunner{err: tc.err})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/run", nil))
			assert.Equal(t, tc.want, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), `"error"`))
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("merchops_engine_runs_total 1\n"))
	})
	r := NewRouter(&Services{Metrics: metricsHandler}, []string{"*"})
	w := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "merchops_engine_runs_total")
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}

const trackedRunID = "5f0c7c54-8a56-4b0e-9d3e-1f0f3c1a2b3c"

type fakeRunReader struct {
	run *pipeline.Run
	err error
}

func (f *fakeRunReader) GetRun(_ context.Context, id string) (*pipeline.Run, error) {
	if f.run != nil && f.run.ID == id {
		return f.run, f.err
	}
	return nil, f.err
}

func (f *fakeRunReader) GetLatestRun(context.Context, string) (*pipeline.Run, error) {
	return f.run, f.err
}

func (f *fakeRunReader) ListRuns(context.Context, string, int) ([]*pipeline.Run, error) {
	if f.run == nil {
		return nil, f.err
	}
	return []*pipeline.Run{f.run}, f.err
}

func (f *fakeRunReader) GetStageJobsByRunID(_ context.Context, id string) ([]*pipeline.StageJob, error) {
	skipped := domain.SkipCounts{}
	skipped.Add(domain.SkipDegenerateVariance, 3)
	return []*pipeline.StageJob{
		{ID: 1, RunID: id, Stage: pipeline.StageTrain, Status: pipeline.StatusCompleted, Rows: 40},
		{ID: 2, RunID: id, Stage: pipeline.StagePricing, Status: pipeline.StatusCompleted, Rows: 12, Skipped: skipped},
	}, nil
}

func (f *fakeRunReader) GetRunStats(_ context.Context, _ string, since time.Time) (*pipeline.RunStats, error) {
	return &pipeline.RunStats{Since: since, Runs: 1, RowsProduced: 52}, f.err
}

func newRunsRouter(reader *fakeRunReader) *gin.Engine {
	return NewRouter(&Services{Runs: service.NewRunService(reader)}, nil)
}

func TestRunRoutes(t *testing.T) {
	started := time.Date(2016, 5, 22, 2, 0, 0, 0, time.UTC)
	r := newRunsRouter(&fakeRunReader{run: &pipeline.Run{
		ID: trackedRunID, PipelineName: pipeline.EngineName, Status: pipeline.StatusCompleted,
		TotalStages: 5, CompletedStages: 5, TotalRows: 52, StartedAt: started,
	}})

	t.Run("list", func(t *testing.T) {
		w := get(t, r, "/api/v1/pipeline/runs?limit=5&days=3")
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Runs  []pipeline.Run    `json:"runs"`
			Stats pipeline.RunStats `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Runs, 1)
		assert.Equal(t, trackedRunID, body.Runs[0].ID)
		assert.Equal(t, int64(52), body.Stats.RowsProduced)
	})

	t.Run("detail", func(t *testing.T) {
		w := get(t, r, "/api/v1/pipeline/runs/"+trackedRunID)
		require.Equal(t, http.StatusOK, w.Code)

		var body service.RunDetail
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, pipeline.StatusCompleted, body.Run.Status)
		require.Len(t, body.Stages, 2)
		assert.Equal(t, 3, body.Stages[1].Skipped[domain.SkipDegenerateVariance])
	})

	t.Run("latest", func(t *testing.T) {
		w := get(t, r, "/api/v1/pipeline/runs/latest")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), trackedRunID)
	})

	t.Run("malformed id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/v1/pipeline/runs/42").Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, r, "/api/v1/pipeline/runs/00000000-0000-0000-0000-000000000001").Code)
	})
}

func TestRunRoutes_NoRuns(t *testing.T) {
	r := newRunsRouter(&fakeRunReader{})

	w := get(t, r, "/api/v1/pipeline/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runs":[]`)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/v1/pipeline/runs/latest").Code)

	failing := newRunsRouter(&fakeRunReader{err: assert.AnError})
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/api/v1/pipeline/runs").Code)
}

func TestRunRoutesAbsentWithoutTracking(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/v1/pipeline/runs").Code)
}
