package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/merchops/internal/cache"
	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/forecast"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStorage) ListObjects(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (m *memStorage) DownloadObject(context.Context, string, string) error { return nil }

func (m *memStorage) UploadObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

type countingCache struct {
	cache.ReportCache
	invalidations int
}

func (c *countingCache) Close() error { return nil }

func (c *countingCache) InvalidateAll(context.Context) error {
	c.invalidations++
	return nil
}

type recordingSink struct{ runs []string }

func (s *recordingSink) SaveResult(_ context.Context, res *pipeline.Result) error {
	s.runs = append(s.runs, res.Summary.RunID)
	return nil
}

func sampleResult() *pipeline.Result {
	res := &pipeline.Result{
		Summary: pipeline.Summary{
			RunID:             "run-1",
			SchemaVersion:     "v1",
			Model:             "linear",
			GeneratedAt:       time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC),
			ForecastValidRMSE: forecast.Score(1.5),
			ForecastValidWAPE: forecast.Score(math.NaN()),
		},
		Inventory: []domain.InventoryRecommendation{
			{ItemID: "A", StoreID: "CA_1", AvgPredictedDemand: 10, ReorderPoint: 75.5, SafetyStock: 5.5},
		},
		Assortment: []domain.AssortmentPick{
			{StoreID: "CA_1", CatID: "FOODS", ItemID: "A", BasePrice: 2, Markdown: 0.1, OptPrice: 1.8, Profit: 100, Elasticity: -2, Rank: 1},
		},
	}
	for i := 0; i < 3; i++ {
		res.Pricing = append(res.Pricing, domain.PricingRecommendation{
			ItemID: string(rune('A' + i)), StoreID: "CA_1", BasePrice: 2, Markdown: 0.1, OptPrice: 1.8,
			Elasticity: -2, BaseDemandPerDay: 10, OptDemandPerDay: 12, InventoryOnHand: 900, Profit: 1.0 / 3,
		})
	}
	return res
}

func TestWritePricing_ColumnOrderAndMoney(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePricing(&buf, sampleResult().Pricing[:1]))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "item_id,store_id,base_price,markdown,opt_price,elasticity,base_demand_per_day,opt_demand_per_day,inventory_on_hand,profit", lines[0])
	assert.Equal(t, "A,CA_1,2.0000,0.1,1.8000,-2,10,12,900,0.3333", lines[1])
}

func TestWriteForecast_MissingValuesAreEmpty(t *testing.T) {
	r := domain.NewRecord(domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1"}, time.Date(2016, 5, 23, 0, 0, 0, 0, time.UTC))
	r.PredUnits = 3.25
	r.Snap = true

	var buf bytes.Buffer
	require.NoError(t, WriteForecast(&buf, []domain.TimeStepRecord{r}))
	assert.Equal(t, "id,item_id,store_id,date,pred_units,sell_price_filled,snap,is_event\nA_CA_1,A,CA_1,2016-05-23,3.25,,1,0\n", buf.String())
}

func TestPublisher_Publish(t *testing.T) {
	dir := t.TempDir()
	store := &memStorage{}
	cc := &countingCache{ReportCache: cache.NewNoopReportCache()}
	sink := &recordingSink{}
	p := NewPublisher(dir, WithStorage(store), WithCache(cc), WithSink(sink), WithPricingRows(2))

	require.NoError(t, p.Publish(context.Background(), sampleResult()))

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(summary, &decoded))
	assert.Equal(t, 1.5, decoded["forecast_valid_rmse"])
	assert.Nil(t, decoded["forecast_valid_wape"], "undefined WAPE is null")
	assert.Equal(t, "run-1", decoded["run_id"])

	pricingCSV, err := os.ReadFile(filepath.Join(dir, PricingFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(pricingCSV)), "\n"), 3, "header plus capped rows")

	_, err = os.Stat(filepath.Join(dir, FutureForecastFile))
	assert.True(t, os.IsNotExist(err), "no forecast rows, no forecast file")

	keys := make([]string, 0, len(store.objects))
	for k := range store.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Contains(t, keys, "reports/summary_metrics.json")
	assert.Contains(t, keys, "runs/run-1/recommendations_pricing.csv")
	assert.Len(t, keys, 10)

	assert.Equal(t, []string{"run-1"}, sink.runs)
	assert.Equal(t, 1, cc.invalidations)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files are renamed away")
}

func TestStore_TableFilterAndLimit(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()
	res.Pricing = append(res.Pricing, domain.PricingRecommendation{ItemID: "Z", StoreID: "TX_1", BasePrice: 1, Profit: 1})
	require.NoError(t, NewPublisher(dir).Publish(context.Background(), res))
	s := NewStore(dir)

	tbl, err := s.Table(PricingFile, Filter{StoreID: "ca_1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)

	tbl, err = s.Table(PricingFile, Filter{StoreID: "TX_1"})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	rec := tbl.Records()[0]
	assert.Equal(t, "Z", rec["item_id"])
	assert.Equal(t, 1.0, rec["base_price"])

	tbl, err = s.Table(InventoryFile, Filter{ItemID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)

	_, err = s.Table(FutureForecastFile, Filter{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Path("../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := s.Summary()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"run_id": "run-1"`)
}

func TestRecordsNullsEmptyNumbers(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("id,date,pred_units\nA_CA_1,2016-05-23,\n"), Filter{})
	require.NoError(t, err)
	rec := tbl.Records()[0]
	assert.Equal(t, "2016-05-23", rec["date"])
	assert.Nil(t, rec["pred_units"])
}

func TestRecommendationFile(t *testing.T) {
	name, ok := RecommendationFile(KindAssortment)
	assert.True(t, ok)
	assert.Equal(t, AssortmentFile, name)
	_, ok = RecommendationFile("sql_top_items")
	assert.False(t, ok)
}
