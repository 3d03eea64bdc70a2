package features

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestTrailingBuffer_LagMissingWhenShort(t *testing.T) {
	b := NewTrailingBuffer(28)
	for i := 1; i <= 5; i++ {
		b.Push(float64(i))
	}

	assert.True(t, domain.IsMissing(b.Lag(7)), "lag beyond history must stay missing, not zero")
	assert.True(t, domain.IsMissing(b.Lag(28)))
	assert.Equal(t, 5.0, b.Lag(1))
	assert.Equal(t, 1.0, b.Lag(5))
}

func TestTrailingBuffer_DropsOldestWhenFull(t *testing.T) {
	b := NewTrailingBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Push(float64(i))
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 5.0, b.Lag(1))
	assert.Equal(t, 3.0, b.Lag(3))
	assert.True(t, domain.IsMissing(b.Lag(4)))
}

func TestTrailingBuffer_Rolling(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		window   int
		wantMean float64
		wantStd  float64
		missing  bool
	}{
		{name: "empty", window: 7, wantStd: 0, missing: true},
		{name: "single value", values: []float64{4}, window: 7, wantMean: 4, wantStd: 0},
		{name: "fewer than window uses all", values: []float64{2, 4}, window: 7, wantMean: 3, wantStd: 1},
		{name: "window trims oldest", values: []float64{100, 1, 1, 1}, window: 3, wantMean: 1, wantStd: 0},
		{name: "population std", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, window: 8, wantMean: 5, wantStd: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTrailingBuffer(28)
			for _, v := range tt.values {
				b.Push(v)
			}
			mean, std := b.Rolling(tt.window)
			if tt.missing {
				assert.True(t, math.IsNaN(mean))
			} else {
				assert.InDelta(t, tt.wantMean, mean, 1e-12)
			}
			assert.InDelta(t, tt.wantStd, std, 1e-12)
		})
	}
}

func TestEncoder_UnknownValuesMapToReservedCode(t *testing.T) {
	records := []domain.TimeStepRecord{
		domain.NewRecord(domain.SeriesAttrs{ItemID: "B", StoreID: "CA_1", CatID: "FOODS", DeptID: "FOODS_1", StateID: "CA"}, day(0)),
		domain.NewRecord(domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1", CatID: "FOODS", DeptID: "FOODS_1", StateID: "CA"}, day(0)),
	}
	enc := FitEncoder(V1, records)

	assert.Equal(t, "v1", enc.SchemaVersion)
	assert.Equal(t, 1, enc.Encode(ColItemID, "A"))
	assert.Equal(t, 2, enc.Encode(ColItemID, "B"))
	assert.Equal(t, UnknownCode, enc.Encode(ColItemID, "never-seen"))
	assert.Equal(t, UnknownCode, enc.Encode("no_such_column", "A"))
	assert.Equal(t, 3, enc.Cardinality(ColItemID))

	var nilEnc *Encoder
	assert.Equal(t, UnknownCode, nilEnc.Encode(ColItemID, "A"))
}

func TestSchema_VectorFollowsColumnOrder(t *testing.T) {
	attrs := domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1", CatID: "FOODS", DeptID: "FOODS_1", StateID: "CA"}
	r := domain.NewRecord(attrs, day(0))
	r.Weekday = 3
	r.Snap = true
	r.SellPriceFilled = 2.5
	r.Lag7 = 11

	enc := FitEncoder(V1, []domain.TimeStepRecord{r})
	v := V1.Vector(enc, &r)

	require.Len(t, v.Categorical, len(V1.Categorical()))
	require.Len(t, v.Numeric, len(V1.Numeric()))
	assert.Equal(t, "v1", v.SchemaVersion)
	assert.Equal(t, 3.0, v.Numeric[V1.NumericIndex(ColWeekday)])
	assert.Equal(t, 1.0, v.Numeric[V1.NumericIndex(ColSnap)])
	assert.Equal(t, 2.5, v.Numeric[V1.NumericIndex(ColSellPrice)])
	assert.Equal(t, 11.0, v.Numeric[V1.NumericIndex(ColLag7)])
	assert.True(t, math.IsNaN(v.Numeric[V1.NumericIndex(ColLag28)]))
	for _, code := range v.Categorical {
		assert.Equal(t, 1, code)
	}
}

func TestSchema_AccessorsReturnCopies(t *testing.T) {
	cols := V1.Numeric()
	cols[0] = "mutated"
	assert.Equal(t, ColWeekday, V1.Numeric()[0])
	assert.Equal(t, -1, V1.NumericIndex("mutated"))
}

func TestNewSchema_Validation(t *testing.T) {
	_, err := NewSchema("", nil, nil, 28)
	assert.Error(t, err)
	_, err = NewSchema("v2", []string{"nope"}, nil, 28)
	assert.Error(t, err)
	_, err = NewSchema("v2", nil, []string{ColLag7, ColLag7}, 28)
	assert.Error(t, err)
	_, err = NewSchema("v2", nil, []string{ColLag7}, 0)
	assert.Error(t, err)

	s, err := NewSchema("v2", []string{ColStoreID}, []string{ColLag7}, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Lookback())
}

func TestGroupBySeries_SortsKeysAndDates(t *testing.T) {
	a := domain.SeriesAttrs{ItemID: "A", StoreID: "TX_1"}
	b := domain.SeriesAttrs{ItemID: "B", StoreID: "CA_1"}
	records := []domain.TimeStepRecord{
		domain.NewRecord(a, day(2)),
		domain.NewRecord(b, day(1)),
		domain.NewRecord(a, day(0)),
	}

	g := GroupBySeries(records)
	require.Equal(t, 2, g.Len())
	assert.Equal(t, b.Key(), g.Keys[0])
	assert.Equal(t, a.Key(), g.Keys[1])
	assert.Equal(t, day(0), g.Rows[a.Key()][0].Date)
	assert.Equal(t, day(2), g.Rows[a.Key()][1].Date)
}

func TestSplitByHorizon(t *testing.T) {
	a := domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1"}
	var records []domain.TimeStepRecord
	for i := 0; i < 10; i++ {
		records = append(records, domain.NewRecord(a, day(i)))
	}

	train, valid := SplitByHorizon(records, 3)
	assert.Len(t, train, 7)
	assert.Len(t, valid, 3)
	assert.Equal(t, day(7), valid[0].Date)

	train, valid = SplitByHorizon(nil, 3)
	assert.Nil(t, train)
	assert.Nil(t, valid)
}

func TestDeriveLags_MatchesTrailingBuffer(t *testing.T) {
	a := domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1"}
	var records []domain.TimeStepRecord
	// reverse order to check per-series date sorting
	for i := 29; i >= 0; i-- {
		r := domain.NewRecord(a, day(i))
		r.Units = float64(i)
		records = append(records, r)
	}
	DeriveLags(records, 28)

	byDay := make(map[int]domain.TimeStepRecord)
	for _, r := range records {
		byDay[int(r.Date.Sub(day(0)).Hours()/24)] = r
	}

	assert.True(t, domain.IsMissing(byDay[0].Lag7))
	assert.True(t, domain.IsMissing(byDay[0].RollMean7))
	assert.True(t, domain.IsMissing(byDay[6].Lag7))
	assert.Equal(t, 0.0, byDay[7].Lag7)
	assert.Equal(t, 2.0, byDay[9].Lag7)
	assert.True(t, domain.IsMissing(byDay[27].Lag28))
	assert.Equal(t, 1.0, byDay[29].Lag28)
	// mean of days 22..28
	assert.InDelta(t, 25.0, byDay[29].RollMean7, 1e-12)
	assert.Equal(t, 29.0, records[0].Units, "input order is kept")
}

func TestDeriveLags_SkipsMissingUnits(t *testing.T) {
	a := domain.SeriesAttrs{ItemID: "A", StoreID: "CA_1"}
	records := make([]domain.TimeStepRecord, 3)
	for i := range records {
		records[i] = domain.NewRecord(a, day(i))
	}
	records[0].Units = 4
	records[2].Units = 9
	DeriveLags(records, 28)

	assert.Equal(t, 4.0, records[1].RollMean7)
	assert.Equal(t, 4.0, records[2].RollMean7, "missing units are not pushed")
}
