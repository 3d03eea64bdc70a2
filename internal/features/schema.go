package features

import (
	"fmt"

	"github.com/andresuchdata/merchops/internal/domain"
)

// Feature column names shared by training and inference.
const (
	ColItemID  = "item_id"
	ColDeptID  = "dept_id"
	ColCatID   = "cat_id"
	ColStoreID = "store_id"
	ColStateID = "state_id"

	ColWeekday        = "weekday"
	ColMonth          = "month"
	ColYear           = "year"
	ColSnap           = "snap"
	ColIsEvent        = "is_event"
	ColSellPrice      = "sell_price_filled"
	ColPriceChangePct = "price_change_pct"
	ColPriceIsNA      = "price_isna"
	ColLag7           = "lag_7"
	ColLag28          = "lag_28"
	ColRollMean7      = "roll_mean_7"
	ColRollStd7       = "roll_std_7"
	ColRollMean28     = "roll_mean_28"
	ColRollStd28      = "roll_std_28"
)

type categoricalGetter func(r *domain.TimeStepRecord) string
type numericGetter func(r *domain.TimeStepRecord) float64

var categoricalGetters = map[string]categoricalGetter{
	ColItemID:  func(r *domain.TimeStepRecord) string { return r.ItemID },
	ColDeptID:  func(r *domain.TimeStepRecord) string { return r.DeptID },
	ColCatID:   func(r *domain.TimeStepRecord) string { return r.CatID },
	ColStoreID: func(r *domain.TimeStepRecord) string { return r.StoreID },
	ColStateID: func(r *domain.TimeStepRecord) string { return r.StateID },
}

var numericGetters = map[string]numericGetter{
	ColWeekday:        func(r *domain.TimeStepRecord) float64 { return float64(r.Weekday) },
	ColMonth:          func(r *domain.TimeStepRecord) float64 { return float64(r.Month) },
	ColYear:           func(r *domain.TimeStepRecord) float64 { return float64(r.Year) },
	ColSnap:           func(r *domain.TimeStepRecord) float64 { return boolToFloat(r.Snap) },
	ColIsEvent:        func(r *domain.TimeStepRecord) float64 { return boolToFloat(r.IsEvent) },
	ColSellPrice:      func(r *domain.TimeStepRecord) float64 { return r.SellPriceFilled },
	ColPriceChangePct: func(r *domain.TimeStepRecord) float64 { return r.PriceChangePct },
	ColPriceIsNA:      func(r *domain.TimeStepRecord) float64 { return boolToFloat(r.PriceIsNA) },
	ColLag7:           func(r *domain.TimeStepRecord) float64 { return r.Lag7 },
	ColLag28:          func(r *domain.TimeStepRecord) float64 { return r.Lag28 },
	ColRollMean7:      func(r *domain.TimeStepRecord) float64 { return r.RollMean7 },
	ColRollStd7:       func(r *domain.TimeStepRecord) float64 { return r.RollStd7 },
	ColRollMean28:     func(r *domain.TimeStepRecord) float64 { return r.RollMean28 },
	ColRollStd28:      func(r *domain.TimeStepRecord) float64 { return r.RollStd28 },
}

// Schema is an immutable, versioned list of feature columns. The same Schema value must be
// handed to the trainer and to the recursive projector; models remember the version they
// were fitted against.
type Schema struct {
	version     string
	categorical []string
	numeric     []string
	lookback    int
}

// V1 is the feature layout used by the demand models.
var V1 = MustSchema("v1",
	[]string{ColItemID, ColDeptID, ColCatID, ColStoreID, ColStateID},
	[]string{
		ColWeekday, ColMonth, ColYear, ColSnap, ColIsEvent,
		ColSellPrice, ColPriceChangePct, ColPriceIsNA,
		ColLag7, ColLag28, ColRollMean7, ColRollStd7, ColRollMean28, ColRollStd28,
	},
	28,
)

// NewSchema validates the column lists and builds a Schema
func NewSchema(version string, categorical, numeric []string, lookback int) (Schema, error) {
	if version == "" {
		return Schema{}, fmt.Errorf("schema version is required")
	}
	if lookback < 1 {
		return Schema{}, fmt.Errorf("schema lookback must be positive, got %d", lookback)
	}
	seen := make(map[string]bool)
	for _, c := range categorical {
		if _, ok := categoricalGetters[c]; !ok {
			return Schema{}, fmt.Errorf("unknown categorical column %q", c)
		}
		if seen[c] {
			return Schema{}, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	for _, c := range numeric {
		if _, ok := numericGetters[c]; !ok {
			return Schema{}, fmt.Errorf("unknown numeric column %q", c)
		}
		if seen[c] {
			return Schema{}, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	return Schema{
		version:     version,
		categorical: append([]string(nil), categorical...),
		numeric:     append([]string(nil), numeric...),
		lookback:    lookback,
	}, nil
}

// MustSchema is NewSchema that panics on error, for package-level schemas.
func MustSchema(version string, categorical, numeric []string, lookback int) Schema {
	s, err := NewSchema(version, categorical, numeric, lookback)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Schema) Version() string { return s.version }

// Lookback is the trailing history length the recursive projector must keep.
func (s Schema) Lookback() int { return s.lookback }

// Categorical returns a copy of the categorical column names
func (s Schema) Categorical() []string { return append([]string(nil), s.categorical...) }

// Numeric returns a copy of the numeric column names
func (s Schema) Numeric() []string { return append([]string(nil), s.numeric...) }

// NumericIndex returns the position of a numeric column, or -1.
func (s Schema) NumericIndex(col string) int {
	for i, c := range s.numeric {
		if c == col {
			return i
		}
	}
	return -1
}

// Vector is one record laid out according to a Schema
type Vector struct {
	SchemaVersion string
	Categorical   []int
	Numeric       []float64
}

// Vector encodes r. Categorical values go through enc; missing numerics stay NaN.
func (s Schema) Vector(enc *Encoder, r *domain.TimeStepRecord) Vector {
	v := Vector{
		SchemaVersion: s.version,
		Categorical:   make([]int, len(s.categorical)),
		Numeric:       make([]float64, len(s.numeric)),
	}
	for i, c := range s.categorical {
		v.Categorical[i] = enc.Encode(c, categoricalGetters[c](r))
	}
	for i, c := range s.numeric {
		v.Numeric[i] = numericGetters[c](r)
	}
	return v
}

// CategoricalValue returns the raw value of a categorical column of r
func (s Schema) CategoricalValue(col string, r *domain.TimeStepRecord) string {
	get, ok := categoricalGetters[col]
	if !ok {
		return ""
	}
	return get(r)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
