package forecast

import (
	"math"

	"github.com/andresuchdata/merchops/internal/features"
)

// SeasonalNaive predicts last week's value for the same weekday, falling back to
// the 7-day then the 28-day rolling mean, then zero.
type SeasonalNaive struct {
	schema features.Schema
	lag7   int
	mean7  int
	mean28 int
}

var _ Regressor = (*SeasonalNaive)(nil)

// NewSeasonalNaive binds the baseline to the column layout of schema
func NewSeasonalNaive(schema features.Schema) *SeasonalNaive {
	return &SeasonalNaive{
		schema: schema,
		lag7:   schema.NumericIndex(features.ColLag7),
		mean7:  schema.NumericIndex(features.ColRollMean7),
		mean28: schema.NumericIndex(features.ColRollMean28),
	}
}

func (n *SeasonalNaive) SchemaVersion() string { return n.schema.Version() }

func (n *SeasonalNaive) Predict(v features.Vector) float64 {
	for _, idx := range []int{n.lag7, n.mean7, n.mean28} {
		if idx < 0 || idx >= len(v.Numeric) {
			continue
		}
		if x := v.Numeric[idx]; !math.IsNaN(x) && !math.IsInf(x, 0) {
			return clip(x)
		}
	}
	return 0
}
