package source

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
)

// SynthParams shapes a generated demo frame
type SynthParams struct {
	Stores      []string
	Categories  []string
	ItemsPerCat int
	Days        int
	FutureDays  int
	Start       time.Time
	Seed        int64
	// Elasticity drives the price response of generated units
	Elasticity float64
}

// DefaultSynthParams returns a small two-store frame
func DefaultSynthParams() SynthParams {
	return SynthParams{
		Stores:      []string{"CA_1", "TX_1"},
		Categories:  []string{"FOODS", "HOBBIES", "HOUSEHOLD"},
		ItemsPerCat: 4,
		Days:        180,
		FutureDays:  28,
		Start:       time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:        42,
		Elasticity:  -1.5,
	}
}

// Synthesize generates a history frame with derived lags and a matching future
// covariate frame. Demand follows a weekly profile and responds to periodic
// promotions with the configured elasticity. Output is deterministic for a seed.
func Synthesize(p SynthParams) (history, future []domain.TimeStepRecord) {
	rng := rand.New(rand.NewSource(p.Seed))
	weekly := []float64{1.35, 1.3, 0.9, 0.85, 0.85, 0.95, 1.1}

	for _, store := range p.Stores {
		state := store
		if len(store) >= 2 {
			state = store[:2]
		}
		for _, cat := range p.Categories {
			for n := 1; n <= p.ItemsPerCat; n++ {
				attrs := domain.SeriesAttrs{
					ItemID:  fmt.Sprintf("%s_1_%03d", cat, n),
					DeptID:  cat + "_1",
					CatID:   cat,
					StoreID: store,
					StateID: state,
				}
				base := 1 + rng.Float64()*9
				price := 1 + math.Round(rng.Float64()*900)/100
				promoEvery := 14 + rng.Intn(14)

				prev := price
				for d := 0; d < p.Days+p.FutureDays; d++ {
					date := p.Start.AddDate(0, 0, d)
					r := domain.NewRecord(attrs, date)
					r.Weekday = domain.WeekdayNumber(date)
					r.Month = int(date.Month())
					r.Year = date.Year()
					r.Snap = date.Day() <= 10 && state != "WI"
					r.IsEvent = date.Month() == time.December && date.Day() == 25

					cur := price
					if d%promoEvery < 3 {
						cur = math.Round(price*0.8*100) / 100
					}
					r.SellPriceFilled = cur
					r.PriceChangePct = cur/prev - 1
					prev = cur

					if d < p.Days {
						mu := base * weekly[r.Weekday-1] * math.Pow(cur/price, p.Elasticity)
						if r.Snap {
							mu *= 1.1
						}
						units := math.Round(mu + rng.NormFloat64()*math.Sqrt(mu))
						r.Units = math.Max(units, 0)
						history = append(history, r)
					} else {
						future = append(future, r)
					}
				}
			}
		}
	}

	features.DeriveLags(history, features.V1.Lookback())
	return history, future
}
