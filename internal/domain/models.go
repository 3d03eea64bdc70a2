// internal/domain/models.go
package domain

import (
	"math"
	"time"
)

// Missing marks an undefined numeric feature (lag beyond history, absent price, ...).
var Missing = math.NaN()

// IsMissing reports whether v carries no value.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// SeriesKey identifies one (item, store) time series
type SeriesKey struct {
	ItemID  string `json:"item_id" db:"item_id"`
	StoreID string `json:"store_id" db:"store_id"`
}

// ID returns the M5-style series identifier
func (k SeriesKey) ID() string {
	return k.ItemID + "_" + k.StoreID
}

// Less orders keys by store, then item
func (k SeriesKey) Less(o SeriesKey) bool {
	if k.StoreID != o.StoreID {
		return k.StoreID < o.StoreID
	}
	return k.ItemID < o.ItemID
}

// SeriesAttrs holds the immutable categorical attributes of a series
type SeriesAttrs struct {
	ItemID  string `json:"item_id" db:"item_id"`
	DeptID  string `json:"dept_id" db:"dept_id"`
	CatID   string `json:"cat_id" db:"cat_id"`
	StoreID string `json:"store_id" db:"store_id"`
	StateID string `json:"state_id" db:"state_id"`
}

// Key returns the series key for these attributes
func (a SeriesAttrs) Key() SeriesKey {
	return SeriesKey{ItemID: a.ItemID, StoreID: a.StoreID}
}

// TimeStepRecord is one (series, date) row of the feature frame.
// Units is NaN on future covariate rows; PredUnits is NaN until a model scores the row.
type TimeStepRecord struct {
	SeriesAttrs

	Date time.Time `json:"date"`

	Units     float64 `json:"units"`
	PredUnits float64 `json:"pred_units"`

	SellPriceFilled float64 `json:"sell_price_filled"`
	PriceChangePct  float64 `json:"price_change_pct"`
	PriceIsNA       bool    `json:"price_isna"`

	Weekday int  `json:"weekday"`
	Month   int  `json:"month"`
	Year    int  `json:"year"`
	Snap    bool `json:"snap"`
	IsEvent bool `json:"is_event"`

	Lag7       float64 `json:"lag_7"`
	Lag28      float64 `json:"lag_28"`
	RollMean7  float64 `json:"roll_mean_7"`
	RollStd7   float64 `json:"roll_std_7"`
	RollMean28 float64 `json:"roll_mean_28"`
	RollStd28  float64 `json:"roll_std_28"`
}

// NewRecord returns a record with every optional numeric field marked missing.
func NewRecord(attrs SeriesAttrs, date time.Time) TimeStepRecord {
	return TimeStepRecord{
		SeriesAttrs:     attrs,
		Date:            date,
		Units:           Missing,
		PredUnits:       Missing,
		SellPriceFilled: Missing,
		Lag7:            Missing,
		Lag28:           Missing,
		RollMean7:       Missing,
		RollStd7:        Missing,
		RollMean28:      Missing,
		RollStd28:       Missing,
	}
}

// HasPrediction reports whether the row has been scored
func (r *TimeStepRecord) HasPrediction() bool {
	return !IsMissing(r.PredUnits)
}

// InventoryRecommendation is one row of recommendations_inventory.csv
type InventoryRecommendation struct {
	ItemID             string  `json:"item_id" db:"item_id"`
	StoreID            string  `json:"store_id" db:"store_id"`
	AvgPredictedDemand float64 `json:"avg_predicted_demand" db:"avg_predicted_demand"`
	ReorderPoint       float64 `json:"reorder_point" db:"reorder_point"`
	SafetyStock        float64 `json:"safety_stock" db:"safety_stock"`
}

// PricingRecommendation is the retained best markdown candidate for one series
type PricingRecommendation struct {
	ItemID           string  `json:"item_id" db:"item_id"`
	StoreID          string  `json:"store_id" db:"store_id"`
	BasePrice        float64 `json:"base_price" db:"base_price"`
	Markdown         float64 `json:"markdown" db:"markdown"`
	OptPrice         float64 `json:"opt_price" db:"opt_price"`
	Elasticity       float64 `json:"elasticity" db:"elasticity"`
	BaseDemandPerDay float64 `json:"base_demand_per_day" db:"base_demand_per_day"`
	OptDemandPerDay  float64 `json:"opt_demand_per_day" db:"opt_demand_per_day"`
	InventoryOnHand  float64 `json:"inventory_on_hand" db:"inventory_on_hand"`
	Profit           float64 `json:"profit" db:"profit"`
}

// Key returns the series key of the recommendation
func (p PricingRecommendation) Key() SeriesKey {
	return SeriesKey{ItemID: p.ItemID, StoreID: p.StoreID}
}

// AssortmentPick is one selected (store, item) pair
type AssortmentPick struct {
	StoreID    string  `json:"store_id" db:"store_id"`
	CatID      string  `json:"cat_id" db:"cat_id"`
	ItemID     string  `json:"item_id" db:"item_id"`
	BasePrice  float64 `json:"base_price" db:"base_price"`
	Markdown   float64 `json:"markdown" db:"markdown"`
	OptPrice   float64 `json:"opt_price" db:"opt_price"`
	Profit     float64 `json:"profit" db:"profit"`
	Elasticity float64 `json:"elasticity" db:"elasticity"`
	Rank       int     `json:"rank" db:"rank"`
}

// WeekdayNumber returns the M5 wday of t: 1 is Saturday through 7 for Friday.
func WeekdayNumber(t time.Time) int {
	return (int(t.Weekday())+1)%7 + 1
}
