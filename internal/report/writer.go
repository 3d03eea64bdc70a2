package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/pricing"
	"github.com/andresuchdata/merchops/internal/source"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 4

var (
	inventoryColumns  = []string{"item_id", "store_id", "avg_predicted_demand", "reorder_point", "safety_stock"}
	pricingColumns    = []string{"item_id", "store_id", "base_price", "markdown", "opt_price", "elasticity", "base_demand_per_day", "opt_demand_per_day", "inventory_on_hand", "profit"}
	assortmentColumns = []string{"store_id", "cat_id", "item_id", "base_price", "markdown", "opt_price", "profit", "elasticity", "rank"}
	forecastColumns   = []string{"id", "item_id", "store_id", "date", "pred_units", "sell_price_filled", "snap", "is_event"}
	elasticityColumns = []string{"item_id", "store_id", "elasticity", "n_obs"}
)

// money renders a currency amount with fixed places; missing values are empty.
func money(v float64) string {
	if source.FormatFloat(v) == "" {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(moneyPlaces)
}

func num(v float64) string { return source.FormatFloat(v) }

func writeCSV(w io.Writer, header []string, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInventory writes recommendations_inventory.csv
func WriteInventory(w io.Writer, recs []domain.InventoryRecommendation) error {
	return writeCSV(w, inventoryColumns, len(recs), func(i int) []string {
		r := recs[i]
		return []string{r.ItemID, r.StoreID, num(r.AvgPredictedDemand), num(r.ReorderPoint), num(r.SafetyStock)}
	})
}

// WritePricing writes recommendations_pricing.csv
func WritePricing(w io.Writer, recs []domain.PricingRecommendation) error {
	return writeCSV(w, pricingColumns, len(recs), func(i int) []string {
		r := recs[i]
		return []string{
			r.ItemID, r.StoreID, money(r.BasePrice), num(r.Markdown), money(r.OptPrice), num(r.Elasticity),
			num(r.BaseDemandPerDay), num(r.OptDemandPerDay), num(r.InventoryOnHand), money(r.Profit),
		}
	})
}

// WriteAssortment writes recommendations_assortment.csv
func WriteAssortment(w io.Writer, picks []domain.AssortmentPick) error {
	return writeCSV(w, assortmentColumns, len(picks), func(i int) []string {
		p := picks[i]
		return []string{
			p.StoreID, p.CatID, p.ItemID, money(p.BasePrice), num(p.Markdown), money(p.OptPrice),
			money(p.Profit), num(p.Elasticity), strconv.Itoa(p.Rank),
		}
	})
}

// WriteForecast writes the future forecast rows
func WriteForecast(w io.Writer, rows []domain.TimeStepRecord) error {
	return writeCSV(w, forecastColumns, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.Key().ID(), r.ItemID, r.StoreID, r.Date.Format(source.DateLayout), num(r.PredUnits),
			money(r.SellPriceFilled), flag(r.Snap), flag(r.IsEvent),
		}
	})
}

// WriteElasticities writes elasticity_estimates.csv
func WriteElasticities(w io.Writer, est []pricing.Elasticity) error {
	return writeCSV(w, elasticityColumns, len(est), func(i int) []string {
		e := est[i]
		return []string{e.ItemID, e.StoreID, num(e.Elasticity), strconv.Itoa(e.NObs)}
	})
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
