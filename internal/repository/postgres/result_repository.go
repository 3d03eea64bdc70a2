package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type resultRepository struct {
	db *DB
}

var _ repository.ResultRepository = (*resultRepository)(nil)

func NewResultRepository(db *DB) *resultRepository {
	return &resultRepository{db: db}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

// SaveResult stores the recommendations of one run in a single transaction.
func (r *resultRepository) SaveResult(ctx context.Context, res *pipeline.Result) error {
	runID := res.Summary.RunID
	if runID == "" {
		return fmt.Errorf("result has no run id")
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := saveInventory(ctx, tx, runID, res.Inventory); err != nil {
			return err
		}
		if err := savePricing(ctx, tx, runID, res.Pricing); err != nil {
			return err
		}
		return saveAssortment(ctx, tx, runID, res.Assortment)
	})
}

func saveInventory(ctx context.Context, tx *sqlx.Tx, runID string, recs []domain.InventoryRecommendation) error {
	if len(recs) == 0 {
		return nil
	}
	items := make([]string, len(recs))
	stores := make([]string, len(recs))
	demand := make([]float64, len(recs))
	rop := make([]float64, len(recs))
	safety := make([]float64, len(recs))
	for i, rec := range recs {
		items[i], stores[i] = rec.ItemID, rec.StoreID
		demand[i], rop[i], safety[i] = rec.AvgPredictedDemand, rec.ReorderPoint, rec.SafetyStock
	}

	query := `
		INSERT INTO recommendation_inventory (run_id, item_id, store_id, avg_predicted_demand, reorder_point, safety_stock)
		SELECT $1, t.item_id, t.store_id, t.avg_predicted_demand, t.reorder_point, t.safety_stock
		FROM unnest($2::text[], $3::text[], $4::float8[], $5::float8[], $6::float8[])
			AS t(item_id, store_id, avg_predicted_demand, reorder_point, safety_stock)
	`
	if _, err := tx.ExecContext(ctx, query, runID,
		pq.Array(items), pq.Array(stores), pq.Array(demand), pq.Array(rop), pq.Array(safety)); err != nil {
		return fmt.Errorf("failed to insert inventory recommendations: %w", err)
	}
	return nil
}

func savePricing(ctx context.Context, tx *sqlx.Tx, runID string, recs []domain.PricingRecommendation) error {
	if len(recs) == 0 {
		return nil
	}
	n := len(recs)
	items := make([]string, n)
	stores := make([]string, n)
	basePrices := make([]string, n)
	optPrices := make([]string, n)
	profits := make([]string, n)
	markdowns := make([]float64, n)
	elasticities := make([]float64, n)
	baseDemand := make([]float64, n)
	optDemand := make([]float64, n)
	onHand := make([]float64, n)
	for i, rec := range recs {
		items[i], stores[i] = rec.ItemID, rec.StoreID
		basePrices[i], optPrices[i], profits[i] = money(rec.BasePrice), money(rec.OptPrice), money(rec.Profit)
		markdowns[i], elasticities[i] = rec.Markdown, rec.Elasticity
		baseDemand[i], optDemand[i], onHand[i] = rec.BaseDemandPerDay, rec.OptDemandPerDay, rec.InventoryOnHand
	}

	query := `
		INSERT INTO recommendation_pricing (
			run_id, item_id, store_id, base_price, markdown, opt_price, elasticity,
			base_demand_per_day, opt_demand_per_day, inventory_on_hand, profit
		)
		SELECT $1, t.item_id, t.store_id, t.base_price, t.markdown, t.opt_price, t.elasticity,
			t.base_demand_per_day, t.opt_demand_per_day, t.inventory_on_hand, t.profit
		FROM unnest(
			$2::text[], $3::text[], $4::numeric[], $5::float8[], $6::numeric[], $7::float8[],
			$8::float8[], $9::float8[], $10::float8[], $11::numeric[]
		) AS t(
			item_id, store_id, base_price, markdown, opt_price, elasticity,
			base_demand_per_day, opt_demand_per_day, inventory_on_hand, profit
		)
	`
	if _, err := tx.ExecContext(ctx, query, runID,
		pq.Array(items), pq.Array(stores), pq.Array(basePrices), pq.Array(markdowns), pq.Array(optPrices),
		pq.Array(elasticities), pq.Array(baseDemand), pq.Array(optDemand), pq.Array(onHand), pq.Array(profits)); err != nil {
		return fmt.Errorf("failed to insert pricing recommendations: %w", err)
	}
	return nil
}

func saveAssortment(ctx context.Context, tx *sqlx.Tx, runID string, picks []domain.AssortmentPick) error {
	if len(picks) == 0 {
		return nil
	}
	n := len(picks)
	stores := make([]string, n)
	cats := make([]string, n)
	items := make([]string, n)
	ranks := make([]int64, n)
	profits := make([]string, n)
	for i, p := range picks {
		stores[i], cats[i], items[i] = p.StoreID, p.CatID, p.ItemID
		ranks[i], profits[i] = int64(p.Rank), money(p.Profit)
	}

	query := `
		INSERT INTO recommendation_assortment (run_id, store_id, cat_id, item_id, rank, profit)
		SELECT $1, t.store_id, t.cat_id, t.item_id, t.rank, t.profit
		FROM unnest($2::text[], $3::text[], $4::text[], $5::int4[], $6::numeric[])
			AS t(store_id, cat_id, item_id, rank, profit)
	`
	if _, err := tx.ExecContext(ctx, query, runID,
		pq.Array(stores), pq.Array(cats), pq.Array(items), pq.Array(ranks), pq.Array(profits)); err != nil {
		return fmt.Errorf("failed to insert assortment picks: %w", err)
	}
	return nil
}

// LatestPricing returns the pricing recommendations of the most recent run, by profit.
func (r *resultRepository) LatestPricing(ctx context.Context, storeID string, limit int) ([]domain.PricingRecommendation, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT
			item_id, store_id, base_price::float8 AS base_price, markdown, opt_price::float8 AS opt_price,
			elasticity, base_demand_per_day, opt_demand_per_day, inventory_on_hand, profit::float8 AS profit
		FROM recommendation_pricing
		WHERE run_id = (
			SELECT run_id FROM recommendation_pricing ORDER BY created_at DESC LIMIT 1
		)
			AND ($1 = '' OR store_id = $1)
		ORDER BY profit DESC, store_id, item_id
		LIMIT $2
	`

	var recs []domain.PricingRecommendation
	if err := sqlx.SelectContext(ctx, r.db, &recs, query, storeID, limit); err != nil {
		return nil, fmt.Errorf("failed to get latest pricing recommendations: %w", err)
	}
	return recs, nil
}
