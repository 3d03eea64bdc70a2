// Package repository declares the persistence ports of the engine.
package repository

import (
	"context"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/source"
)

// TopItem is one row of the top-selling items query
type TopItem struct {
	ItemID     string  `json:"item_id" db:"item_id"`
	StoreID    string  `json:"store_id" db:"store_id"`
	CatID      string  `json:"cat_id" db:"cat_id"`
	TotalUnits float64 `json:"total_units" db:"total_units"`
	AvgPrice   float64 `json:"avg_price" db:"avg_price"`
	Days       int     `json:"days" db:"days"`
}

// FrameRepository stores feature frames
type FrameRepository interface {
	LoadFrame(ctx context.Context, kind source.FrameKind) ([]domain.TimeStepRecord, error)
	SaveFrame(ctx context.Context, kind source.FrameKind, records []domain.TimeStepRecord) error
	TopItems(ctx context.Context, storeID string, limit int) ([]TopItem, error)
}

// ResultRepository stores the recommendations of engine runs
type ResultRepository interface {
	SaveResult(ctx context.Context, res *pipeline.Result) error
	LatestPricing(ctx context.Context, storeID string, limit int) ([]domain.PricingRecommendation, error)
}
