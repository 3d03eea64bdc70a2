package postgres

import (
	"context"
	"fmt"
)

// Schema creates the frame and recommendation tables
const Schema = `
CREATE TABLE IF NOT EXISTS feature_frame (
	item_id           TEXT NOT NULL,
	dept_id           TEXT NOT NULL DEFAULT '',
	cat_id            TEXT NOT NULL DEFAULT '',
	store_id          TEXT NOT NULL,
	state_id          TEXT NOT NULL DEFAULT '',
	date              DATE NOT NULL,
	is_future         BOOLEAN NOT NULL DEFAULT FALSE,
	units             DOUBLE PRECISION,
	sell_price_filled DOUBLE PRECISION,
	price_change_pct  DOUBLE PRECISION,
	price_isna        BOOLEAN NOT NULL DEFAULT FALSE,
	weekday           SMALLINT NOT NULL,
	month             SMALLINT NOT NULL,
	year              SMALLINT NOT NULL,
	snap              BOOLEAN NOT NULL DEFAULT FALSE,
	is_event          BOOLEAN NOT NULL DEFAULT FALSE,
	lag_7             DOUBLE PRECISION,
	lag_28            DOUBLE PRECISION,
	roll_mean_7       DOUBLE PRECISION,
	roll_std_7        DOUBLE PRECISION,
	roll_mean_28      DOUBLE PRECISION,
	roll_std_28       DOUBLE PRECISION,
	PRIMARY KEY (is_future, store_id, item_id, date)
);

CREATE TABLE IF NOT EXISTS recommendation_inventory (
	run_id               UUID NOT NULL,
	item_id              TEXT NOT NULL,
	store_id             TEXT NOT NULL,
	avg_predicted_demand DOUBLE PRECISION NOT NULL,
	reorder_point        DOUBLE PRECISION NOT NULL,
	safety_stock         DOUBLE PRECISION NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, store_id, item_id)
);

CREATE TABLE IF NOT EXISTS recommendation_pricing (
	run_id              UUID NOT NULL,
	item_id             TEXT NOT NULL,
	store_id            TEXT NOT NULL,
	base_price          NUMERIC(12,4) NOT NULL,
	markdown            DOUBLE PRECISION NOT NULL,
	opt_price           NUMERIC(12,4) NOT NULL,
	elasticity          DOUBLE PRECISION NOT NULL,
	base_demand_per_day DOUBLE PRECISION NOT NULL,
	opt_demand_per_day  DOUBLE PRECISION NOT NULL,
	inventory_on_hand   DOUBLE PRECISION NOT NULL,
	profit              NUMERIC(14,4) NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, store_id, item_id)
);

CREATE TABLE IF NOT EXISTS recommendation_assortment (
	run_id     UUID NOT NULL,
	store_id   TEXT NOT NULL,
	cat_id     TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	profit     NUMERIC(14,4) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, store_id, item_id)
);
`

// Migrate applies Schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate frame schema: %w", err)
	}
	return nil
}
