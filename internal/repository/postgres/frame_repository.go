package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/repository"
	"github.com/andresuchdata/merchops/internal/source"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const frameInsertBatch = 5000

type frameRepository struct {
	db *DB
}

var _ repository.FrameRepository = (*frameRepository)(nil)

func NewFrameRepository(db *DB) *frameRepository {
	return &frameRepository{db: db}
}

type frameRow struct {
	ItemID          string          `db:"item_id"`
	DeptID          string          `db:"dept_id"`
	CatID           string          `db:"cat_id"`
	StoreID         string          `db:"store_id"`
	StateID         string          `db:"state_id"`
	Date            time.Time       `db:"date"`
	Units           sql.NullFloat64 `db:"units"`
	SellPriceFilled sql.NullFloat64 `db:"sell_price_filled"`
	PriceChangePct  sql.NullFloat64 `db:"price_change_pct"`
	PriceIsNA       bool            `db:"price_isna"`
	Weekday         int             `db:"weekday"`
	Month           int             `db:"month"`
	Year            int             `db:"year"`
	Snap            bool            `db:"snap"`
	IsEvent         bool            `db:"is_event"`
	Lag7            sql.NullFloat64 `db:"lag_7"`
	Lag28           sql.NullFloat64 `db:"lag_28"`
	RollMean7       sql.NullFloat64 `db:"roll_mean_7"`
	RollStd7        sql.NullFloat64 `db:"roll_std_7"`
	RollMean28      sql.NullFloat64 `db:"roll_mean_28"`
	RollStd28       sql.NullFloat64 `db:"roll_std_28"`
}

func (r frameRow) record() domain.TimeStepRecord {
	rec := domain.NewRecord(domain.SeriesAttrs{
		ItemID: r.ItemID, DeptID: r.DeptID, CatID: r.CatID, StoreID: r.StoreID, StateID: r.StateID,
	}, time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC))
	rec.Units = nullable(r.Units)
	rec.SellPriceFilled = nullable(r.SellPriceFilled)
	rec.PriceChangePct = nullable(r.PriceChangePct)
	if domain.IsMissing(rec.PriceChangePct) {
		rec.PriceChangePct = 0
	}
	rec.PriceIsNA = r.PriceIsNA
	rec.Weekday, rec.Month, rec.Year = r.Weekday, r.Month, r.Year
	rec.Snap, rec.IsEvent = r.Snap, r.IsEvent
	rec.Lag7 = nullable(r.Lag7)
	rec.Lag28 = nullable(r.Lag28)
	rec.RollMean7 = nullable(r.RollMean7)
	rec.RollStd7 = nullable(r.RollStd7)
	rec.RollMean28 = nullable(r.RollMean28)
	rec.RollStd28 = nullable(r.RollStd28)
	return rec
}

func nullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return domain.Missing
	}
	return v.Float64
}

func nullFloat(v float64) sql.NullFloat64 {
	if domain.IsMissing(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// LoadFrame reads a history or future frame ordered by store, item and date.
func (r *frameRepository) LoadFrame(ctx context.Context, kind source.FrameKind) ([]domain.TimeStepRecord, error) {
	query := `
		SELECT
			item_id, dept_id, cat_id, store_id, state_id, date,
			units, sell_price_filled, price_change_pct, price_isna,
			weekday, month, year, snap, is_event,
			lag_7, lag_28, roll_mean_7, roll_std_7, roll_mean_28, roll_std_28
		FROM feature_frame
		WHERE is_future = $1
		ORDER BY store_id, item_id, date
	`

	var rows []frameRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, kind == source.Future); err != nil {
		return nil, fmt.Errorf("failed to load feature frame: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapDataError("load", domain.ErrEmptyInput, "feature_frame has no rows (future=%t)", kind == source.Future)
	}

	out := make([]domain.TimeStepRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
		if kind == source.Future {
			out[i].Units = domain.Missing
		}
	}
	return out, nil
}

// SaveFrame replaces the stored frame of the given kind.
func (r *frameRepository) SaveFrame(ctx context.Context, kind source.FrameKind, records []domain.TimeStepRecord) error {
	future := kind == source.Future
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM feature_frame WHERE is_future = $1`, future); err != nil {
			return fmt.Errorf("failed to clear feature frame: %w", err)
		}
		for start := 0; start < len(records); start += frameInsertBatch {
			end := start + frameInsertBatch
			if end > len(records) {
				end = len(records)
			}
			if err := insertFrameBatch(ctx, tx, future, records[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertFrameBatch(ctx context.Context, tx *sqlx.Tx, future bool, records []domain.TimeStepRecord) error {
	n := len(records)
	itemIDs := make([]string, n)
	deptIDs := make([]string, n)
	catIDs := make([]string, n)
	storeIDs := make([]string, n)
	stateIDs := make([]string, n)
	dates := make([]string, n)
	weekdays := make([]int64, n)
	months := make([]int64, n)
	years := make([]int64, n)
	priceIsNA := make([]bool, n)
	snaps := make([]bool, n)
	events := make([]bool, n)
	var floats [9][]sql.NullFloat64
	for k := range floats {
		floats[k] = make([]sql.NullFloat64, n)
	}

	for i, rec := range records {
		itemIDs[i], deptIDs[i], catIDs[i] = rec.ItemID, rec.DeptID, rec.CatID
		storeIDs[i], stateIDs[i] = rec.StoreID, rec.StateID
		dates[i] = rec.Date.Format(source.DateLayout)
		weekdays[i], months[i], years[i] = int64(rec.Weekday), int64(rec.Month), int64(rec.Year)
		priceIsNA[i], snaps[i], events[i] = rec.PriceIsNA, rec.Snap, rec.IsEvent
		for k, v := range []float64{
			rec.Units, rec.SellPriceFilled, rec.PriceChangePct,
			rec.Lag7, rec.Lag28, rec.RollMean7, rec.RollStd7, rec.RollMean28, rec.RollStd28,
		} {
			floats[k][i] = nullFloat(v)
		}
	}

	query := `
		INSERT INTO feature_frame (
			item_id, dept_id, cat_id, store_id, state_id, date, is_future,
			units, sell_price_filled, price_change_pct,
			lag_7, lag_28, roll_mean_7, roll_std_7, roll_mean_28, roll_std_28,
			weekday, month, year, price_isna, snap, is_event
		)
		SELECT
			t.item_id, t.dept_id, t.cat_id, t.store_id, t.state_id, t.date, $7,
			t.units, t.sell_price_filled, t.price_change_pct,
			t.lag_7, t.lag_28, t.roll_mean_7, t.roll_std_7, t.roll_mean_28, t.roll_std_28,
			t.weekday, t.month, t.year, t.price_isna, t.snap, t.is_event
		FROM unnest(
			$1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::date[],
			$8::float8[], $9::float8[], $10::float8[],
			$11::float8[], $12::float8[], $13::float8[], $14::float8[], $15::float8[], $16::float8[],
			$17::int2[], $18::int2[], $19::int2[], $20::bool[], $21::bool[], $22::bool[]
		) AS t(
			item_id, dept_id, cat_id, store_id, state_id, date,
			units, sell_price_filled, price_change_pct,
			lag_7, lag_28, roll_mean_7, roll_std_7, roll_mean_28, roll_std_28,
			weekday, month, year, price_isna, snap, is_event
		)
	`
	_, err := tx.ExecContext(ctx, query,
		pq.Array(itemIDs), pq.Array(deptIDs), pq.Array(catIDs), pq.Array(storeIDs), pq.Array(stateIDs), pq.Array(dates),
		future,
		pq.Array(floats[0]), pq.Array(floats[1]), pq.Array(floats[2]),
		pq.Array(floats[3]), pq.Array(floats[4]), pq.Array(floats[5]), pq.Array(floats[6]), pq.Array(floats[7]), pq.Array(floats[8]),
		pq.Array(weekdays), pq.Array(months), pq.Array(years),
		pq.Array(priceIsNA), pq.Array(snaps), pq.Array(events),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feature frame batch: %w", err)
	}
	return nil
}

// TopItems ranks history series by total units sold
func (r *frameRepository) TopItems(ctx context.Context, storeID string, limit int) ([]repository.TopItem, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT
			item_id,
			store_id,
			MIN(cat_id) AS cat_id,
			COALESCE(SUM(units), 0) AS total_units,
			COALESCE(AVG(sell_price_filled), 0) AS avg_price,
			COUNT(*) AS days
		FROM feature_frame
		WHERE NOT is_future
			AND ($1 = '' OR store_id = $1)
		GROUP BY item_id, store_id
		ORDER BY total_units DESC, store_id, item_id
		LIMIT $2
	`

	var items []repository.TopItem
	if err := sqlx.SelectContext(ctx, r.db, &items, query, storeID, limit); err != nil {
		return nil, fmt.Errorf("failed to get top items: %w", err)
	}
	return items, nil
}
