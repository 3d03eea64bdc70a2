// Package source reads and writes feature frames.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
)

// DateLayout is the date format of the date column
const DateLayout = "2006-01-02"

// FrameKind distinguishes history frames (units observed) from future covariate frames.
type FrameKind int

const (
	History FrameKind = iota
	Future
)

// FrameColumns is the column order WriteFrame uses. Readers accept any order.
var FrameColumns = []string{
	"item_id", "dept_id", "cat_id", "store_id", "state_id", "date",
	"units", "pred_units", "sell_price_filled", "price_change_pct", "price_isna",
	"weekday", "month", "year", "snap", "is_event",
	"lag_7", "lag_28", "roll_mean_7", "roll_std_7", "roll_mean_28", "roll_std_28",
}

var lagColumns = []string{"lag_7", "lag_28", "roll_mean_7", "roll_std_7", "roll_mean_28", "roll_std_28"}

func requiredColumns(kind FrameKind) []string {
	if kind == History {
		return []string{"item_id", "store_id", "date", "units"}
	}
	return []string{"item_id", "store_id", "date"}
}

// ReadFrameFile reads a frame from a CSV file on disk
func ReadFrameFile(path string, kind FrameKind) ([]domain.TimeStepRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()
	return ReadFrame(f, kind)
}

// ReadFrame parses a CSV feature frame. Missing required columns and unparsable
// cells are DataErrors. Empty numeric cells are missing values. When a history frame
// carries no lag columns they are derived from units.
func ReadFrame(r io.Reader, kind FrameKind) ([]domain.TimeStepRecord, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapDataError("load", domain.ErrEmptyInput, "frame has no header")
		}
		return nil, domain.WrapDataError("load", err, "failed to read CSV header")
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns(kind) {
		if _, ok := colMap[col]; !ok {
			return nil, domain.NewDataError("load", "missing required column: %s", col)
		}
	}
	hasLags := true
	for _, col := range lagColumns {
		if _, ok := colMap[col]; !ok {
			hasLags = false
		}
	}

	var out []domain.TimeStepRecord
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, domain.WrapDataError("load", err, "line %d", line)
		}

		p := rowParser{rec: rec, cols: colMap, line: line}
		date, err := time.Parse(DateLayout, p.str("date"))
		if err != nil {
			return nil, domain.WrapDataError("load", err, "line %d: invalid date %q", line, p.str("date"))
		}
		row := domain.NewRecord(domain.SeriesAttrs{
			ItemID:  p.str("item_id"),
			DeptID:  p.str("dept_id"),
			CatID:   p.str("cat_id"),
			StoreID: p.str("store_id"),
			StateID: p.str("state_id"),
		}, date)
		if row.ItemID == "" || row.StoreID == "" {
			return nil, domain.NewDataError("load", "line %d: empty item_id or store_id", line)
		}

		row.Units = p.float("units")
		row.PredUnits = p.float("pred_units")
		row.SellPriceFilled = p.float("sell_price_filled")
		row.PriceChangePct = p.float("price_change_pct")
		row.PriceIsNA = p.bool("price_isna")
		row.Weekday = p.int("weekday", domain.WeekdayNumber(date))
		row.Month = p.int("month", int(date.Month()))
		row.Year = p.int("year", date.Year())
		row.Snap = p.bool("snap")
		row.IsEvent = p.bool("is_event")
		row.Lag7 = p.float("lag_7")
		row.Lag28 = p.float("lag_28")
		row.RollMean7 = p.float("roll_mean_7")
		row.RollStd7 = p.float("roll_std_7")
		row.RollMean28 = p.float("roll_mean_28")
		row.RollStd28 = p.float("roll_std_28")
		if p.err != nil {
			return nil, p.err
		}
		if domain.IsMissing(row.PriceChangePct) {
			row.PriceChangePct = 0
		}
		if kind == Future {
			row.Units = domain.Missing
		}
		out = append(out, row)
	}

	if len(out) == 0 {
		return nil, domain.WrapDataError("load", domain.ErrEmptyInput, "frame has no rows")
	}
	if kind == History && !hasLags {
		features.DeriveLags(out, features.V1.Lookback())
	}
	return out, nil
}

type rowParser struct {
	rec  []string
	cols map[string]int
	line int
	err  error
}

func (p *rowParser) str(col string) string {
	i, ok := p.cols[col]
	if !ok || i >= len(p.rec) {
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) float(col string) float64 {
	s := p.str(col)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return domain.Missing
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(col, s, err)
		return domain.Missing
	}
	return v
}

func (p *rowParser) int(col string, fallback int) int {
	s := p.str(col)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// pandas writes integer columns with NaN as floats
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			p.fail(col, s, err)
			return fallback
		}
		return int(f)
	}
	return v
}

func (p *rowParser) bool(col string) bool {
	switch strings.ToLower(p.str(col)) {
	case "", "0", "0.0", "false", "f", "no":
		return false
	case "1", "1.0", "true", "t", "yes":
		return true
	default:
		p.fail(col, p.str(col), errors.New("not a boolean"))
		return false
	}
}

func (p *rowParser) fail(col, value string, err error) {
	if p.err == nil {
		p.err = domain.WrapDataError("load", err, "line %d: column %s: cannot parse %q", p.line, col, value)
	}
}

// WriteFrame writes records with FrameColumns. Missing values are empty cells.
func WriteFrame(w io.Writer, records []domain.TimeStepRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FrameColumns); err != nil {
		return err
	}
	row := make([]string, len(FrameColumns))
	for i := range records {
		r := &records[i]
		row = row[:0]
		row = append(row,
			r.ItemID, r.DeptID, r.CatID, r.StoreID, r.StateID, r.Date.Format(DateLayout),
			FormatFloat(r.Units), FormatFloat(r.PredUnits), FormatFloat(r.SellPriceFilled),
			FormatFloat(r.PriceChangePct), formatBool(r.PriceIsNA),
			strconv.Itoa(r.Weekday), strconv.Itoa(r.Month), strconv.Itoa(r.Year),
			formatBool(r.Snap), formatBool(r.IsEvent),
			FormatFloat(r.Lag7), FormatFloat(r.Lag28), FormatFloat(r.RollMean7),
			FormatFloat(r.RollStd7), FormatFloat(r.RollMean28), FormatFloat(r.RollStd28),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatFloat renders v in shortest form, or "" when it is missing or infinite
func FormatFloat(v float64) string {
	if domain.IsMissing(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
