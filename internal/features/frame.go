package features

import (
	"sort"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
)

// SeriesGroups is a frame split per series, each group sorted by date.
type SeriesGroups struct {
	Keys []domain.SeriesKey
	Rows map[domain.SeriesKey][]domain.TimeStepRecord
}

// GroupBySeries splits records per (item, store). Keys are sorted by store then item;
// rows keep their input order for equal dates.
func GroupBySeries(records []domain.TimeStepRecord) SeriesGroups {
	g := SeriesGroups{Rows: make(map[domain.SeriesKey][]domain.TimeStepRecord)}
	for _, r := range records {
		key := r.Key()
		if _, ok := g.Rows[key]; !ok {
			g.Keys = append(g.Keys, key)
		}
		g.Rows[key] = append(g.Rows[key], r)
	}
	sort.Slice(g.Keys, func(i, j int) bool { return g.Keys[i].Less(g.Keys[j]) })
	for _, rows := range g.Rows {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	}
	return g
}

// Len returns the number of series
func (g SeriesGroups) Len() int { return len(g.Keys) }

// MaxDate returns the latest date in records, and false for an empty input.
func MaxDate(records []domain.TimeStepRecord) (time.Time, bool) {
	var latest time.Time
	for i, r := range records {
		if i == 0 || r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, len(records) > 0
}

// SplitByHorizon returns rows dated on or before (max date - horizon days) and rows after it.
func SplitByHorizon(records []domain.TimeStepRecord, horizonDays int) (train, valid []domain.TimeStepRecord) {
	latest, ok := MaxDate(records)
	if !ok {
		return nil, nil
	}
	cut := latest.AddDate(0, 0, -horizonDays)
	for _, r := range records {
		if r.Date.After(cut) {
			valid = append(valid, r)
		} else {
			train = append(train, r)
		}
	}
	return train, valid
}

// CategoryIndex maps every series in records to its category.
func CategoryIndex(records []domain.TimeStepRecord) map[domain.SeriesKey]string {
	idx := make(map[domain.SeriesKey]string)
	for _, r := range records {
		if _, ok := idx[r.Key()]; !ok {
			idx[r.Key()] = r.CatID
		}
	}
	return idx
}
