package features

import (
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
)

// DeriveLags fills the lag and rolling columns of every record from the units that
// precede it in its own series, using the same trailing buffer as recursive
// projection. Rows with missing units are not pushed into the buffer. records is
// modified in place; its order is unchanged.
func DeriveLags(records []domain.TimeStepRecord, lookback int) {
	idx := make(map[domain.SeriesKey][]int)
	var keys []domain.SeriesKey
	for i := range records {
		k := records[i].Key()
		if _, ok := idx[k]; !ok {
			keys = append(keys, k)
		}
		idx[k] = append(idx[k], i)
	}

	for _, k := range keys {
		rows := idx[k]
		sort.SliceStable(rows, func(a, b int) bool { return records[rows[a]].Date.Before(records[rows[b]].Date) })
		buf := NewTrailingBuffer(lookback)
		for _, i := range rows {
			r := &records[i]
			r.Lag7 = buf.Lag(7)
			r.Lag28 = buf.Lag(28)
			r.RollMean7, r.RollStd7 = buf.Rolling(7)
			r.RollMean28, r.RollStd28 = buf.Rolling(28)
			if !domain.IsMissing(r.Units) {
				buf.Push(r.Units)
			}
		}
	}
}
