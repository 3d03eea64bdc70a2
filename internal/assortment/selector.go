// Package assortment selects a category-diverse, profit-ranked item list per store
// from pricing recommendations.
package assortment

import (
	"fmt"
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
)

// Params configures Select
type Params struct {
	MinItemsPerCat   int
	MaxItemsPerStore int
}

func (p Params) Validate() error {
	if p.MinItemsPerCat < 0 {
		return fmt.Errorf("min items per category must be >= 0, got %d", p.MinItemsPerCat)
	}
	if p.MaxItemsPerStore <= 0 {
		return fmt.Errorf("max items per store must be > 0, got %d", p.MaxItemsPerStore)
	}
	return nil
}

// Annotate joins recommendations with their category. Pairs without a known category
// keep an empty CatID and are grouped together.
func Annotate(recs []domain.PricingRecommendation, categories map[domain.SeriesKey]string) []domain.AssortmentPick {
	out := make([]domain.AssortmentPick, len(recs))
	for i, r := range recs {
		out[i] = domain.AssortmentPick{
			StoreID:    r.StoreID,
			CatID:      categories[r.Key()],
			ItemID:     r.ItemID,
			BasePrice:  r.BasePrice,
			Markdown:   r.Markdown,
			OptPrice:   r.OptPrice,
			Profit:     r.Profit,
			Elasticity: r.Elasticity,
		}
	}
	return out
}

// Select builds each store's assortment: first up to MinItemsPerCat top-profit items
// from every category, then the best remaining items store-wide until MaxItemsPerStore.
// When the category floor alone overflows the cap, the floor picks are trimmed by profit.
// Output is sorted by store, then profit descending, with a 1-based rank per store.
func Select(cands []domain.AssortmentPick, p Params) ([]domain.AssortmentPick, error) {
	if err := p.Validate(); err != nil {
		return nil, domain.WrapDataError("assortment", err, "invalid assortment parameters")
	}
	if len(cands) == 0 {
		return nil, nil
	}

	byStore := make(map[string][]domain.AssortmentPick)
	var stores []string
	for _, c := range cands {
		if _, ok := byStore[c.StoreID]; !ok {
			stores = append(stores, c.StoreID)
		}
		byStore[c.StoreID] = append(byStore[c.StoreID], c)
	}
	sort.Strings(stores)

	var out []domain.AssortmentPick
	for _, store := range stores {
		out = append(out, selectStore(byStore[store], p)...)
	}
	return out, nil
}

func selectStore(cands []domain.AssortmentPick, p Params) []domain.AssortmentPick {
	sorted := append([]domain.AssortmentPick(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Profit > sorted[j].Profit })

	picked := make(map[string]bool)
	var picks []domain.AssortmentPick

	// diversity floor: categories in order of their best item
	var cats []string
	perCat := make(map[string][]domain.AssortmentPick)
	for _, c := range sorted {
		if _, ok := perCat[c.CatID]; !ok {
			cats = append(cats, c.CatID)
		}
		perCat[c.CatID] = append(perCat[c.CatID], c)
	}
	for _, cat := range cats {
		taken := 0
		for _, c := range perCat[cat] {
			if taken >= p.MinItemsPerCat {
				break
			}
			if picked[c.ItemID] {
				continue
			}
			picked[c.ItemID] = true
			picks = append(picks, c)
			taken++
		}
	}

	// fill the remaining capacity store-wide
	for _, c := range sorted {
		if len(picks) >= p.MaxItemsPerStore {
			break
		}
		if picked[c.ItemID] {
			continue
		}
		picked[c.ItemID] = true
		picks = append(picks, c)
	}

	sort.SliceStable(picks, func(i, j int) bool { return picks[i].Profit > picks[j].Profit })
	if len(picks) > p.MaxItemsPerStore {
		picks = picks[:p.MaxItemsPerStore]
	}
	for i := range picks {
		picks[i].Rank = i + 1
	}
	return picks
}
