package assortment

import (
	"testing"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pick(store, cat, item string, profit float64) domain.AssortmentPick {
	return domain.AssortmentPick{StoreID: store, CatID: cat, ItemID: item, BasePrice: 5, OptPrice: 4.5, Markdown: 0.1, Profit: profit, Elasticity: -1.2}
}

// three categories with three items each; FOODS dominates profit
func threeCategoryPicks(store string) []domain.AssortmentPick {
	return []domain.AssortmentPick{
		pick(store, "FOODS", "F1", 900), pick(store, "FOODS", "F2", 800), pick(store, "FOODS", "F3", 700),
		pick(store, "HOBBIES", "H1", 300), pick(store, "HOBBIES", "H2", 200), pick(store, "HOBBIES", "H3", 100),
		pick(store, "HOUSEHOLD", "U1", 60), pick(store, "HOUSEHOLD", "U2", 50), pick(store, "HOUSEHOLD", "U3", 40),
	}
}

func itemIDs(picks []domain.AssortmentPick) []string {
	out := make([]string, len(picks))
	for i, p := range picks {
		out[i] = p.ItemID
	}
	return out
}

func TestSelect_FloorBeforeCap(t *testing.T) {
	out, err := Select(threeCategoryPicks("CA_1"), Params{MinItemsPerCat: 2, MaxItemsPerStore: 5})
	require.NoError(t, err)

	// floor yields F1 F2 H1 H2 U1 U2; the cap trims the lowest-profit floor pick.
	// F3 (700) never enters even though it beats every HOBBIES and HOUSEHOLD item.
	assert.Equal(t, []string{"F1", "F2", "H1", "H2", "U1"}, itemIDs(out))
	for i, p := range out {
		assert.Equal(t, i+1, p.Rank)
	}
}

func TestSelect_FillsRemainingCapacityByProfit(t *testing.T) {
	out, err := Select(threeCategoryPicks("CA_1"), Params{MinItemsPerCat: 1, MaxItemsPerStore: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2", "F3", "H1", "U1"}, itemIDs(out))
}

func TestSelect_FewerCandidatesThanCap(t *testing.T) {
	out, err := Select(threeCategoryPicks("CA_1")[:4], Params{MinItemsPerCat: 10, MaxItemsPerStore: 200})
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestSelect_SortsByStoreThenProfitAndDedups(t *testing.T) {
	cands := append(threeCategoryPicks("TX_1"), threeCategoryPicks("CA_1")...)
	cands = append(cands, pick("CA_1", "FOODS", "F1", 900))

	out, err := Select(cands, Params{MinItemsPerCat: 1, MaxItemsPerStore: 4})
	require.NoError(t, err)
	require.Len(t, out, 8)

	seen := map[string]bool{}
	for i, p := range out {
		key := p.StoreID + "/" + p.ItemID
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
		if i > 0 && out[i-1].StoreID == p.StoreID {
			assert.GreaterOrEqual(t, out[i-1].Profit, p.Profit)
		}
	}
	assert.Equal(t, "CA_1", out[0].StoreID)
	assert.Equal(t, "TX_1", out[7].StoreID)
	assert.Equal(t, 1, out[4].Rank)
}

func TestSelect_EmptyAndInvalid(t *testing.T) {
	out, err := Select(nil, Params{MinItemsPerCat: 1, MaxItemsPerStore: 1})
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = Select(threeCategoryPicks("CA_1"), Params{MinItemsPerCat: 1, MaxItemsPerStore: 0})
	assert.True(t, domain.IsDataError(err))
}

func TestAnnotate(t *testing.T) {
	recs := []domain.PricingRecommendation{
		{ItemID: "F1", StoreID: "CA_1", Profit: 10, Markdown: 0.2},
		{ItemID: "X9", StoreID: "CA_1", Profit: 5},
	}
	cats := map[domain.SeriesKey]string{{ItemID: "F1", StoreID: "CA_1"}: "FOODS"}

	picks := Annotate(recs, cats)
	require.Len(t, picks, 2)
	assert.Equal(t, "FOODS", picks[0].CatID)
	assert.Equal(t, 0.2, picks[0].Markdown)
	assert.Equal(t, "", picks[1].CatID)
}
