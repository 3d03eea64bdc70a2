// Package report writes engine results as CSV/JSON artifacts and reads them back for the API.
package report

// Artifact file names
const (
	SummaryFile        = "summary_metrics.json"
	InventoryFile      = "recommendations_inventory.csv"
	PricingFile        = "recommendations_pricing.csv"
	AssortmentFile     = "recommendations_assortment.csv"
	FutureForecastFile = "future_forecast_next_28d.csv"
	ElasticityFile     = "elasticity_estimates.csv"
	RetrainMetricsFile = "retrain_metrics.json"
	ModelFile          = "demand_model.msgpack"
)

// Recommendation kinds served by the API
const (
	KindInventory  = "inventory"
	KindPricing    = "pricing"
	KindAssortment = "assortment"
)

// RecommendationFile maps a recommendation kind to its artifact
func RecommendationFile(kind string) (string, bool) {
	switch kind {
	case KindInventory:
		return InventoryFile, true
	case KindPricing:
		return PricingFile, true
	case KindAssortment:
		return AssortmentFile, true
	}
	return "", false
}

// Downloadable reports whether name may be served as a raw download
func Downloadable(name string) bool {
	switch name {
	case SummaryFile, InventoryFile, PricingFile, AssortmentFile, FutureForecastFile, ElasticityFile, RetrainMetricsFile:
		return true
	}
	return false
}
