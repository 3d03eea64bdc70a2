// Package forecast trains demand regressors and projects demand beyond the observed horizon.
package forecast

import (
	"fmt"
	"math"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
)

// Regressor scores one schema vector and returns a demand estimate.
// Implementations must be safe for concurrent use and free of side effects.
type Regressor interface {
	SchemaVersion() string
	Predict(v features.Vector) float64
}

// ModelKind selects a Regressor adapter
type ModelKind string

const (
	ModelLinear        ModelKind = "linear"
	ModelSeasonalNaive ModelKind = "naive"
)

// ParseModelKind accepts the configured model name
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case ModelLinear, "":
		return ModelLinear, nil
	case ModelSeasonalNaive:
		return ModelSeasonalNaive, nil
	default:
		return "", fmt.Errorf("unknown model kind %q (expected linear or naive)", s)
	}
}

// Trained bundles a regressor with the encoder fitted on its training rows.
type Trained struct {
	Regressor Regressor
	Encoder   *features.Encoder
}

func checkSchema(stage string, schema features.Schema, model Regressor, enc *features.Encoder) error {
	if model == nil {
		return domain.NewDataError(stage, "regressor is required")
	}
	if model.SchemaVersion() != schema.Version() {
		return domain.NewDataError(stage, "regressor fitted on schema %s, got %s", model.SchemaVersion(), schema.Version())
	}
	if enc != nil && enc.SchemaVersion != schema.Version() {
		return domain.NewDataError(stage, "encoder built for schema %s, got %s", enc.SchemaVersion, schema.Version())
	}
	return nil
}

// clip maps a raw model output to a non-negative demand estimate.
func clip(y float64) float64 {
	if math.IsNaN(y) || y < 0 {
		return 0
	}
	return y
}
