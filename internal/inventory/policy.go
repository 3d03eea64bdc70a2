// Package inventory derives reorder policies from projected demand and replays them
// through a discrete-event replenishment simulation.
package inventory

import (
	"fmt"
	"math"

	"github.com/andresuchdata/merchops/internal/domain"
	"gonum.org/v1/gonum/stat/distuv"
)

// PlannedStep is one forecast row annotated with its reorder policy.
type PlannedStep struct {
	domain.TimeStepRecord
	SafetyStock  float64 `json:"safety_stock"`
	ReorderPoint float64 `json:"reorder_point"`
}

// PolicyParams configures ComputePolicy
type PolicyParams struct {
	ServiceLevel float64
	LeadTimeDays int
}

// ServiceLevelZ returns the standard-normal quantile for a service level in (0, 1).
func ServiceLevelZ(serviceLevel float64) (float64, error) {
	if !(serviceLevel > 0 && serviceLevel < 1) {
		return 0, fmt.Errorf("service level must be in (0, 1), got %v", serviceLevel)
	}
	return distuv.UnitNormal.Quantile(serviceLevel), nil
}

// ComputePolicy annotates every scored row with safety stock z·σ·√L and reorder point μ·L + safety stock.
// σ is the trailing 28-day demand std (0 when unavailable); μ is the row's prediction.
func ComputePolicy(rows []domain.TimeStepRecord, p PolicyParams) ([]PlannedStep, error) {
	z, err := ServiceLevelZ(p.ServiceLevel)
	if err != nil {
		return nil, domain.WrapDataError("inventory", err, "invalid policy")
	}
	if p.LeadTimeDays < 0 {
		return nil, domain.NewDataError("inventory", "lead time must be >= 0, got %d", p.LeadTimeDays)
	}

	lead := float64(p.LeadTimeDays)
	sqrtLead := math.Sqrt(lead)

	out := make([]PlannedStep, len(rows))
	for i, r := range rows {
		if !r.HasPrediction() {
			return nil, domain.NewDataError("inventory", "row %s@%s has no pred_units", r.Key().ID(), r.Date.Format("2006-01-02"))
		}
		sigma := r.RollStd28
		if math.IsNaN(sigma) {
			sigma = 0
		}
		ss := z * sigma * sqrtLead
		out[i] = PlannedStep{
			TimeStepRecord: r,
			SafetyStock:    ss,
			ReorderPoint:   r.PredUnits*lead + ss,
		}
	}
	return out, nil
}

// DisableReorder returns a copy of steps whose reorder point can never be reached,
// producing the no-replenishment baseline.
func DisableReorder(steps []PlannedStep) []PlannedStep {
	out := make([]PlannedStep, len(steps))
	for i, s := range steps {
		s.ReorderPoint = math.Inf(-1)
		out[i] = s
	}
	return out
}

// TargetInventory is the order-up-to level of a step
func (s *PlannedStep) TargetInventory(leadTimeDays int) float64 {
	return s.PredUnits*float64(leadTimeDays) + s.SafetyStock
}
