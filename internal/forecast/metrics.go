package forecast

import (
	"encoding/json"
	"math"
)

// Score is a metric value that may be undefined; it marshals NaN and ±Inf as null.
type Score float64

func (s Score) Defined() bool {
	f := float64(s)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

func (s *Score) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Score(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = Score(f)
	return nil
}

// ValidationMetrics summarizes predictions over the validation window
type ValidationMetrics struct {
	RMSE Score   `json:"valid_rmse"`
	WAPE Score   `json:"valid_wape"`
	SumY float64 `json:"valid_sum_y"`
	Rows int     `json:"valid_rows"`
}

// RMSE is the root mean squared error; NaN on empty input.
func RMSE(actual, pred []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range actual {
		d := actual[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// WAPE is Σ|actual−pred| / Σ|actual|; NaN when the denominator is zero.
func WAPE(actual, pred []float64) float64 {
	var num, den float64
	for i := range actual {
		num += math.Abs(actual[i] - pred[i])
		den += math.Abs(actual[i])
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
