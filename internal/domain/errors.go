package domain

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEmptyInput is wrapped by DataError when a mandatory input has no rows.
var ErrEmptyInput = errors.New("empty input")

// DataError reports a structural problem with an input: missing columns, empty mandatory
// frames, unparsable cells or a feature schema mismatch. It aborts the stage and is never retried.
type DataError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// Retryable is always false for data errors
func (e *DataError) Retryable() bool {
	return false
}

// NewDataError builds a DataError for the given stage
func NewDataError(stage, format string, args ...interface{}) *DataError {
	return &DataError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// WrapDataError builds a DataError that wraps cause
func WrapDataError(stage string, cause error, format string, args ...interface{}) *DataError {
	return &DataError{Stage: stage, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// IsDataError reports whether err (or anything it wraps) is a DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// SkipReason names why a unit (series or item-store pair) was left out of an output.
type SkipReason string

const (
	SkipInsufficientObservations SkipReason = "insufficient_observations"
	SkipDegenerateVariance       SkipReason = "degenerate_variance"
	SkipInfeasiblePricing        SkipReason = "infeasible_pricing"
	SkipInvalidBaseline          SkipReason = "invalid_baseline"
	SkipMissingCovariate         SkipReason = "missing_covariate"
)

// SkipCounts tallies informational skips. The zero value is ready to use via Add.
type SkipCounts map[SkipReason]int

// Add increments the counter for reason
func (s *SkipCounts) Add(reason SkipReason, n int) {
	if n == 0 {
		return
	}
	if *s == nil {
		*s = make(SkipCounts)
	}
	(*s)[reason] += n
}

// Merge adds every counter of other into s
func (s *SkipCounts) Merge(other SkipCounts) {
	for reason, n := range other {
		s.Add(reason, n)
	}
}

// Total returns the sum of all counters
func (s SkipCounts) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Reasons returns the recorded reasons in stable order
func (s SkipCounts) Reasons() []SkipReason {
	out := make([]SkipReason, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
