package features

import (
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
)

// UnknownCode is returned for categorical values never seen while fitting.
const UnknownCode = 0

// Encoder maps categorical values to dense integer codes. It is built once from training
// rows and reused unchanged at inference time.
type Encoder struct {
	SchemaVersion string                    `msgpack:"schema_version"`
	Codes         map[string]map[string]int `msgpack:"codes"`
}

// FitEncoder builds the dictionary for every categorical column of schema.
// Codes start at 1 and follow the sorted order of values, so fitting is deterministic.
func FitEncoder(schema Schema, records []domain.TimeStepRecord) *Encoder {
	enc := &Encoder{
		SchemaVersion: schema.Version(),
		Codes:         make(map[string]map[string]int),
	}
	for _, col := range schema.Categorical() {
		uniq := make(map[string]struct{})
		for i := range records {
			uniq[schema.CategoricalValue(col, &records[i])] = struct{}{}
		}
		values := make([]string, 0, len(uniq))
		for v := range uniq {
			values = append(values, v)
		}
		sort.Strings(values)

		codes := make(map[string]int, len(values))
		for i, v := range values {
			codes[v] = i + 1
		}
		enc.Codes[col] = codes
	}
	return enc
}

// Encode returns the code of value in col, or UnknownCode
func (e *Encoder) Encode(col, value string) int {
	if e == nil {
		return UnknownCode
	}
	if code, ok := e.Codes[col][value]; ok {
		return code
	}
	return UnknownCode
}

// Cardinality returns the number of codes for col, including the unknown slot.
func (e *Encoder) Cardinality(col string) int {
	if e == nil {
		return 1
	}
	return len(e.Codes[col]) + 1
}
