package forecast

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const linearModelFormat = "merchops.linear/1"

// LinearModel is a ridge regression over standardized numeric features plus one
// target-encoded column per categorical feature. Missing numerics are imputed with
// the training mean; unknown categories fall back to the global target mean.
type LinearModel struct {
	Format        string            `msgpack:"format"`
	Version       string            `msgpack:"schema_version"`
	Intercept     float64           `msgpack:"intercept"`
	Coef          []float64         `msgpack:"coef"`
	Means         []float64         `msgpack:"means"`
	Scales        []float64         `msgpack:"scales"`
	CategoryMeans [][]float64       `msgpack:"category_means"`
	GlobalMean    float64           `msgpack:"global_mean"`
	Encoder       *features.Encoder `msgpack:"encoder"`
}

var _ Regressor = (*LinearModel)(nil)

// FitLinear fits a LinearModel on rows whose Units are observed.
func FitLinear(schema features.Schema, enc *features.Encoder, rows []domain.TimeStepRecord, lambda float64) (*LinearModel, error) {
	n := len(rows)
	if n == 0 {
		return nil, domain.WrapDataError("train", domain.ErrEmptyInput, "no training rows")
	}
	if lambda <= 0 {
		lambda = 1e-3
	}

	numCols := len(schema.Numeric())
	catCols := schema.Categorical()
	p := numCols + len(catCols)

	y := make([]float64, n)
	vectors := make([]features.Vector, n)
	for i := range rows {
		y[i] = rows[i].Units
		vectors[i] = schema.Vector(enc, &rows[i])
	}
	globalMean := stat.Mean(y, nil)

	// 1) target means per category code; slot 0 (unknown) keeps the global mean
	categoryMeans := make([][]float64, len(catCols))
	for c, col := range catCols {
		sums := make([]float64, enc.Cardinality(col))
		counts := make([]float64, enc.Cardinality(col))
		for i, v := range vectors {
			sums[v.Categorical[c]] += y[i]
			counts[v.Categorical[c]]++
		}
		means := make([]float64, len(sums))
		for k := range means {
			means[k] = globalMean
			if k != features.UnknownCode && counts[k] > 0 {
				means[k] = sums[k] / counts[k]
			}
		}
		categoryMeans[c] = means
	}

	m := &LinearModel{
		Format:        linearModelFormat,
		Version:       schema.Version(),
		CategoryMeans: categoryMeans,
		GlobalMean:    globalMean,
		Encoder:       enc,
		Means:         make([]float64, p),
		Scales:        make([]float64, p),
	}

	// 2) numeric imputation means, ignoring missing values
	for j := 0; j < numCols; j++ {
		sum, cnt := 0.0, 0.0
		for _, v := range vectors {
			if !math.IsNaN(v.Numeric[j]) {
				sum += v.Numeric[j]
				cnt++
			}
		}
		if cnt > 0 {
			m.Means[j] = sum / cnt
		}
	}

	// 3) raw design matrix, then standardize column by column
	x := mat.NewDense(n, p, nil)
	for i, v := range vectors {
		m.fillRow(v, x.RawRowView(i), false)
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std < 1e-12 {
			std = 1
		}
		m.Means[j], m.Scales[j] = mean, std
		for i := 0; i < n; i++ {
			x.Set(i, j, (col[i]-mean)/std)
		}
	}

	// 4) solve (Z'Z + lambda*n*I) b = Z'(y - mean(y))
	centered := make([]float64, n)
	for i := range y {
		centered[i] = y[i] - globalMean
	}
	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, x.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lambda*float64(n))
	}
	var rhs mat.VecDense
	rhs.MulVec(x.T(), mat.NewVecDense(n, centered))

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, fmt.Errorf("linear model: normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("linear model: solve failed: %w", err)
		}
		log.Warn().Float64("condition", float64(cond)).Msg("linear model: ill-conditioned normal equations")
	}

	m.Intercept = globalMean
	m.Coef = make([]float64, p)
	for j := range m.Coef {
		m.Coef[j] = beta.AtVec(j)
	}
	return m, nil
}

func (m *LinearModel) SchemaVersion() string { return m.Version }

// Predict returns the clipped linear estimate for v
func (m *LinearModel) Predict(v features.Vector) float64 {
	row := make([]float64, len(m.Coef))
	m.fillRow(v, row, true)
	y := m.Intercept
	for j, c := range m.Coef {
		y += c * row[j]
	}
	return clip(y)
}

// fillRow writes the raw design row of v into dst; standardize also applies Means/Scales.
func (m *LinearModel) fillRow(v features.Vector, dst []float64, standardize bool) {
	numCols := len(v.Numeric)
	for j, val := range v.Numeric {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			// the imputation mean equals the column mean, so it standardizes to 0
			val = m.Means[j]
		}
		dst[j] = val
		if standardize {
			dst[j] = (val - m.Means[j]) / m.Scales[j]
		}
	}
	for c, code := range v.Categorical {
		j := numCols + c
		te := m.GlobalMean
		if code > features.UnknownCode && code < len(m.CategoryMeans[c]) {
			te = m.CategoryMeans[c][code]
		}
		dst[j] = te
		if standardize {
			dst[j] = (te - m.Means[j]) / m.Scales[j]
		}
	}
}

// Save writes the model in msgpack form
func (m *LinearModel) Save(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("encode linear model: %w", err)
	}
	return nil
}

// LoadLinearModel reads a model written by Save
func LoadLinearModel(r io.Reader) (*LinearModel, error) {
	var m LinearModel
	if err := msgpack.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode linear model: %w", err)
	}
	if m.Format != linearModelFormat {
		return nil, fmt.Errorf("unsupported model format %q", m.Format)
	}
	if len(m.Coef) != len(m.Means) || len(m.Coef) != len(m.Scales) {
		return nil, fmt.Errorf("corrupt linear model: %d coefficients, %d means, %d scales",
			len(m.Coef), len(m.Means), len(m.Scales))
	}
	return &m, nil
}
