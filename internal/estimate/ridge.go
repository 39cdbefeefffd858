// Package estimate provides the next-close regression estimator used by the
// training and prediction stages.
package estimate

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/marketlab/stockpipe/internal/model"
)

// DefaultLambda is the default L2 regularization strength.
const DefaultLambda = 1.0

// Ridge is a linear least-squares estimator with L2 regularization, fit in
// closed form. The feature set is small and fixed, so the normal equations
// are solved directly.
type Ridge struct {
	Lambda       float64   `json:"lambda"`
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// NewRidge creates an unfit estimator over the named feature columns.
func NewRidge(features []string, lambda float64) *Ridge {
	return &Ridge{Lambda: lambda, Features: features}
}

// Fit solves (XᵀX + λI)w = Xᵀy over the design matrix augmented with an
// intercept column. The intercept is not regularized.
func (r *Ridge) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return eris.Errorf("estimate: need matching non-empty inputs, got %d rows and %d targets", n, len(y))
	}
	k := len(r.Features)
	for i, row := range x {
		if len(row) != k {
			return eris.Errorf("estimate: row %d has %d values, want %d", i, len(row), k)
		}
	}

	// Normal equations over [1 | x] with dimension k+1.
	dim := k + 1
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim+1) // augmented column holds Xᵀy
	}
	for i := range n {
		row := make([]float64, dim)
		row[0] = 1
		copy(row[1:], x[i])
		for p := range dim {
			for q := range dim {
				a[p][q] += row[p] * row[q]
			}
			a[p][dim] += row[p] * y[i]
		}
	}
	for p := 1; p < dim; p++ {
		a[p][p] += r.Lambda
	}

	w, err := solve(a)
	if err != nil {
		return err
	}
	r.Intercept = w[0]
	r.Coefficients = w[1:]
	return nil
}

// solve runs Gaussian elimination with partial pivoting on the augmented
// system a.
func solve(a [][]float64) ([]float64, error) {
	dim := len(a)
	for col := range dim {
		pivot := col
		for row := col + 1; row < dim; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, eris.New("estimate: singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := col + 1; row < dim; row++ {
			f := a[row][col] / a[col][col]
			for q := col; q <= dim; q++ {
				a[row][q] -= f * a[col][q]
			}
		}
	}

	w := make([]float64, dim)
	for row := dim - 1; row >= 0; row-- {
		sum := a[row][dim]
		for col := row + 1; col < dim; col++ {
			sum -= a[row][col] * w[col]
		}
		w[row] = sum / a[row][row]
	}
	return w, nil
}

// Predict returns the estimate for one feature row.
func (r *Ridge) Predict(x []float64) (float64, error) {
	if len(x) != len(r.Coefficients) {
		return 0, eris.Errorf("estimate: got %d features, model has %d", len(x), len(r.Coefficients))
	}
	out := r.Intercept
	for i, v := range x {
		out += r.Coefficients[i] * v
	}
	return out, nil
}

// Hyperparameters describes the estimator for model descriptors.
func (r *Ridge) Hyperparameters() map[string]any {
	return map[string]any{
		"lambda":        r.Lambda,
		"fit_intercept": true,
	}
}

// Save writes the fitted estimator as a JSON artifact.
func (r *Ridge) Save(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrap(err, "estimate: marshal model")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "estimate: create %s", dir)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "estimate: write %s", path)
	}
	return nil
}

// Load reads a fitted estimator artifact.
func Load(path string) (*Ridge, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "estimate: read %s", path)
	}
	var r Ridge
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrapf(err, "estimate: decode %s", path)
	}
	return &r, nil
}

// Evaluate computes held-out regression metrics for predictions against
// observed targets.
func Evaluate(yTrue, yPred []float64) model.PerformanceMetrics {
	n := len(yTrue)
	if n == 0 || n != len(yPred) {
		return model.PerformanceMetrics{}
	}

	var mean, sse, sae float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(n)

	var sst float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		sse += diff * diff
		sae += math.Abs(diff)
		dev := yTrue[i] - mean
		sst += dev * dev
	}

	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}
	return model.PerformanceMetrics{
		RMSE: math.Sqrt(sse / float64(n)),
		MAE:  sae / float64(n),
		R2:   r2,
	}
}
