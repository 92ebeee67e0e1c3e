package mixer

import "errors"

// #region sinkhorn

// ErrNotConverged is returned when row/column sums fail to reach the
// tolerance within the iteration cap. The caller retains its previous
// matrix; a non-converged result is never applied partially.
var ErrNotConverged = errors.New("mixer: sinkhorn projection did not converge")

// Sinkhorn projects a positive n×n row-major matrix onto the set of
// doubly-stochastic matrices by alternately normalizing rows and
// columns. The input slice is not modified.
func Sinkhorn(sim []float32, n int, tolerance float64, maxIterations int) ([]float32, error) {
	w := make([]float64, n*n)
	for i, v := range sim {
		w[i] = float64(v)
		if w[i] <= 0 {
			// Keep the matrix strictly positive so normalization
			// cannot divide by zero or strand a row at zero mass.
			w[i] = 1e-9
		}
	}

	for iter := 0; iter < maxIterations; iter++ {
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < n; j++ {
				sum += w[i*n+j]
			}
			for j := 0; j < n; j++ {
				w[i*n+j] /= sum
			}
		}
		for j := 0; j < n; j++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += w[i*n+j]
			}
			for i := 0; i < n; i++ {
				w[i*n+j] /= sum
			}
		}
		if deviation(w, n) <= tolerance {
			out := make([]float32, n*n)
			for i, v := range w {
				out[i] = float32(v)
			}
			return out, nil
		}
	}
	return nil, ErrNotConverged
}

// deviation is the worst row or column sum distance from 1.
func deviation(w []float64, n int) float64 {
	var worst float64
	for i := 0; i < n; i++ {
		var row float64
		for j := 0; j < n; j++ {
			row += w[i*n+j]
		}
		if d := abs(row - 1); d > worst {
			worst = d
		}
	}
	for j := 0; j < n; j++ {
		var col float64
		for i := 0; i < n; i++ {
			col += w[i*n+j]
		}
		if d := abs(col - 1); d > worst {
			worst = d
		}
	}
	return worst
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion sinkhorn
