// Package mixer computes the doubly-stochastic mixing matrix over live
// contexts and the bounded cross-context trust estimates derived from
// it. Everything here runs on the background runner; the reflexive loop
// only ever reads published results.
package mixer

import (
	"math"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
)

// #region config

// Config tunes similarity, projection, and transfer bounds.
type Config struct {
	// Tolerance is the max row/column sum deviation from 1 accepted by
	// the Sinkhorn projection.
	Tolerance float64 `yaml:"tolerance"`
	// MaxIterations caps the projection loop.
	MaxIterations int `yaml:"max_iterations"`
	// KernelWidth shapes the feature-distance similarity kernel.
	KernelWidth float32 `yaml:"kernel_width"`
	// TransferCap bounds how far mixing can lift a score toward its
	// neighbor average.
	TransferCap float32 `yaml:"transfer_cap"`
	// FamiliarityCeiling: a transferred estimate never crosses this, so
	// mixing can approach but not manufacture familiarity. Matches the
	// gate's unfamiliar cutoff.
	FamiliarityCeiling float32 `yaml:"familiarity_ceiling"`
	// WarmNeighbors is how many visited contexts seed a novel one.
	WarmNeighbors int `yaml:"warm_neighbors"`
	// SparseVisits is the count below which a visited context accepts
	// estimate lifts. Denser contexts trust their own history; their
	// table entries stay zero so a stale estimate can never mask a
	// fresh trust drop.
	SparseVisits uint32 `yaml:"sparse_visits"`
}

// DefaultConfig returns the standard mixing bounds.
func DefaultConfig() Config {
	return Config{
		Tolerance:          1e-4,
		MaxIterations:      100,
		KernelWidth:        0.5,
		TransferCap:        0.1,
		FamiliarityCeiling: 0.3,
		WarmNeighbors:      3,
		SparseVisits:       50,
	}
}

// #endregion config

// #region matrix

// Matrix is a doubly-stochastic mixing matrix over the live (visited)
// contexts at the time it was computed. Immutable once built; the
// runner publishes a new one atomically rather than editing in place.
type Matrix struct {
	// Contexts holds the field table index of each matrix row.
	Contexts []int
	// Weights is row-major, len(Contexts)^2.
	Weights []float32
	// slot maps a field table index to its row, or -1 when absent.
	slot [contextkey.NumContexts]int16
}

// NewMatrix assembles a matrix from its context list and row-major
// weights, e.g. when reloading persisted state. len(weights) must be
// len(contexts) squared.
func NewMatrix(contexts []int, weights []float32) *Matrix {
	m := &Matrix{Contexts: contexts, Weights: weights}
	for i := range m.slot {
		m.slot[i] = -1
	}
	for row, idx := range contexts {
		m.slot[idx] = int16(row)
	}
	return m
}

// N returns the matrix dimension.
func (m *Matrix) N() int { return len(m.Contexts) }

// At returns the mixing weight from row i to column j.
func (m *Matrix) At(i, j int) float32 { return m.Weights[i*len(m.Contexts)+j] }

// Row returns the matrix row for a field table index, or -1.
func (m *Matrix) Row(index int) int { return int(m.slot[index]) }

// RowColSums reports every row and column sum, for auditing.
func (m *Matrix) RowColSums() (rows, cols []float64) {
	n := m.N()
	rows = make([]float64, n)
	cols = make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w := float64(m.At(i, j))
			rows[i] += w
			cols[j] += w
		}
	}
	return rows, cols
}

// #endregion matrix

// #region similarity

// Similarity builds the positive similarity matrix over the given keys
// from feature-space distance, row-major. Diagonal entries are 1.
func Similarity(keys []contextkey.Key, width float32) []float32 {
	n := len(keys)
	sim := make([]float32, n*n)
	feats := make([][4]float32, n)
	for i, k := range keys {
		feats[i] = k.FeatureVec()
	}
	for i := 0; i < n; i++ {
		sim[i*n+i] = 1
		for j := i + 1; j < n; j++ {
			s := kernel(feats[i], feats[j], width)
			sim[i*n+j] = s
			sim[j*n+i] = s
		}
	}
	return sim
}

func kernel(a, b [4]float32, width float32) float32 {
	var d2 float32
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return float32(math.Exp(float64(-d2 / (width * width))))
}

func featureDistance(a, b contextkey.Key) float32 {
	fa, fb := a.FeatureVec(), b.FeatureVec()
	var d2 float32
	for i := range fa {
		d := fa[i] - fb[i]
		d2 += d * d
	}
	return float32(math.Sqrt(float64(d2)))
}

// #endregion similarity

// #region compute

// Compute builds the mixing matrix for a field snapshot: collect the
// visited contexts, derive their similarity matrix, and project it onto
// the doubly-stochastic polytope. A snapshot with fewer than two live
// contexts yields a trivial matrix. On ErrNotConverged the caller keeps
// its previous matrix.
func Compute(snap *field.Snapshot, config Config) (*Matrix, error) {
	var contexts []int
	for i := range snap.Cells {
		if snap.Cells[i].Visited {
			contexts = append(contexts, i)
		}
	}
	n := len(contexts)
	if n == 0 {
		return NewMatrix(contexts, nil), nil
	}
	if n == 1 {
		return NewMatrix(contexts, []float32{1}), nil
	}

	keys := make([]contextkey.Key, n)
	for i, idx := range contexts {
		keys[i] = contextkey.FromIndex(idx)
	}
	weights, err := Sinkhorn(Similarity(keys, config.KernelWidth), n, config.Tolerance, config.MaxIterations)
	if err != nil {
		return nil, err
	}
	return NewMatrix(contexts, weights), nil
}

// #endregion compute
