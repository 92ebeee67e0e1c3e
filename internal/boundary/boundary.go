// Package boundary finds the comfort-zone boundary: the minimum cut of
// the trust-weighted context graph, splitting live contexts into a
// high-trust inside and a low-trust outside. Advisory only; it feeds
// telemetry, never behavior.
package boundary

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
)

// #region config

// Config tunes edge weighting and recompute firing.
type Config struct {
	// MinObservations: both endpoints need this many interactions
	// before their trust shapes the edge; below it, raw mixing weight
	// is used unchanged.
	MinObservations uint32 `yaml:"min_observations"`
	// FireDelta is the |Δ cut weight| that justifies a recompute.
	FireDelta float32 `yaml:"fire_delta"`
	// CooldownTicks is the minimum tick gap between recomputes.
	CooldownTicks uint64 `yaml:"cooldown_ticks"`
}

// DefaultConfig returns the standard boundary tuning.
func DefaultConfig() Config {
	return Config{
		MinObservations: 50,
		FireDelta:       0.05,
		CooldownTicks:   50,
	}
}

// #endregion config

// #region cut

// Cut is a read-only boundary description over field table indices.
type Cut struct {
	// Inside is the comfort zone: the cut side with the higher mean trust.
	Inside []int
	// Outside is everything else that is live.
	Outside []int
	// Weight is the total weight of the edges the cut severs.
	Weight float32
}

// Contains reports whether a context sits inside the comfort zone.
func (c *Cut) Contains(key contextkey.Key) bool {
	idx := key.Index()
	for _, v := range c.Inside {
		if v == idx {
			return true
		}
	}
	return false
}

// #endregion cut

// #region discover

// Discover computes the minimum cut of the live-context graph. Edge
// weights start from the symmetrized mixing matrix; once both endpoints
// have MinObservations interactions the edge is scaled by their shared
// trust, so well-known low-trust contexts separate cheaply. Fewer than
// two live contexts yield a degenerate cut with everything inside.
func Discover(m *mixer.Matrix, snap *field.Snapshot, config Config) Cut {
	n := m.N()
	if n == 0 {
		return Cut{}
	}
	if n == 1 {
		return Cut{Inside: append([]int(nil), m.Contexts...)}
	}

	adj := make([][]float64, n)
	for i := range adj {
		adj[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := float64(m.At(i, j)+m.At(j, i)) / 2
			w *= trustScale(snap, m.Contexts[i], m.Contexts[j], config)
			adj[i][j] = w
			adj[j][i] = w
		}
	}

	weight, side := minimumCut(adj)

	var inside, outside []int
	for i, idx := range m.Contexts {
		if side[i] {
			inside = append(inside, idx)
		} else {
			outside = append(outside, idx)
		}
	}
	if meanScore(snap, outside) > meanScore(snap, inside) {
		inside, outside = outside, inside
	}
	sort.Ints(inside)
	sort.Ints(outside)
	return Cut{Inside: inside, Outside: outside, Weight: float32(weight)}
}

// trustScale is tanh(2·mean trust)² when both contexts are well
// observed, 1 otherwise. Squaring sharpens the gap between trusted and
// distrusted neighborhoods.
func trustScale(snap *field.Snapshot, a, b int, config Config) float64 {
	ca, cb := &snap.Cells[a], &snap.Cells[b]
	if ca.Count < config.MinObservations || cb.Count < config.MinObservations {
		return 1
	}
	t := math.Tanh(float64(ca.Score+cb.Score)) // mean × 2
	return t * t
}

func meanScore(snap *field.Snapshot, indices []int) float32 {
	if len(indices) == 0 {
		return 0
	}
	var sum float32
	for _, i := range indices {
		sum += snap.Cells[i].Score
	}
	return sum / float32(len(indices))
}

// #endregion discover

// #region stoer-wagner

// minimumCut is the Stoer-Wagner global minimum cut over a symmetric
// adjacency matrix. Returns the cut weight and the membership of one
// side. adj is consumed.
func minimumCut(adj [][]float64) (float64, []bool) {
	n := len(adj)
	// groups[i] tracks which original vertices vertex i has absorbed.
	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}

	best := math.Inf(1)
	var bestSide []int

	for len(active) > 1 {
		// Maximum adjacency ordering from an arbitrary start.
		inA := make(map[int]bool, len(active))
		weights := make(map[int]float64, len(active))
		order := make([]int, 0, len(active))
		for range active {
			next, nextW := -1, math.Inf(-1)
			for _, v := range active {
				if !inA[v] && weights[v] > nextW {
					next, nextW = v, weights[v]
				}
			}
			inA[next] = true
			order = append(order, next)
			for _, v := range active {
				if !inA[v] {
					weights[v] += adj[next][v]
				}
			}
		}

		last := order[len(order)-1]
		prev := order[len(order)-2]
		cutOfPhase := weights[last]
		if cutOfPhase < best {
			best = cutOfPhase
			bestSide = append([]int(nil), groups[last]...)
		}

		// Merge last into prev.
		groups[prev] = append(groups[prev], groups[last]...)
		for _, v := range active {
			if v != last && v != prev {
				adj[prev][v] += adj[last][v]
				adj[v][prev] = adj[prev][v]
			}
		}
		for i, v := range active {
			if v == last {
				active = append(active[:i], active[i+1:]...)
				break
			}
		}
	}

	side := make([]bool, n)
	for _, v := range bestSide {
		side[v] = true
	}
	// Inside is the complement of the severed side by convention here;
	// the caller reorients by mean trust anyway.
	for i := range side {
		side[i] = !side[i]
	}
	return best, side
}

// #endregion stoer-wagner
