package mixer

import (
	"sort"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
)

// #region estimate

// Estimates holds one refined score per context slot, published as a
// whole so the reflexive loop reads a consistent table.
type Estimates [contextkey.NumContexts]float32

// EstimateAll refines every context's score using the mixing matrix.
// Sparsely-visited contexts may be lifted toward their matrix-weighted
// neighbor average, but only by TransferCap of the gap, and an
// unfamiliar score never crosses FamiliarityCeiling: mixing cannot
// grant trust that was not earned. Never-visited contexts get a
// warm-start seed from their nearest visited neighbors under the same
// ceiling. Contexts with SparseVisits or more interactions get a zero
// entry — their live score is the only authority, and the loop ignores
// zero. baseline is the curiosity-scaled cold-start score.
func (m *Matrix) EstimateAll(snap *field.Snapshot, baseline float32, config Config) Estimates {
	var est Estimates
	for i := range est {
		switch {
		case !snap.Cells[i].Visited:
			est[i] = baseline
		case snap.Cells[i].Count < config.SparseVisits:
			est[i] = snap.Cells[i].Score
		}
	}
	if m == nil || m.N() < 2 {
		return est
	}

	for row, idx := range m.Contexts {
		if snap.Cells[idx].Count >= config.SparseVisits {
			continue
		}
		direct := snap.Cells[idx].Score
		var neighbor float32
		for col, jdx := range m.Contexts {
			neighbor += m.At(row, col) * snap.Cells[jdx].Score
		}
		if neighbor <= direct {
			continue
		}
		lifted := direct + config.TransferCap*(neighbor-direct)
		if direct < config.FamiliarityCeiling && lifted > config.FamiliarityCeiling {
			lifted = config.FamiliarityCeiling
		}
		est[idx] = lifted
	}

	for i := range est {
		if !snap.Cells[i].Visited {
			est[i] = m.warmSeed(snap, contextkey.FromIndex(i), baseline, config)
		}
	}
	return est
}

// warmSeed blends the nearest visited contexts' scores, discounted by
// feature distance, as the first estimate for a novel context. The seed
// is capped at baseline+TransferCap and at the familiarity ceiling so a
// never-entered context always reads as unfamiliar.
func (m *Matrix) warmSeed(snap *field.Snapshot, key contextkey.Key, baseline float32, config Config) float32 {
	type neighbor struct {
		dist  float32
		score float32
	}
	neighbors := make([]neighbor, 0, len(m.Contexts))
	for _, idx := range m.Contexts {
		neighbors = append(neighbors, neighbor{
			dist:  featureDistance(key, contextkey.FromIndex(idx)),
			score: snap.Cells[idx].Score,
		})
	}
	sort.Slice(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
	if len(neighbors) > config.WarmNeighbors {
		neighbors = neighbors[:config.WarmNeighbors]
	}

	var weighted, total float32
	for _, nb := range neighbors {
		w := 1 / (1 + nb.dist)
		weighted += w * nb.score
		total += w
	}
	if total == 0 {
		return baseline
	}
	seed := weighted / total
	if limit := baseline + config.TransferCap; seed > limit {
		seed = limit
	}
	if seed > config.FamiliarityCeiling {
		seed = config.FamiliarityCeiling
	}
	if seed < baseline {
		seed = baseline
	}
	return seed
}

// #endregion estimate
