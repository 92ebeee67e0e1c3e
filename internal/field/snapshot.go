package field

import "github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"

// #region snapshot

// Snapshot is a complete, self-contained copy of the field taken at a
// tick. It is what the background runner persists and what the store
// hands back on restart; restoring one reproduces every score exactly.
type Snapshot struct {
	Tick  uint64
	Cells [contextkey.NumContexts]Accumulator
}

// Snapshot copies the whole table. Called on the persistence cadence,
// not per tick.
func (f *Field) Snapshot(tick uint64) Snapshot {
	return Snapshot{Tick: tick, Cells: f.cells}
}

// Restore replaces the table verbatim from a snapshot.
func (f *Field) Restore(s Snapshot) {
	f.cells = s.Cells
}

// #endregion snapshot
