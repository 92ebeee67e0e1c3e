// Package field owns all accumulated trust state. The Field aggregate
// holds one accumulator per context key in a fixed table; nothing else
// mutates trust. Updates are allocation-free so the reflexive tick can
// call them directly.
package field

import (
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region config

// Config tunes the trust accumulation policy.
type Config struct {
	// FloorMax is the ceiling of the earned floor curve.
	FloorMax float32 `yaml:"floor_max"`
	// FloorHalfCount is the interaction count at which the floor reaches
	// half of FloorMax.
	FloorHalfCount float32 `yaml:"floor_half_count"`
	// ColdStartBase caps the first-visit baseline before curiosity scaling.
	ColdStartBase float32 `yaml:"cold_start_base"`
	// BaseStep is the blend step at count zero; it shrinks as 1/(1+count/StepInertia).
	BaseStep    float32 `yaml:"base_step"`
	StepInertia float32 `yaml:"step_inertia"`
	// AloneBoost multiplies both step and count advance for benign
	// outcomes in solitary contexts.
	AloneBoost float32 `yaml:"alone_boost"`
	// HabituationCap is the consecutive-benign streak after which a
	// stimulus stops depressing the score in that context.
	HabituationCap uint16 `yaml:"habituation_cap"`
	// MaxCount saturates interaction counting.
	MaxCount uint32 `yaml:"max_count"`
	// DecayRate pulls idle contexts toward their floor per decay pass.
	DecayRate float32 `yaml:"decay_rate"`
	// DecayIdleTicks is how long a context must sit unvisited before it decays.
	DecayIdleTicks uint64 `yaml:"decay_idle_ticks"`
}

// DefaultConfig returns the tuning used on the robot.
func DefaultConfig() Config {
	return Config{
		FloorMax:       0.5,
		FloorHalfCount: 20,
		ColdStartBase:  0.15,
		BaseStep:       0.1,
		StepInertia:    25,
		AloneBoost:     2,
		HabituationCap: 5,
		MaxCount:       100_000,
		DecayRate:      0.002,
		DecayIdleTicks: 600,
	}
}

// EarnedFloor is the monotone lower bound trust may never fall below.
// It rises with count and saturates at FloorMax (~0.42 at 100 visits
// with the defaults).
func (c Config) EarnedFloor(count uint32) float32 {
	return c.FloorMax * (1 - 1/(1+float32(count)/c.FloorHalfCount))
}

// #endregion config

// #region accumulator

// Accumulator is the per-context trust statistic. Exported fields so
// snapshots and the store can copy it wholesale.
type Accumulator struct {
	// Count tallies benign interactions only; scares never raise the
	// earned floor.
	Count       uint32
	Score       float32
	Habituation [sense.NumStimulusKinds]uint16
	LastTick    uint64
	Visited     bool
}

// #endregion accumulator

// #region field

// Field is the aggregate owning the full accumulator table.
// Not safe for concurrent mutation; the reflexive loop is the single writer.
type Field struct {
	config    Config
	curiosity float32
	cells     [contextkey.NumContexts]Accumulator
}

// New builds an empty field. curiosity scales the cold-start baseline
// and is clamped to [0,1].
func New(config Config, curiosity float32) *Field {
	return &Field{config: config, curiosity: sense.Clamp(curiosity)}
}

// Config returns the active tuning.
func (f *Field) Config() Config { return f.config }

// Update records one tick's outcome for key. outcome lives in [-1,1];
// stimulus, when present, drives the habituation streak. Returns the
// post-update score. Allocation-free.
func (f *Field) Update(key contextkey.Key, outcome float32, stimulus sense.StimulusKind, tick uint64) float32 {
	if outcome < -1 {
		outcome = -1
	} else if outcome > 1 {
		outcome = 1
	}
	a := &f.cells[key.Index()]
	if !a.Visited {
		a.Score = f.config.ColdStartBase * f.curiosity
		a.Visited = true
	}
	pre := a.Score

	// Habituation streak: benign occurrences extend it, a real scare
	// below the cap breaks it. At the cap the stimulus is familiar and
	// can no longer push the score under its pre-stimulus value.
	suppressed := false
	if stimulus != sense.StimulusNone {
		h := &a.Habituation[stimulus]
		switch {
		case outcome >= 0:
			if *h < f.config.HabituationCap {
				*h++
			}
		case *h >= f.config.HabituationCap:
			suppressed = true
		default:
			*h = 0
		}
	}

	// Only benign outcomes earn floor: scares leave the count alone, so
	// a bad run can drop the score but never the bound it recovers to.
	step := f.config.BaseStep / (1 + float32(a.Count)/f.config.StepInertia)
	advance := uint32(0)
	if outcome >= 0 {
		advance = 1
		if key.Alone() {
			step *= f.config.AloneBoost
			advance = 2
		}
	}
	if a.Count > f.config.MaxCount-advance {
		a.Count = f.config.MaxCount
	} else {
		a.Count += advance
	}

	target := (outcome + 1) / 2
	next := a.Score + step*(target-a.Score)
	if suppressed && next < pre {
		next = pre
	}
	// Clamp against the floor the advanced count earns, so score and
	// count leave every update as a consistent pair.
	if floor := f.config.EarnedFloor(a.Count); next < floor {
		next = floor
	}
	a.Score = sense.Clamp(next)
	a.LastTick = tick
	return a.Score
}

// Score returns the context's current trust, or the cold-start baseline
// for contexts never visited. Read-only, allocation-free.
func (f *Field) Score(key contextkey.Key) float32 {
	a := &f.cells[key.Index()]
	if !a.Visited {
		return f.config.ColdStartBase * f.curiosity
	}
	return a.Score
}

// At returns a copy of the accumulator stored at a table index.
func (f *Field) At(index int) Accumulator { return f.cells[index] }

// Visited reports whether the context has ever been entered.
func (f *Field) Visited(key contextkey.Key) bool { return f.cells[key.Index()].Visited }

// VisitedCount counts live contexts, for telemetry and snapshot rows.
func (f *Field) VisitedCount() int {
	n := 0
	for i := range f.cells {
		if f.cells[i].Visited {
			n++
		}
	}
	return n
}

// Habituated reports whether the stimulus streak reached the cap in key.
func (f *Field) Habituated(key contextkey.Key, stimulus sense.StimulusKind) bool {
	if stimulus == sense.StimulusNone {
		return false
	}
	return f.cells[key.Index()].Habituation[stimulus] >= f.config.HabituationCap
}

// Decay pulls contexts idle for longer than DecayIdleTicks toward their
// earned floor. Bounded work over the fixed table, no allocation; the
// owning loop runs it on a cadence.
func (f *Field) Decay(tick uint64) {
	for i := range f.cells {
		a := &f.cells[i]
		if !a.Visited || tick-a.LastTick <= f.config.DecayIdleTicks {
			continue
		}
		floor := f.config.EarnedFloor(a.Count)
		if a.Score > floor {
			a.Score -= f.config.DecayRate * (a.Score - floor)
			if a.Score < floor {
				a.Score = floor
			}
		}
	}
}

// #endregion field
