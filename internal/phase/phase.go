// Package phase maps (effective coherence, tension) to one of four
// behavior phases with Schmitt-trigger hysteresis, plus the output
// permeability scalar each phase grants.
package phase

// #region phase

// Phase is the behavioral quadrant.
type Phase uint8

const (
	// ShyObserver: low coherence, low tension. The initial phase.
	ShyObserver Phase = iota
	// StartledRetreat: low coherence, high tension.
	StartledRetreat
	// QuietlyBeloved: high coherence, low tension.
	QuietlyBeloved
	// ProtectiveGuardian: high coherence, high tension.
	ProtectiveGuardian
)

func (p Phase) String() string {
	switch p {
	case ShyObserver:
		return "shy_observer"
	case StartledRetreat:
		return "startled_retreat"
	case QuietlyBeloved:
		return "quietly_beloved"
	case ProtectiveGuardian:
		return "protective_guardian"
	default:
		return "unknown"
	}
}

// CoherenceHigh reports the coherence half of the quadrant.
func (p Phase) CoherenceHigh() bool { return p == QuietlyBeloved || p == ProtectiveGuardian }

// TensionHigh reports the tension half of the quadrant.
func (p Phase) TensionHigh() bool { return p == StartledRetreat || p == ProtectiveGuardian }

func quadrant(cohHigh, tenHigh bool) Phase {
	switch {
	case cohHigh && tenHigh:
		return ProtectiveGuardian
	case cohHigh:
		return QuietlyBeloved
	case tenHigh:
		return StartledRetreat
	default:
		return ShyObserver
	}
}

// #endregion phase

// #region config

// Config holds the quadrant thresholds and the hysteresis margin.
// An axis flips high only above threshold+margin and back low only
// below threshold-margin, so inputs hovering at a boundary cannot flap
// the phase.
type Config struct {
	CoherenceThreshold float32 `yaml:"coherence_threshold"`
	TensionThreshold   float32 `yaml:"tension_threshold"`
	Margin             float32 `yaml:"margin"`
}

// DefaultConfig returns 0.5/0.5 thresholds with a 0.05 margin.
func DefaultConfig() Config {
	return Config{
		CoherenceThreshold: 0.5,
		TensionThreshold:   0.5,
		Margin:             0.05,
	}
}

// #endregion config

// #region machine

// Machine is the hysteresis state machine. It remembers which side of
// each threshold produced the current phase. Single-owner, not
// synchronized; the reflexive loop drives it.
type Machine struct {
	config  Config
	current Phase
}

// NewMachine starts in ShyObserver.
func NewMachine(config Config) *Machine {
	return &Machine{config: config, current: ShyObserver}
}

// Current returns the reported phase without stepping.
func (m *Machine) Current() Phase { return m.current }

// Step advances the machine one tick and returns the reported phase.
// Allocation-free, constant time.
func (m *Machine) Step(effectiveCoherence, tension float32) Phase {
	cohHigh := schmitt(m.current.CoherenceHigh(), effectiveCoherence,
		m.config.CoherenceThreshold, m.config.Margin)
	tenHigh := schmitt(m.current.TensionHigh(), tension,
		m.config.TensionThreshold, m.config.Margin)
	m.current = quadrant(cohHigh, tenHigh)
	return m.current
}

// Reset forces the machine back to a phase, used on snapshot restore.
func (m *Machine) Reset(p Phase) { m.current = p }

func schmitt(high bool, value, threshold, margin float32) bool {
	if high {
		return value >= threshold-margin
	}
	return value > threshold+margin
}

// #endregion machine

// #region permeability

// Permeability is the [0,1] scalar that scales expressive output in a
// phase. Retreat is a reflex, not expression, so it stays at a fixed
// low value regardless of coherence.
func Permeability(p Phase, effectiveCoherence float32) float32 {
	switch p {
	case ShyObserver:
		return effectiveCoherence * 0.3
	case StartledRetreat:
		return 0.1
	case QuietlyBeloved:
		return 0.5 + effectiveCoherence*0.5
	case ProtectiveGuardian:
		return 0.4 + effectiveCoherence*0.2
	default:
		return 0
	}
}

// #endregion permeability
