// Package gate blends instantaneous coherence with accumulated context
// trust into the single effective scalar the phase machine consumes.
package gate

// #region config

// Config tunes the asymmetric blend.
type Config struct {
	// UnfamiliarCutoff: below this context score momentary calm cannot
	// count, so effective coherence is the min of the two inputs.
	UnfamiliarCutoff float32 `yaml:"unfamiliar_cutoff"`
	// InstantWeight and ContextWeight blend the familiar branch.
	// History dominates so transient sensor noise is buffered.
	InstantWeight float32 `yaml:"instant_weight"`
	ContextWeight float32 `yaml:"context_weight"`
}

// DefaultConfig returns the standard 0.3 cutoff with a 0.3/0.7 blend.
func DefaultConfig() Config {
	return Config{
		UnfamiliarCutoff: 0.3,
		InstantWeight:    0.3,
		ContextWeight:    0.7,
	}
}

// #endregion config

// #region gate

// Effective computes the gated coherence. Pure, constant-time,
// allocation-free; inputs arrive pre-clamped to [0,1].
func (c Config) Effective(instant, context float32) float32 {
	if context < c.UnfamiliarCutoff {
		if instant < context {
			return instant
		}
		return context
	}
	return c.InstantWeight*instant + c.ContextWeight*context
}

// #endregion gate
