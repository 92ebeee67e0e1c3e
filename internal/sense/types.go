package sense

// #region frame

// Frame is the per-tick scalar bundle consumed from the homeostasis layer.
// All float fields are expected in [0, 1]; out-of-range values are clamped
// by Clamped() rather than rejected — the reflexive path never fails on input.
type Frame struct {
	Tension        float32 `json:"tension"`
	Coherence      float32 `json:"coherence"`
	Energy         float32 `json:"energy"`
	Curiosity      float32 `json:"curiosity"`
	Light          float32 `json:"light"`
	Noise          float32 `json:"noise"`
	Proximity      float32 `json:"proximity"`       // normalized distance: 0 = touching, 1 = out of range
	SocialPresence float32 `json:"social_presence"` // 0 = alone, 1 = someone detected
	Tick           uint64  `json:"tick"`
}

// Clamped returns a copy of the frame with every scalar forced into [0, 1].
func (f Frame) Clamped() Frame {
	f.Tension = Clamp(f.Tension)
	f.Coherence = Clamp(f.Coherence)
	f.Energy = Clamp(f.Energy)
	f.Curiosity = Clamp(f.Curiosity)
	f.Light = Clamp(f.Light)
	f.Noise = Clamp(f.Noise)
	f.Proximity = Clamp(f.Proximity)
	f.SocialPresence = Clamp(f.SocialPresence)
	return f
}

// #endregion frame

// #region stimulus

// StimulusKind enumerates discrete startle stimuli detected from frame deltas.
type StimulusKind uint8

const (
	StimulusNone StimulusKind = iota
	StimulusLoudnessSpike
	StimulusLightFlash
	StimulusSuddenApproach
	StimulusTensionJolt

	// NumStimulusKinds bounds habituation counter storage.
	NumStimulusKinds = 5
)

// String returns the snake_case name used in persistence and telemetry.
func (k StimulusKind) String() string {
	switch k {
	case StimulusLoudnessSpike:
		return "loudness_spike"
	case StimulusLightFlash:
		return "light_flash"
	case StimulusSuddenApproach:
		return "sudden_approach"
	case StimulusTensionJolt:
		return "tension_jolt"
	default:
		return "none"
	}
}

// StimulusEvent is a detected stimulus with its normalized magnitude.
type StimulusEvent struct {
	Kind      StimulusKind
	Magnitude float32 // [0, 1], size of the triggering delta
	Tick      uint64
}

// #endregion stimulus

// #region detector-config

// DetectorConfig holds per-channel delta thresholds for stimulus detection.
type DetectorConfig struct {
	NoiseDelta     float32 `yaml:"noise_delta"`     // minimum tick-over-tick noise rise
	LightDelta     float32 `yaml:"light_delta"`     // minimum tick-over-tick light rise
	ProximityDelta float32 `yaml:"proximity_delta"` // minimum tick-over-tick distance drop
	TensionDelta   float32 `yaml:"tension_delta"`   // minimum tick-over-tick tension rise
}

// DefaultDetectorConfig returns thresholds tuned for normalized sensor scalars.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		NoiseDelta:     0.30,
		LightDelta:     0.35,
		ProximityDelta: 0.25,
		TensionDelta:   0.30,
	}
}

// #endregion detector-config

// #region helpers

// Clamp restricts v to [0, 1].
func Clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
