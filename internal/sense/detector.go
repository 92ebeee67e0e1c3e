package sense

// #region detector

// Detector derives discrete stimulus events from consecutive frames.
// It keeps only the previous frame; no allocation per tick.
type Detector struct {
	config DetectorConfig
	prev   Frame
	primed bool
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(config DetectorConfig) *Detector {
	return &Detector{config: config}
}

// #endregion detector

// #region observe

// Observe compares the frame against the previous one and returns the
// strongest stimulus crossed this tick, or an event with StimulusNone.
// The first frame only primes the detector.
func (d *Detector) Observe(f Frame) StimulusEvent {
	if !d.primed {
		d.prev = f
		d.primed = true
		return StimulusEvent{Kind: StimulusNone, Tick: f.Tick}
	}

	event := StimulusEvent{Kind: StimulusNone, Tick: f.Tick}

	// Deltas that indicate a startle. Proximity drops (object closing in),
	// the rest rise.
	note := func(kind StimulusKind, delta, threshold float32) {
		if delta >= threshold && delta > event.Magnitude {
			event.Kind = kind
			event.Magnitude = Clamp(delta)
		}
	}
	note(StimulusLoudnessSpike, f.Noise-d.prev.Noise, d.config.NoiseDelta)
	note(StimulusLightFlash, f.Light-d.prev.Light, d.config.LightDelta)
	note(StimulusSuddenApproach, d.prev.Proximity-f.Proximity, d.config.ProximityDelta)
	note(StimulusTensionJolt, f.Tension-d.prev.Tension, d.config.TensionDelta)

	d.prev = f
	return event
}

// Reset clears the previous frame, e.g. after a sensor gap.
func (d *Detector) Reset() {
	d.primed = false
}

// #endregion observe
