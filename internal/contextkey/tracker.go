package contextkey

// #region tracker-config

// TrackerConfig tunes the proximity trend window.
type TrackerConfig struct {
	// Window is the number of recent closeness readings considered.
	Window int `yaml:"window"`
	// FarThreshold: mean closeness below this means nothing is in range.
	FarThreshold float32 `yaml:"far_threshold"`
	// TrendDelta: the closeness change across the window that counts as
	// approaching (positive) or receding (negative).
	TrendDelta float32 `yaml:"trend_delta"`
}

// DefaultTrackerConfig returns the tuning used on the robot.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Window:       10,
		FarThreshold: 0.10,
		TrendDelta:   0.08,
	}
}

// #endregion tracker-config

// #region tracker

const maxTrackerWindow = 32

// Tracker turns a stream of closeness readings (0 = far, 1 = touching)
// into a ProximityBand by comparing the old and new halves of a sliding
// window. It holds a fixed ring buffer so Push never allocates.
type Tracker struct {
	config TrackerConfig
	ring   [maxTrackerWindow]float32
	head   int
	filled int
}

// NewTracker builds a tracker. Windows above the internal ring capacity
// are truncated; windows below 2 are raised to 2 so a trend exists.
func NewTracker(config TrackerConfig) *Tracker {
	if config.Window > maxTrackerWindow {
		config.Window = maxTrackerWindow
	}
	if config.Window < 2 {
		config.Window = 2
	}
	return &Tracker{config: config}
}

// Push records one closeness reading and returns the current band.
func (t *Tracker) Push(closeness float32) ProximityBand {
	t.ring[t.head] = sense01(closeness)
	t.head = (t.head + 1) % t.config.Window
	if t.filled < t.config.Window {
		t.filled++
	}
	return t.Band()
}

// Band classifies the window without consuming a new reading.
// An unfilled window reports far: no evidence means no presence.
func (t *Tracker) Band() ProximityBand {
	if t.filled < t.config.Window {
		return ProximityFar
	}
	n := t.config.Window
	half := n / 2

	// Oldest reading lives at head once the ring is full.
	var oldSum, newSum, total float32
	for i := 0; i < n; i++ {
		v := t.ring[(t.head+i)%n]
		total += v
		if i < half {
			oldSum += v
		} else if i >= n-half {
			newSum += v
		}
	}
	if total/float32(n) < t.config.FarThreshold {
		return ProximityFar
	}
	trend := (newSum - oldSum) / float32(half)
	switch {
	case trend > t.config.TrendDelta:
		return ProximityApproaching
	case trend < -t.config.TrendDelta:
		return ProximityReceding
	default:
		return ProximityStatic
	}
}

// Reset clears the window, e.g. after a sensor dropout.
func (t *Tracker) Reset() {
	t.head = 0
	t.filled = 0
}

func sense01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion tracker
