package boundary

// #region trigger

// Trigger decides when a boundary recompute is worth running. The cut
// is advisory, so it only refires after the cut weight moved by
// FireDelta and the cooldown elapsed. Not safe for concurrent use; the
// background runner is its single caller.
type Trigger struct {
	config     Config
	lastWeight float32
	lastTick   uint64
	fired      bool
}

// NewTrigger builds a trigger that fires on its first observation.
func NewTrigger(config Config) *Trigger {
	return &Trigger{config: config}
}

// ShouldFire reports whether a recompute is due given the current cut
// weight and tick, and records the observation when it fires.
func (t *Trigger) ShouldFire(weight float32, tick uint64) bool {
	if t.fired {
		if tick-t.lastTick < t.config.CooldownTicks {
			return false
		}
		delta := weight - t.lastWeight
		if delta < 0 {
			delta = -delta
		}
		if delta < t.config.FireDelta {
			return false
		}
	}
	t.fired = true
	t.lastWeight = weight
	t.lastTick = tick
	return true
}

// #endregion trigger
