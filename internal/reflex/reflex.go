// Package reflex runs the hot path: at a fixed period, one tick
// executes classify → accumulate → gate → phase in that order and
// publishes the result. The tick never logs, blocks, or waits on the
// background runner; everything it reads from that side comes through
// atomically swapped snapshots.
package reflex

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/gate"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region output

// Output is the published result of one reflexive tick.
type Output struct {
	Tick         uint64
	Key          contextkey.Key
	Stimulus     sense.StimulusKind
	Instant      float32
	ContextScore float32
	Effective    float32
	Tension      float32
	Phase        phase.Phase
	Permeability float32
	Degraded     bool
}

// #endregion output

// #region loop

// Loop owns the field and drives the reflexive pipeline. It is the
// single writer of all trust state; the background runner communicates
// only through the atomic handoffs below.
type Loop struct {
	detector *sense.Detector
	tracker  *contextkey.Tracker
	field    *field.Field
	gate     gate.Config
	machine  *phase.Machine

	// degradedAfter is the heartbeat staleness, in ticks, at which the
	// background runner counts as unreachable.
	degradedAfter uint64
	// decayEvery is the idle-decay cadence in ticks; 0 disables it.
	decayEvery uint64

	tick     atomic.Uint64
	lastBeat atomic.Uint64
	degraded atomic.Bool

	estimates atomic.Pointer[mixer.Estimates]
	pending   atomic.Pointer[field.Snapshot] // resync waiting to be applied
	snapWant  atomic.Bool
	snapshot  atomic.Pointer[field.Snapshot] // latest fulfilled request

	// output holds the latest published tick result. Each tick stores a
	// fresh value so readers may hold the pointer indefinitely.
	output atomic.Pointer[Output]
}

// NewLoop assembles the pipeline around a freshly built or restored field.
func NewLoop(
	detector *sense.Detector,
	tracker *contextkey.Tracker,
	f *field.Field,
	gateCfg gate.Config,
	machine *phase.Machine,
	degradedAfter uint64,
) *Loop {
	return &Loop{
		detector:      detector,
		tracker:       tracker,
		field:         f,
		gate:          gateCfg,
		machine:       machine,
		degradedAfter: degradedAfter,
		decayEvery:    f.Config().DecayIdleTicks,
	}
}

// #endregion loop

// #region tick

// Tick executes one reflexive step and returns the published output.
// Classify, accumulate, gate, and phase run in that fixed order.
// Must be called from a single goroutine.
func (l *Loop) Tick(f sense.Frame) Output {
	tick := l.tick.Add(1)
	f = f.Clamped()

	// A resync published by the runner is only ever applied here, at
	// the tick boundary, never mid-pipeline.
	if snap := l.pending.Swap(nil); snap != nil {
		l.field.Restore(*snap)
	}

	stimulus := l.detector.Observe(f)
	proximity := l.tracker.Push(1 - f.Proximity) // tracker works on closeness
	key := contextkey.Classify(f, proximity)

	outcome := f.Coherence - f.Tension
	if stimulus.Kind != sense.StimulusNone {
		outcome -= 0.5 * stimulus.Magnitude
	}
	score := l.field.Update(key, outcome, stimulus.Kind, tick)

	contextScore := score
	if est := l.estimates.Load(); est != nil && est[key.Index()] > contextScore {
		contextScore = est[key.Index()]
	}

	degraded := l.isDegraded(tick)
	var effective float32
	if degraded {
		// No trustworthy contextual state; fall back to the
		// instantaneous signal alone.
		effective = f.Coherence
	} else {
		effective = l.gate.Effective(f.Coherence, contextScore)
	}

	current := l.machine.Step(effective, f.Tension)

	out := &Output{
		Tick:         tick,
		Key:          key,
		Stimulus:     stimulus.Kind,
		Instant:      f.Coherence,
		ContextScore: contextScore,
		Effective:    effective,
		Tension:      f.Tension,
		Phase:        current,
		Permeability: phase.Permeability(current, effective),
		Degraded:     degraded,
	}
	l.output.Store(out)

	if l.decayEvery > 0 && tick%l.decayEvery == 0 {
		l.field.Decay(tick)
	}

	if l.snapWant.CompareAndSwap(true, false) {
		snap := l.field.Snapshot(tick)
		l.snapshot.Store(&snap)
	}
	return *out
}

func (l *Loop) isDegraded(tick uint64) bool {
	if l.degradedAfter == 0 {
		return false
	}
	stale := tick-l.lastBeat.Load() > l.degradedAfter
	l.degraded.Store(stale)
	return stale
}

// #endregion tick

// #region handoff

// Output returns the most recently published tick result, or nil
// before the first tick. Safe from any goroutine.
func (l *Loop) Output() *Output {
	return l.output.Load()
}

// CurrentTick returns the number of completed ticks.
func (l *Loop) CurrentTick() uint64 { return l.tick.Load() }

// Degraded reports the current degraded-mode flag.
func (l *Loop) Degraded() bool { return l.degraded.Load() }

// Heartbeat marks the background runner reachable as of now. Called by
// the runner on every completed cycle.
func (l *Loop) Heartbeat() {
	l.lastBeat.Store(l.tick.Load())
}

// PublishEstimates atomically replaces the refined score table the
// gate reads. A nil table clears it.
func (l *Loop) PublishEstimates(est *mixer.Estimates) {
	l.estimates.Store(est)
}

// Resync schedules a persisted snapshot to replace the in-memory field
// at the start of the next tick, used on reconnect after degraded mode
// so learned familiarity is never lost.
func (l *Loop) Resync(snap field.Snapshot) {
	l.pending.Store(&snap)
}

// RequestSnapshot asks the loop to copy the field at its next tick.
func (l *Loop) RequestSnapshot() {
	l.snapWant.Store(true)
}

// TakeSnapshot returns the last fulfilled snapshot request and clears
// it, or nil when none is ready yet.
func (l *Loop) TakeSnapshot() *field.Snapshot {
	return l.snapshot.Swap(nil)
}

// #endregion handoff

// #region run

// Run drives the loop at the given period until ctx is cancelled.
// Frames arriving between ticks replace each other; each tick consumes
// the freshest one, reusing the previous frame when none arrived.
func (l *Loop) Run(ctx context.Context, period time.Duration, frames <-chan sense.Frame) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last sense.Frame
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			last = f
		case <-ticker.C:
			last = drain(frames, last)
			l.Tick(last)
		}
	}
}

func drain(frames <-chan sense.Frame, last sense.Frame) sense.Frame {
	for {
		select {
		case f := <-frames:
			last = f
		default:
			return last
		}
	}
}

// #endregion run
