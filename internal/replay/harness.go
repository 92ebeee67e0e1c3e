// Package replay runs recorded frame traces through the full reflexive
// pipeline in memory, so a behavior change can be checked against a
// captured session without a live robot.
package replay

import (
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/gate"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region types

// ReplayConfig bundles every pipeline stage config for a replay run.
type ReplayConfig struct {
	Curiosity float32
	Detector  sense.DetectorConfig
	Tracker   contextkey.TrackerConfig
	Field     field.Config
	Gate      gate.Config
	Phase     phase.Config
}

// DefaultReplayConfig returns the stage defaults with a mid curiosity drive.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Curiosity: 0.8,
		Detector:  sense.DefaultDetectorConfig(),
		Tracker:   contextkey.DefaultTrackerConfig(),
		Field:     field.DefaultConfig(),
		Gate:      gate.DefaultConfig(),
		Phase:     phase.DefaultConfig(),
	}
}

// Summary aggregates a replay run.
type Summary struct {
	TotalTicks       int
	PhaseTransitions int
	FinalPhase       phase.Phase
	VisitedContexts  int
	MeanEffective    float32
	DegradedTicks    int
}

// #endregion types

// #region replay

// Replay feeds frames through a fresh reflexive loop, one tick per
// frame, and returns the per-tick outputs in order. The loop never
// hears a deliberative heartbeat, so degraded behavior past the
// degradedAfter horizon is part of what replay exercises.
func Replay(frames []sense.Frame, config ReplayConfig, degradedAfter uint64) []reflex.Output {
	loop := reflex.NewLoop(
		sense.NewDetector(config.Detector),
		contextkey.NewTracker(config.Tracker),
		field.New(config.Field, config.Curiosity),
		config.Gate,
		phase.NewMachine(config.Phase),
		degradedAfter,
	)
	results := make([]reflex.Output, 0, len(frames))
	for _, f := range frames {
		results = append(results, loop.Tick(f))
	}
	return results
}

// Summarize computes aggregate stats from replay outputs.
func Summarize(results []reflex.Output) Summary {
	s := Summary{TotalTicks: len(results)}
	if len(results) == 0 {
		return s
	}
	seen := make(map[contextkey.Key]struct{})
	var sum float64
	for i, r := range results {
		seen[r.Key] = struct{}{}
		sum += float64(r.Effective)
		if r.Degraded {
			s.DegradedTicks++
		}
		if i > 0 && r.Phase != results[i-1].Phase {
			s.PhaseTransitions++
		}
	}
	s.FinalPhase = results[len(results)-1].Phase
	s.VisitedContexts = len(seen)
	s.MeanEffective = float32(sum / float64(len(results)))
	return s
}

// #endregion replay
