package reflex

import (
	"testing"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/gate"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/phase"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

func newTestLoop(degradedAfter uint64) *Loop {
	return NewLoop(
		sense.NewDetector(sense.DefaultDetectorConfig()),
		contextkey.NewTracker(contextkey.DefaultTrackerConfig()),
		field.New(field.DefaultConfig(), 0.8),
		gate.DefaultConfig(),
		phase.NewMachine(phase.DefaultConfig()),
		degradedAfter,
	)
}

func calmFrame() sense.Frame {
	return sense.Frame{
		Tension:        0.1,
		Coherence:      0.8,
		Energy:         0.5,
		Curiosity:      0.8,
		Light:          0.3,
		Noise:          0.3,
		Proximity:      0.5,
		SocialPresence: 0.8,
	}
}

// #region tick-tests

func TestTickPublishesOutput(t *testing.T) {
	l := newTestLoop(0)
	if l.Output() != nil {
		t.Fatal("output published before first tick")
	}
	out := l.Tick(calmFrame())
	if out.Tick != 1 {
		t.Fatalf("first tick = %d", out.Tick)
	}
	got := l.Output()
	if got == nil || *got != out {
		t.Fatalf("published output %+v differs from returned %+v", got, out)
	}
	if out.Phase != phase.ShyObserver {
		t.Fatalf("a new field should start shy, got %v", out.Phase)
	}
}

func TestUnfamiliarContextGatesToMin(t *testing.T) {
	l := newTestLoop(0)
	out := l.Tick(calmFrame())
	// Context score starts near cold-start; instant coherence is 0.8.
	if out.ContextScore >= 0.3 {
		t.Fatalf("fresh context already familiar: %v", out.ContextScore)
	}
	if out.Effective > out.ContextScore {
		t.Fatalf("effective %v exceeds unfamiliar context score %v", out.Effective, out.ContextScore)
	}
}

func TestTrustGrowsAndPhaseWarms(t *testing.T) {
	l := newTestLoop(0)
	var out Output
	for i := 0; i < 400; i++ {
		out = l.Tick(calmFrame())
	}
	if out.ContextScore < 0.5 {
		t.Fatalf("400 calm ticks earned only %v context trust", out.ContextScore)
	}
	if out.Phase != phase.QuietlyBeloved {
		t.Fatalf("phase = %v after 400 calm ticks, want quietly_beloved", out.Phase)
	}
	if out.Permeability <= 0.5 {
		t.Fatalf("beloved permeability = %v, want > 0.5", out.Permeability)
	}
}

func TestPublishedEstimatesLiftSparseContexts(t *testing.T) {
	l := newTestLoop(0)
	l.Tick(calmFrame())
	key := l.Output().Key

	var est mixer.Estimates
	est[key.Index()] = 0.29
	l.PublishEstimates(&est)

	out := l.Tick(calmFrame())
	if out.ContextScore < 0.28 {
		t.Fatalf("estimate not applied: context score %v", out.ContextScore)
	}
}

func TestStaleEstimateCannotMaskTrustDrop(t *testing.T) {
	l := newTestLoop(0)
	for i := 0; i < 400; i++ {
		l.Tick(calmFrame())
	}
	key := l.Output().Key
	high := l.Output().ContextScore

	// Estimates computed from the warm snapshot: the dense context gets
	// a zero entry, so the table carries no stale authority over it.
	l.RequestSnapshot()
	l.Tick(calmFrame())
	snap := l.TakeSnapshot()
	m, err := mixer.Compute(snap, mixer.DefaultConfig())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	est := m.EstimateAll(snap, 0.12, mixer.DefaultConfig())
	if est[key.Index()] != 0 {
		t.Fatalf("dense context published estimate %v", est[key.Index()])
	}
	l.PublishEstimates(&est)

	scare := calmFrame()
	scare.Tension = 0.9
	scare.Coherence = 0.1
	var out Output
	for i := 0; i < 200; i++ {
		out = l.Tick(scare)
	}
	if out.ContextScore >= high {
		t.Fatalf("context score %v did not drop from %v under a sustained scare", out.ContextScore, high)
	}
}

// #endregion tick-tests

// #region degraded-tests

func TestDegradedAfterStaleHeartbeat(t *testing.T) {
	l := newTestLoop(5)
	f := calmFrame()
	for i := 0; i < 5; i++ {
		if out := l.Tick(f); out.Degraded {
			t.Fatalf("degraded at tick %d, inside the grace window", out.Tick)
		}
	}
	out := l.Tick(f)
	if !out.Degraded {
		t.Fatal("heartbeat stale past the window but not degraded")
	}
	// Degraded mode gates on the instantaneous signal alone.
	if out.Effective != out.Instant {
		t.Fatalf("degraded effective %v != instant %v", out.Effective, out.Instant)
	}

	l.Heartbeat()
	out = l.Tick(f)
	if out.Degraded {
		t.Fatal("still degraded after a fresh heartbeat")
	}
}

func TestResyncRestoresPersistedScores(t *testing.T) {
	l := newTestLoop(0)
	f := calmFrame()
	l.Tick(f)
	key := l.Output().Key

	trained := field.New(field.DefaultConfig(), 0.8)
	for i := 0; i < 300; i++ {
		trained.Update(key, 0.7, sense.StimulusNone, uint64(i))
	}
	want := trained.Score(key)

	l.Resync(trained.Snapshot(300))
	out := l.Tick(f)
	if out.ContextScore < want {
		t.Fatalf("restored context score %v regressed below persisted %v", out.ContextScore, want)
	}
}

// #endregion degraded-tests

// #region snapshot-tests

func TestSnapshotRequestFulfilledNextTick(t *testing.T) {
	l := newTestLoop(0)
	l.Tick(calmFrame())
	if l.TakeSnapshot() != nil {
		t.Fatal("snapshot available without a request")
	}

	l.RequestSnapshot()
	l.Tick(calmFrame())
	snap := l.TakeSnapshot()
	if snap == nil {
		t.Fatal("requested snapshot not fulfilled")
	}
	if snap.Tick != 2 {
		t.Fatalf("snapshot tick = %d, want 2", snap.Tick)
	}
	if l.TakeSnapshot() != nil {
		t.Fatal("snapshot not cleared after take")
	}
}

// #endregion snapshot-tests
