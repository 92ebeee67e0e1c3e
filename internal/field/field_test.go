package field

import (
	"testing"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

func socialKey() contextkey.Key {
	return contextkey.Key{
		Light:     contextkey.LightNormal,
		Noise:     contextkey.NoiseQuiet,
		Proximity: contextkey.ProximityStatic,
		Social:    contextkey.SocialAccompanied,
	}
}

func aloneKey() contextkey.Key {
	k := socialKey()
	k.Social = contextkey.SocialAlone
	return k
}

// #region update-tests

func TestColdStartBound(t *testing.T) {
	f := New(DefaultConfig(), 1.0)
	if got := f.Score(socialKey()); got > 0.15 {
		t.Fatalf("cold start score %v exceeds 0.15", got)
	}
	half := New(DefaultConfig(), 0.5)
	if got := half.Score(socialKey()); got != 0.075 {
		t.Fatalf("curiosity-scaled cold start = %v, want 0.075", got)
	}
}

func TestFloorMonotonicity(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	key := socialKey()
	outcomes := []float32{0.9, 0.9, -1, 0.5, -1, -1, 0.2, -0.8, 1, -1}
	for tick, out := range outcomes {
		score := f.Update(key, out, sense.StimulusNone, uint64(tick))
		floor := f.Config().EarnedFloor(f.At(key.Index()).Count)
		if score < floor {
			t.Fatalf("tick %d: score %v fell below floor %v", tick, score, floor)
		}
		if score < 0 || score > 1 {
			t.Fatalf("tick %d: score %v out of bounds", tick, score)
		}
	}
}

func TestFloorHoldsThroughNegativeRun(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	key := socialKey()

	// A fresh context hammered with worst-case outcomes.
	for i := 0; i < 10; i++ {
		score := f.Update(key, -1, sense.StimulusNone, uint64(i))
		floor := f.Config().EarnedFloor(f.At(key.Index()).Count)
		if score < floor {
			t.Fatalf("negative update %d: score %v below floor %v", i, score, floor)
		}
	}
	if got := f.At(key.Index()).Count; got != 0 {
		t.Fatalf("scares advanced the benign count to %d", got)
	}

	// An earned floor survives a later bad streak.
	for i := 0; i < 60; i++ {
		f.Update(key, 0.9, sense.StimulusNone, uint64(10+i))
	}
	count := f.At(key.Index()).Count
	floor := f.Config().EarnedFloor(count)
	for i := 0; i < 200; i++ {
		score := f.Update(key, -1, sense.StimulusNone, uint64(70+i))
		if score < floor {
			t.Fatalf("bad streak update %d: score %v below earned floor %v", i, score, floor)
		}
	}
	if got := f.At(key.Index()).Count; got != count {
		t.Fatalf("bad streak moved the count %d -> %d", count, got)
	}
}

func TestPositiveOutcomesRaiseScore(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	key := socialKey()
	prev := f.Score(key)
	for i := 0; i < 50; i++ {
		got := f.Update(key, 1, sense.StimulusNone, uint64(i))
		if got < prev {
			t.Fatalf("update %d: score regressed %v -> %v on positive outcome", i, prev, got)
		}
		prev = got
	}
	if prev < 0.6 {
		t.Errorf("50 fully positive interactions reached only %v", prev)
	}
}

func TestAloneBootstrapsAtDoubleRate(t *testing.T) {
	cfg := DefaultConfig()
	alone := New(cfg, 0.8)
	social := New(cfg, 0.8)
	for i := 0; i < 10; i++ {
		alone.Update(aloneKey(), 0.8, sense.StimulusNone, uint64(i))
		social.Update(socialKey(), 0.8, sense.StimulusNone, uint64(i))
	}
	aFloor := cfg.EarnedFloor(alone.At(aloneKey().Index()).Count)
	sFloor20 := cfg.EarnedFloor(social.At(socialKey().Index()).Count * 2)
	if aFloor != sFloor20 {
		t.Fatalf("alone floor after 10 = %v, want the social floor after 20 = %v", aFloor, sFloor20)
	}
	if alone.Score(aloneKey()) <= social.Score(socialKey()) {
		t.Errorf("alone score %v did not outpace social score %v",
			alone.Score(aloneKey()), social.Score(socialKey()))
	}
}

func TestCountSaturates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCount = 5
	f := New(cfg, 0.8)
	for i := 0; i < 20; i++ {
		f.Update(aloneKey(), 1, sense.StimulusNone, uint64(i))
	}
	if got := f.At(aloneKey().Index()).Count; got != 5 {
		t.Fatalf("count = %d, want saturation at 5", got)
	}
}

// #endregion update-tests

// #region habituation-tests

func TestHabituationSuppressesFamiliarStimulus(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	key := socialKey()
	for i := 0; i < 30; i++ {
		f.Update(key, 0.9, sense.StimulusNone, uint64(i))
	}
	// Five benign loudness spikes complete the streak.
	for i := 0; i < 5; i++ {
		f.Update(key, 0.3, sense.StimulusLoudnessSpike, uint64(30+i))
	}
	if !f.Habituated(key, sense.StimulusLoudnessSpike) {
		t.Fatalf("streak of 5 benign spikes did not habituate")
	}
	pre := f.Score(key)
	got := f.Update(key, -0.9, sense.StimulusLoudnessSpike, 40)
	if got < pre {
		t.Fatalf("habituated spike reduced score %v -> %v", pre, got)
	}

	// Same stimulus in a different context still hurts.
	other := key
	other.Light = contextkey.LightDark
	for i := 0; i < 30; i++ {
		f.Update(other, 0.9, sense.StimulusNone, uint64(i))
	}
	pre = f.Score(other)
	got = f.Update(other, -0.9, sense.StimulusLoudnessSpike, 80)
	if got >= pre {
		t.Fatalf("unhabituated context: score %v did not drop from %v", got, pre)
	}
}

func TestHabituationStreakBreaksOnScare(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	key := socialKey()
	for i := 0; i < 3; i++ {
		f.Update(key, 0.5, sense.StimulusLightFlash, uint64(i))
	}
	f.Update(key, -0.7, sense.StimulusLightFlash, 3)
	for i := 0; i < 4; i++ {
		f.Update(key, 0.5, sense.StimulusLightFlash, uint64(4+i))
	}
	if f.Habituated(key, sense.StimulusLightFlash) {
		t.Fatalf("streak survived a scare: 4 benign after reset should not habituate")
	}
	f.Update(key, 0.5, sense.StimulusLightFlash, 9)
	if !f.Habituated(key, sense.StimulusLightFlash) {
		t.Fatalf("5 consecutive benign occurrences did not habituate")
	}
}

// #endregion habituation-tests

// #region snapshot-tests

func TestSnapshotRestoreExact(t *testing.T) {
	f := New(DefaultConfig(), 0.8)
	for i := 0; i < contextkey.NumContexts; i += 3 {
		key := contextkey.FromIndex(i)
		f.Update(key, 0.6, sense.StimulusSuddenApproach, uint64(i))
		f.Update(key, -0.2, sense.StimulusNone, uint64(i+1))
	}
	snap := f.Snapshot(200)

	restored := New(DefaultConfig(), 0.8)
	restored.Restore(snap)
	for i := 0; i < contextkey.NumContexts; i++ {
		if restored.At(i) != f.At(i) {
			t.Fatalf("cell %d differs after restore: %+v vs %+v", i, restored.At(i), f.At(i))
		}
	}
	if restored.VisitedCount() != f.VisitedCount() {
		t.Fatalf("visited count %d != %d", restored.VisitedCount(), f.VisitedCount())
	}
}

func TestDecayStopsAtFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayIdleTicks = 10
	cfg.DecayRate = 0.5
	f := New(cfg, 0.8)
	key := socialKey()
	for i := 0; i < 40; i++ {
		f.Update(key, 1, sense.StimulusNone, uint64(i))
	}
	floor := cfg.EarnedFloor(f.At(key.Index()).Count)
	for pass := 0; pass < 100; pass++ {
		f.Decay(10_000)
	}
	got := f.Score(key)
	if got < floor {
		t.Fatalf("decay pushed score %v below floor %v", got, floor)
	}
	if got > floor+1e-4 {
		t.Errorf("aggressive decay should settle at floor %v, got %v", floor, got)
	}

	// A freshly visited context must not decay.
	fresh := aloneKey()
	f.Update(fresh, 1, sense.StimulusNone, 10_000)
	before := f.Score(fresh)
	f.Decay(10_005)
	if f.Score(fresh) != before {
		t.Fatalf("recently visited context decayed: %v -> %v", before, f.Score(fresh))
	}
}

// #endregion snapshot-tests
