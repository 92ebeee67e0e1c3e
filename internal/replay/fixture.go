package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/reflex"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded trace.
type Fixture struct {
	Description  string               `json:"description"`
	Curiosity    float32              `json:"curiosity"`
	Segments     []FixtureSegment     `json:"segments"`
	Expectations []FixtureExpectation `json:"expectations,omitempty"`
}

// FixtureSegment is one frame held constant for Repeat ticks. Traces
// from a real session are long runs of near-identical readings, so
// fixtures store them run-length encoded.
type FixtureSegment struct {
	Repeat int         `json:"repeat"`
	Frame  sense.Frame `json:"frame"`
}

// FixtureExpectation pins the phase after a given tick count.
type FixtureExpectation struct {
	AfterTick int    `json:"after_tick"`
	Phase     string `json:"phase"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Frames expands the run-length encoded segments into a flat trace.
// A segment with Repeat <= 0 contributes a single frame.
func (f *Fixture) Frames() []sense.Frame {
	var frames []sense.Frame
	for _, seg := range f.Segments {
		n := seg.Repeat
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			frames = append(frames, seg.Frame)
		}
	}
	return frames
}

// Check compares replay outputs against the fixture's expectations,
// returning one message per mismatch. AfterTick is 1-based.
func (f *Fixture) Check(outputs []reflex.Output) []string {
	var mismatches []string
	for _, exp := range f.Expectations {
		if exp.AfterTick < 1 || exp.AfterTick > len(outputs) {
			mismatches = append(mismatches, fmt.Sprintf("expectation after_tick %d outside trace of %d ticks", exp.AfterTick, len(outputs)))
			continue
		}
		got := outputs[exp.AfterTick-1].Phase.String()
		if got != exp.Phase {
			mismatches = append(mismatches, fmt.Sprintf("tick %d: phase %s, expected %s", exp.AfterTick, got, exp.Phase))
		}
	}
	return mismatches
}

// #endregion fixture-loader
