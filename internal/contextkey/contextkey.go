// Package contextkey defines the discrete context vocabulary and the
// classifier that maps instantaneous sensor scalars into a ContextKey.
// The full key space is fixed (NumContexts combinations) so accumulator
// state can live in a flat table instead of a growing map.
package contextkey

import "github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"

// #region bands

// LightBand buckets the normalized light level.
type LightBand uint8

const (
	LightDark LightBand = iota
	LightNormal
	LightBright

	numLightBands = 3
)

// NoiseBand buckets the normalized ambient noise level.
type NoiseBand uint8

const (
	NoiseQuiet NoiseBand = iota
	NoiseNormal
	NoiseLoud

	numNoiseBands = 3
)

// ProximityBand classifies the distance trend over the tracker window.
type ProximityBand uint8

const (
	ProximityFar ProximityBand = iota
	ProximityStatic
	ProximityApproaching
	ProximityReceding

	numProximityBands = 4
)

// SocialBand distinguishes alone from accompanied situations.
type SocialBand uint8

const (
	SocialAlone SocialBand = iota
	SocialAccompanied

	numSocialBands = 2
)

// NumContexts is the size of the full key space (3 × 3 × 4 × 2).
const NumContexts = numLightBands * numNoiseBands * numProximityBands * numSocialBands

// #endregion bands

// #region band-classifiers

// LightBandOf maps a [0,1] light level into a band. Out-of-range input
// lands in the nearest bucket.
func LightBandOf(level float32) LightBand {
	switch {
	case level < 0.15:
		return LightDark
	case level < 0.50:
		return LightNormal
	default:
		return LightBright
	}
}

// NoiseBandOf maps a [0,1] noise level into a band.
func NoiseBandOf(level float32) NoiseBand {
	switch {
	case level < 0.15:
		return NoiseQuiet
	case level < 0.50:
		return NoiseNormal
	default:
		return NoiseLoud
	}
}

// SocialBandOf maps a [0,1] social-presence scalar into a band.
func SocialBandOf(presence float32) SocialBand {
	if presence >= 0.5 {
		return SocialAccompanied
	}
	return SocialAlone
}

// #endregion band-classifiers

// #region key

// Key is the immutable situation fingerprint. Two ticks with equal keys
// are the same relational situation for trust accumulation.
type Key struct {
	Light     LightBand
	Noise     NoiseBand
	Proximity ProximityBand
	Social    SocialBand
}

// Index returns the key's slot in a flat [NumContexts] table.
func (k Key) Index() int {
	i := int(k.Light)
	i = i*numNoiseBands + int(k.Noise)
	i = i*numProximityBands + int(k.Proximity)
	i = i*numSocialBands + int(k.Social)
	return i
}

// FromIndex reconstructs the key stored at a table slot.
// It is the inverse of Index for all i in [0, NumContexts).
func FromIndex(i int) Key {
	var k Key
	k.Social = SocialBand(i % numSocialBands)
	i /= numSocialBands
	k.Proximity = ProximityBand(i % numProximityBands)
	i /= numProximityBands
	k.Noise = NoiseBand(i % numNoiseBands)
	i /= numNoiseBands
	k.Light = LightBand(i % numLightBands)
	return k
}

// Hash returns a deterministic FNV-1a hash of the key, used to tag
// persisted rows and telemetry without exposing table indices.
func (k Key) Hash() uint32 {
	h := uint32(2166136261)
	for _, v := range [4]uint32{uint32(k.Light), uint32(k.Noise), uint32(k.Proximity), uint32(k.Social)} {
		h ^= v
		h *= 16777619
	}
	return h
}

// FeatureVec maps the key into a 4-dim point in [0,1]^4 for similarity
// computations. Each dimension is the variant index scaled to unit range.
func (k Key) FeatureVec() [4]float32 {
	return [4]float32{
		float32(k.Light) / float32(numLightBands-1),
		float32(k.Noise) / float32(numNoiseBands-1),
		float32(k.Proximity) / float32(numProximityBands-1),
		float32(k.Social) / float32(numSocialBands-1),
	}
}

// Alone reports whether the key is a solitary context.
func (k Key) Alone() bool {
	return k.Social == SocialAlone
}

func (k Key) String() string {
	return lightNames[k.Light] + "/" + noiseNames[k.Noise] + "/" +
		proximityNames[k.Proximity] + "/" + socialNames[k.Social]
}

var (
	lightNames     = [numLightBands]string{"dark", "normal", "bright"}
	noiseNames     = [numNoiseBands]string{"quiet", "normal", "loud"}
	proximityNames = [numProximityBands]string{"far", "static", "approaching", "receding"}
	socialNames    = [numSocialBands]string{"alone", "accompanied"}
)

// BandNames returns the textual band values in persistence order.
func (k Key) BandNames() (light, noise, proximity, social string) {
	return lightNames[k.Light], noiseNames[k.Noise],
		proximityNames[k.Proximity], socialNames[k.Social]
}

// KeyFromBandNames rebuilds a key from persisted band names.
// Unknown names report ok=false so stale rows can be skipped.
func KeyFromBandNames(light, noise, proximity, social string) (Key, bool) {
	var k Key
	ok := false
	for i, n := range lightNames {
		if n == light {
			k.Light, ok = LightBand(i), true
		}
	}
	if !ok {
		return Key{}, false
	}
	ok = false
	for i, n := range noiseNames {
		if n == noise {
			k.Noise, ok = NoiseBand(i), true
		}
	}
	if !ok {
		return Key{}, false
	}
	ok = false
	for i, n := range proximityNames {
		if n == proximity {
			k.Proximity, ok = ProximityBand(i), true
		}
	}
	if !ok {
		return Key{}, false
	}
	ok = false
	for i, n := range socialNames {
		if n == social {
			k.Social, ok = SocialBand(i), true
		}
	}
	if !ok {
		return Key{}, false
	}
	return k, true
}

// #endregion key

// #region classify

// Classify derives the context key for one tick. Pure, constant-time,
// allocation-free; out-of-range scalars are clamped into the nearest band.
// The proximity band must be pre-computed by a Tracker since it depends
// on the distance trend, not a single reading.
func Classify(f sense.Frame, proximity ProximityBand) Key {
	return Key{
		Light:     LightBandOf(f.Light),
		Noise:     NoiseBandOf(f.Noise),
		Proximity: proximity,
		Social:    SocialBandOf(f.SocialPresence),
	}
}

// #endregion classify
