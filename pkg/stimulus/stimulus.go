// Package stimulus maps a 60-dimensional HeaderFeatures vector onto a
// per-electrode amplitude/frequency pattern for the bio-compute interface.
// The electrode-block mapping is exact and load-bearing: downstream tests
// depend on it.
package stimulus

import (
	"math"

	"github.com/jadaela-ara/biomining-go/pkg/features"
)

// ElectrodeCount is the fixed number of MEA channels.
const ElectrodeCount = 60

// DefaultDurationMS is the default stimulation pulse duration.
const DefaultDurationMS = 100

// Electrode is a single channel's stimulation parameters.
type Electrode struct {
	AmplitudeV  float64
	FrequencyHz float64
}

// Pattern is the full 60-electrode stimulation pattern for one job.
type Pattern struct {
	Electrodes  [ElectrodeCount]Electrode
	DurationMS  uint32
	TotalEnergy float64
}

// Build constructs a Pattern from HeaderFeatures. vMax clamps every
// amplitude to [0, vMax]. Deterministic and pure: the same features and
// vMax always produce the same pattern.
func Build(f features.HeaderFeatures, vMax float64) Pattern {
	var p Pattern
	p.DurationMS = DefaultDurationMS

	v := f.Vector

	// electrodes 0-9: alternating difficulty_log/10, timestamp_norm
	for i := 0; i < 10; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 50 + 100*val,
		}
	}
	// electrodes 10-19: prev-hash bytes[0..10]
	for i := 10; i < 20; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 100 + 50*val,
		}
	}
	// electrodes 20-29: merkle bytes[0..10]
	for i := 20; i < 30; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 75 + 75*val,
		}
	}
	// electrodes 30-39: alternating prev-entropy / merkle-entropy
	for i := 30; i < 40; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 60 + 90*val,
		}
	}
	// electrodes 40-49: prev-hash bytes[10..20]
	for i := 40; i < 50; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 80 + 70*val,
		}
	}
	// electrodes 50-59: merkle bytes[10..20]
	for i := 50; i < 60; i++ {
		val := clamp01(v[i])
		p.Electrodes[i] = Electrode{
			AmplitudeV:  clampAmp(val*vMax, vMax),
			FrequencyHz: 90 + 60*val,
		}
	}

	var energy float64
	for _, e := range p.Electrodes {
		energy += e.AmplitudeV * e.AmplitudeV
	}
	p.TotalEnergy = energy

	return p
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampAmp(v, vMax float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > vMax {
		return vMax
	}
	return v
}

// ResponseVector extracts the plain amplitude values as a slice, the
// shape consumed directly as the simulated backend's input layer.
func (p Pattern) ResponseVector() [ElectrodeCount]float64 {
	var out [ElectrodeCount]float64
	for i, e := range p.Electrodes {
		out[i] = e.AmplitudeV
	}
	return out
}
