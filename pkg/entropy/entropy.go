// Package entropy synthesises a 64-bit entropy seed and a set of
// diversified 32-bit sub-seeds from a bio-compute response and the
// header features that produced it. Sub-seed diversification keeps the
// teacher's constant-multiply/shift/xor bit-mixing idiom
// (pkg/crypto/tetrapow.go's Round()) but replaces its literal algorithm
// with the spec's explicit linear-congruential step.
package entropy

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/features"
)

// DefaultSubSeedCount is how many diversified sub-seeds Seed produces.
const DefaultSubSeedCount = 16

const (
	lcgMultiplier = 0x5DEECE66D
	lcgIncrement  = 0xB
)

// Seed is the entropy synthesiser's output: a primary 64-bit seed, its
// diversified sub-seeds, a confidence score, and the raw response kept
// for later reinforcement.
type Seed struct {
	Primary      uint64
	SubSeeds     []uint32
	Confidence   float64
	Strength     float64
	Response     biocompute.Response
	ElapsedUS    int64
}

// Synthesise mixes response and features into a Seed. Pure with respect
// to its inputs.
func Synthesise(response biocompute.Response, f features.HeaderFeatures, startUS int64, nowUS int64, subSeedCount int) Seed {
	if subSeedCount <= 0 {
		subSeedCount = DefaultSubSeedCount
	}

	primary := primarySeed(response, f)
	sub := make([]uint32, subSeedCount)
	for i := 0; i < subSeedCount; i++ {
		sub[i] = diversify(primary, uint64(i))
	}

	confidence, strength := confidenceAndStrength(response)

	return Seed{
		Primary:    primary,
		SubSeeds:   sub,
		Confidence: confidence,
		Strength:   strength,
		Response:   response,
		ElapsedUS:  nowUS - startUS,
	}
}

// primarySeed hashes the response's 60 float64 voltages (raw LE bits)
// concatenated with (difficulty_log, timestamp_norm, prev-hash-entropy)
// LE bits, taking the first 8 bytes as a little-endian uint64.
func primarySeed(response biocompute.Response, f features.HeaderFeatures) uint64 {
	h := sha256.New()
	var buf [8]byte
	for _, v := range response.Voltages {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, v := range []float64{f.DifficultyLog, f.TimestampNorm, f.PrevHashEntropy} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// diversify produces the i-th sub-seed from primary via
// m = primary ^ (i<<32); m = m*0x5DEECE66D + 0xB; emit (m>>16) & 0xFFFFFFFF.
func diversify(primary uint64, i uint64) uint32 {
	m := primary ^ (i << 32)
	m = m*lcgMultiplier + lcgIncrement
	return uint32((m >> 16) & 0xFFFFFFFF)
}

// confidenceAndStrength computes confidence = clamp(s/(1+variance), 0, 1)
// where s = mean(|v_i|), from the response's own voltage vector (the
// same strength metric biocompute.NewResponse already derived, recomputed
// here so Seed's confidence definition stays self-contained and testable
// without depending on Response.Strength's internal rounding).
func confidenceAndStrength(response biocompute.Response) (confidence, strength float64) {
	var sum, sumAbs, sumSq float64
	n := float64(len(response.Voltages))
	for _, v := range response.Voltages {
		sum += v
		sumAbs += absF(v)
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	strength = sumAbs / n
	confidence = strength / (1 + variance)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence, strength
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
