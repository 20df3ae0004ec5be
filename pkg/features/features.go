// Package features extracts a fixed 60-dimensional feature vector from a
// block header. The Shannon-entropy computation is grounded on the
// teacher's zetahash-metrics entropy loop (proof_of_forge.go), retargeted
// from a derived-address metric to a header hex-string metric.
package features

import (
	"math"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/header"
)

// Dimensions is the fixed length of a HeaderFeatures vector.
const Dimensions = 60

// epochStart and epochEnd bound the timestamp-normalisation window.
var (
	epochStart = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	epochEnd   = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
)

// HeaderFeatures is the pure, deterministic feature vector described by
// the data model: a 60-float array plus the scalar inputs that went into
// it, kept alongside for C3/C7 to reuse without recomputing them.
type HeaderFeatures struct {
	Vector          [Dimensions]float64
	TimestampNorm   float64
	DifficultyLog   float64
	PrevHashEntropy float64
	MerkleEntropy   float64
}

// Extract computes HeaderFeatures for h given the job's difficulty. Pure:
// no I/O, repeated calls on the same inputs are bit-identical.
func Extract(h *header.BlockHeader, difficulty float64) HeaderFeatures {
	f := HeaderFeatures{}

	f.TimestampNorm = normaliseTimestamp(int64(h.Timestamp))
	f.DifficultyLog = difficultyLog(difficulty)

	prevHex := hexString(h.PrevHash[:])
	merkleHex := hexString(h.MerkleRoot[:])

	f.PrevHashEntropy = shannonEntropy(prevHex)
	f.MerkleEntropy = shannonEntropy(merkleHex)

	prevBytes := normalisedBytes(h.PrevHash[:], 20)
	merkleBytes := normalisedBytes(h.MerkleRoot[:], 20)

	v := &f.Vector
	idx := 0
	v[idx] = f.DifficultyLog / 10
	idx++
	v[idx] = f.TimestampNorm
	idx++
	for i := 0; i < 8; i++ {
		if i%2 == 0 {
			v[idx] = f.DifficultyLog / 10
		} else {
			v[idx] = f.TimestampNorm
		}
		idx++
	}

	for i := 0; i < 10; i++ {
		v[idx] = prevBytes[i]
		idx++
	}
	for i := 0; i < 10; i++ {
		v[idx] = merkleBytes[i]
		idx++
	}
	for i := 0; i < 5; i++ {
		v[idx] = f.PrevHashEntropy / 4
		idx++
		v[idx] = f.MerkleEntropy / 4
		idx++
	}
	for i := 10; i < 20; i++ {
		v[idx] = prevBytes[i]
		idx++
	}
	for i := 10; i < 20; i++ {
		v[idx] = merkleBytes[i]
		idx++
	}

	return f
}

// normaliseTimestamp maps a Unix timestamp to [0,1] against the fixed
// [2009-01-01, 2030-01-01] window, clamping values outside it.
func normaliseTimestamp(ts int64) float64 {
	if ts <= epochStart {
		return 0
	}
	if ts >= epochEnd {
		return 1
	}
	return float64(ts-epochStart) / float64(epochEnd-epochStart)
}

// difficultyLog returns log10(difficulty+1); a difficulty of 0 yields 0,
// never -Inf.
func difficultyLog(difficulty float64) float64 {
	if difficulty < 0 {
		difficulty = 0
	}
	return math.Log10(difficulty + 1)
}

// shannonEntropy treats each hex character as a symbol over a <=16-symbol
// alphabet and returns -sum(p_i * log2(p_i)). Empty strings yield 0.
func shannonEntropy(hex string) float64 {
	if len(hex) == 0 {
		return 0
	}
	var counts [16]int
	for _, c := range hex {
		if n, ok := hexNibble(c); ok {
			counts[n]++
		}
	}
	total := float64(len(hex))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func hexNibble(c rune) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// normalisedBytes reads the first n bytes of b and maps each to [0,1];
// short slices are right-padded with 0.0.
func normalisedBytes(b []byte, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < len(b) {
			out[i] = float64(b[i]) / 255.0
		}
	}
	return out
}

const hexDigits = "0123456789abcdef"

// hexString lowercases-encodes b as hex without allocating via fmt.
func hexString(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
