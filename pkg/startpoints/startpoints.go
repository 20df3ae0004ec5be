// Package startpoints generates 32-bit nonce starting positions from an
// entropy seed, choosing among three strategies by the seed's confidence.
package startpoints

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/jadaela-ara/biomining-go/pkg/entropy"
)

// Strategy identifies which generation policy produced a StartingPoints set.
type Strategy string

const (
	Uniform   Strategy = "uniform"
	Fibonacci Strategy = "fibonacci"
	BioGuided Strategy = "bio_guided"
)

const (
	confidenceBioGuided = 0.7
	confidenceFibonacci = 0.4
	peakThreshold       = 0.1
)

// DefaultWindow is the number of nonces scanned from each starting point.
const DefaultWindow uint32 = 1 << 22

// goldenRatioInverse is 1/phi, used by the Fibonacci low-discrepancy strategy.
var goldenRatioInverse = 2.0 / (1.0 + math.Sqrt(5))

// Points is the ordered list of starting positions for one mining job.
type Points struct {
	Starts           []uint32
	Window           uint32
	ExpectedCoverage float64
	Strategy         Strategy
}

// Select picks the strategy for a given confidence, per the documented
// thresholds: >0.7 BioGuided, >0.4 Fibonacci, else Uniform.
func Select(confidence float64) Strategy {
	switch {
	case confidence > confidenceBioGuided:
		return BioGuided
	case confidence > confidenceFibonacci:
		return Fibonacci
	default:
		return Uniform
	}
}

// Generate produces count starting points of the given window size from
// seed, using the strategy its confidence selects (with BioGuided falling
// back to Fibonacci when the response has no detectable peaks).
func Generate(seed entropy.Seed, count int, window uint32) Points {
	if window == 0 {
		window = DefaultWindow
	}
	if count <= 0 {
		count = 1
	}

	strategy := Select(seed.Confidence)

	var starts []uint32
	switch strategy {
	case BioGuided:
		starts = bioGuided(seed, count)
		if starts == nil {
			strategy = Fibonacci
			starts = fibonacci(seed.Primary, count)
		}
	case Fibonacci:
		starts = fibonacci(seed.Primary, count)
	default:
		starts = uniform(seed.Primary, count)
	}

	coverage := float64(count) * float64(window) / math.Exp2(32)
	if coverage > 1 {
		coverage = 1
	}

	return Points{
		Starts:           starts,
		Window:           window,
		ExpectedCoverage: coverage,
		Strategy:         strategy,
	}
}

// uniform emits offset + i*step (mod 2^32) where step = 2^32/count and
// offset = primary mod step.
func uniform(primary uint64, count int) []uint32 {
	step := uint64(1) << 32
	step /= uint64(count)
	if step == 0 {
		step = 1
	}
	offset := primary % step

	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		out[i] = uint32((offset + uint64(i)*step) & 0xFFFFFFFF)
	}
	return out
}

// fibonacci emits floor(frac(offset + i/phi) * 2^32), the golden-ratio
// low-discrepancy sequence.
func fibonacci(primary uint64, count int) []uint32 {
	offset := float64(primary%(1<<32)) / math.Exp2(32)

	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		p := offset + float64(i)*goldenRatioInverse
		p -= math.Floor(p)
		out[i] = uint32(p * math.Exp2(32))
	}
	return out
}

// bioGuided scans the seed's 60-sample response for local maxima with
// |v_i| > peakThreshold, treats each as a centre with an amplitude-scaled
// half-width, and allocates count points across peaks proportionally to
// their amplitude. Returns nil (triggering the Fibonacci fallback) if no
// peaks are found.
func bioGuided(seed entropy.Seed, count int) []uint32 {
	voltages := seed.Response.Voltages
	type peak struct {
		idx int
		mag float64
	}
	var peaks []peak
	for i, v := range voltages {
		mag := math.Abs(v)
		if mag <= peakThreshold {
			continue
		}
		prevOK := i == 0 || math.Abs(voltages[i-1]) <= mag
		nextOK := i == len(voltages)-1 || math.Abs(voltages[i+1]) <= mag
		if prevOK && nextOK {
			peaks = append(peaks, peak{idx: i, mag: mag})
		}
	}
	if len(peaks) == 0 {
		return nil
	}

	var totalMag float64
	for _, p := range peaks {
		totalMag += p.mag
	}

	out := make([]uint32, 0, count)
	n := len(voltages)
	for pi, p := range peaks {
		share := int(math.Round(float64(count) * p.mag / totalMag))
		if pi == len(peaks)-1 {
			share = count - len(out)
		}
		if share < 0 {
			share = 0
		}

		centre := uint64(float64(p.idx) / float64(n) * math.Exp2(32))
		halfWidth := uint64(p.mag * math.Exp2(28))
		if halfWidth == 0 {
			halfWidth = 1
		}

		for j := 0; j < share; j++ {
			offset := peakHash(seed.Primary, p.idx, j) % (2 * halfWidth)
			point := (centre + offset - halfWidth) & 0xFFFFFFFF
			out = append(out, uint32(point))
		}
	}

	for len(out) < count {
		out = append(out, out[len(out)%max1(len(out))])
	}
	return out[:count]
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// peakHash derives a pseudo-random offset for the j-th point of a peak,
// keyed by the seed and peak index so the allocation is deterministic.
func peakHash(primary uint64, peakIdx, j int) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], primary)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(peakIdx))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(j))
	sum := sha256.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}
