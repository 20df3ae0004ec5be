// Package patternmemory implements the bounded reinforcement-memory ring
// buffer, grounded on the teacher's economy.Treasury: a mutex-guarded,
// capacity-bounded history with a snapshot-stats accessor, here storing
// (features, response, nonce, score, timestamp) entries instead of
// token-distribution records.
package patternmemory

import (
	"math"
	"sync"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/features"
)

// DefaultCapacity is the minimum ring-buffer size the spec requires.
const DefaultCapacity = 100

// Entry is a single recorded pattern-memory record.
type Entry struct {
	Features     features.HeaderFeatures
	Response     biocompute.Response
	Nonce        uint32
	SuccessScore float64
	Timestamp    time.Time
}

// Memory is the bounded ring buffer. Writer: the supervisor, once per
// job outcome. Reader: the simulated backend's retro-learning, many
// times between writes — hence the RWMutex.
type Memory struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	next     int
	full     bool
}

// New constructs a Memory with the given capacity (clamped to at least
// DefaultCapacity, matching the data model's invariant).
func New(capacity int) *Memory {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Memory{entries: make([]Entry, capacity), capacity: capacity}
}

// Push records e, evicting the oldest entry once at capacity.
func (m *Memory) Push(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.next] = e
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
}

// Len returns the current number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return m.capacity
	}
	return m.next
}

// All returns a copy of every stored entry, oldest first.
func (m *Memory) All() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = m.capacity
	}
	out := make([]Entry, 0, n)
	if m.full {
		out = append(out, m.entries[m.next:]...)
		out = append(out, m.entries[:m.next]...)
		return out
	}
	out = append(out, m.entries[:n]...)
	return out
}

// SimilarTo returns up to k entries whose feature vector has cosine
// similarity >= 0.8 with target, most-similar first.
func (m *Memory) SimilarTo(target features.HeaderFeatures, k int) []Entry {
	const threshold = 0.8

	all := m.All()
	type scored struct {
		entry Entry
		sim   float64
	}
	var candidates []scored
	for _, e := range all {
		sim := cosineSimilarity(target.Vector, e.Features.Vector)
		if sim >= threshold {
			candidates = append(candidates, scored{entry: e, sim: sim})
		}
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].sim > candidates[j-1].sim; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Entry, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].entry
	}
	return out
}

func cosineSimilarity(a, b [features.Dimensions]float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	denom := math.Sqrt(magA) * math.Sqrt(magB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
