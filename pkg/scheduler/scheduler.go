// Package scheduler partitions nonce starting points across worker
// goroutines and runs the double-SHA-256 hash loop, grounded on
// nohe-sohbi-solo-btc-explorer's miner.Worker/Manager: per-worker atomic
// hash counters, a shared found slot, and cooperative cancellation
// checked once per inner-loop iteration, generalised here to a single
// compare-and-swap found slot and round-robin start partitioning
// instead of per-worker independent random nonce sampling.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jadaela-ara/biomining-go/pkg/hashengine"
	"github.com/jadaela-ara/biomining-go/pkg/header"
	"github.com/jadaela-ara/biomining-go/pkg/metrics"
	"github.com/jadaela-ara/biomining-go/pkg/startpoints"
)

// OutcomeKind is the closed set of results mine() can return.
type OutcomeKind int

const (
	Found OutcomeKind = iota
	Exhausted
	Cancelled
	Error
)

func (k OutcomeKind) String() string {
	switch k {
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Outcome is the result of one mine() call.
type Outcome struct {
	Kind   OutcomeKind
	Nonce  uint32
	Digest [32]byte
	Err    error
}

// flushEvery bounds how many hashes a worker computes before flushing its
// local counter into the shared metrics aggregator, keeping the hot loop
// contention-free.
const flushEvery = 1 << 16

// foundSlot packs the winning nonce (low 32 bits) and a "set" flag (bit 32)
// into one atomic word, giving every worker a single compare-and-swap to
// claim the find.
type foundSlot struct {
	word atomic.Uint64
}

const foundSetBit = uint64(1) << 32

func (f *foundSlot) tryClaim(nonce uint32) bool {
	return f.word.CompareAndSwap(0, foundSetBit|uint64(nonce))
}

func (f *foundSlot) isSet() bool {
	return f.word.Load()&foundSetBit != 0
}

func (f *foundSlot) nonce() uint32 {
	return uint32(f.word.Load())
}

// Scheduler runs the hash loop for one job across a fixed worker count,
// reporting into a shared metrics.Aggregator.
type Scheduler struct {
	Workers int
	Metrics *metrics.Aggregator
}

// New constructs a Scheduler with the given worker count (clamped to at
// least 1) reporting into agg.
func New(workers int, agg *metrics.Aggregator) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{Workers: workers, Metrics: agg}
}

// Mine partitions points.Starts round-robin across s.Workers goroutines,
// each scanning its assigned starts' [start, start+window) ranges modulo
// 2^32, and returns the first Outcome committed to the shared found slot,
// or Exhausted if every worker runs out of nonces first, or Cancelled if
// ctx is done before any find.
func (s *Scheduler) Mine(ctx context.Context, h *header.BlockHeader, target *header.Target, points startpoints.Points) Outcome {
	s.Metrics.IncJobs()

	if len(points.Starts) == 0 {
		return Outcome{Kind: Exhausted}
	}

	var found foundSlot
	var foundDigest atomic.Value // [32]byte, written once under CAS success
	var wg sync.WaitGroup
	var exhaustedCount atomic.Int32

	headerBuf := h.Serialize()

	for w := 0; w < s.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.runWorker(ctx, workerID, headerBuf, target, points, &found, &foundDigest)
			exhaustedCount.Add(1)
		}(w)
	}
	wg.Wait()

	if found.isSet() {
		digest, _ := foundDigest.Load().([32]byte)
		s.Metrics.IncShares()
		return Outcome{Kind: Found, Nonce: found.nonce(), Digest: digest}
	}

	select {
	case <-ctx.Done():
		return Outcome{Kind: Cancelled, Err: ctx.Err()}
	default:
		return Outcome{Kind: Exhausted}
	}
}

// runWorker scans every start assigned to workerID in round-robin order.
func (s *Scheduler) runWorker(ctx context.Context, workerID int, headerBuf [header.Size]byte, target *header.Target, points startpoints.Points, found *foundSlot, foundDigest *atomic.Value) {
	buf := headerBuf // per-worker copy; the nonce bytes are rewritten in place
	var localHashes uint64

	flush := func() {
		if localHashes > 0 {
			s.Metrics.AddHashes(localHashes)
			localHashes = 0
		}
	}
	defer flush()

	for i := workerID; i < len(points.Starts); i += s.Workers {
		start := points.Starts[i]

		for offset := uint32(0); offset < points.Window; offset++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if found.isSet() {
				return
			}

			nonce := start + offset // wraps mod 2^32 by uint32 overflow
			digest := hashengine.HashCandidate(&buf, nonce)
			localHashes++

			if localHashes >= flushEvery {
				flush()
			}

			if hashengine.MeetsTarget(digest, target) {
				if found.tryClaim(nonce) {
					foundDigest.Store(digest)
				}
				return
			}
		}
	}
}
