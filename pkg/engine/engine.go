// Package engine is the per-job supervisor: it owns the dedicated
// bio-compute worker goroutine and drives the sequential
// feature-extract → stimulate → seed → starting-points → mine →
// reinforce pipeline, exposing a lock-free status snapshot. Grounded on
// the teacher's cmd/exs-node node.go orchestration loop (a single
// goroutine driving a fixed sequence of subsystem calls per tick) and on
// bsv-blockchain-teranode's zerolog-based structured logging idiom.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/entropy"
	"github.com/jadaela-ara/biomining-go/pkg/features"
	"github.com/jadaela-ara/biomining-go/pkg/hardware"
	"github.com/jadaela-ara/biomining-go/pkg/header"
	"github.com/jadaela-ara/biomining-go/pkg/metrics"
	"github.com/jadaela-ara/biomining-go/pkg/patternmemory"
	"github.com/jadaela-ara/biomining-go/pkg/scheduler"
	"github.com/jadaela-ara/biomining-go/pkg/simneuron"
	"github.com/jadaela-ara/biomining-go/pkg/startpoints"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

// recallDepth is how many similar past entries retro-learning draws on
// per job, the C10-recall input to C5's ExecuteRetroLearning.
const recallDepth = 8

// Phase is the engine's coarse status tag, read without locking by status
// reporters.
type Phase int32

const (
	Idle Phase = iota
	Stimulating
	Seeding
	Mining
	Reinforcing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Stimulating:
		return "stimulating"
	case Seeding:
		return "seeding"
	case Mining:
		return "mining"
	case Reinforcing:
		return "reinforcing"
	default:
		return "unknown"
	}
}

// Config configures one Engine instance. Threads and WindowSize follow
// the mining-configuration document (spec.md §6). DefaultConfig derives
// Threads from the detected hardware; New replaces zero values with fixed
// defaults (1 thread, 1000 starting points, the default window, 5 V).
type Config struct {
	Threads        int
	StartingPoints int
	WindowSize     uint32
	VMax           float64
	BioWeight      float64
	NegativeReward bool
	MaxDuration    time.Duration
}

// DefaultConfig derives a Config from the detected hardware.
func DefaultConfig() Config {
	acc := hardware.NewAccelerator()
	return Config{
		Threads:        acc.DefaultMiningThreads(),
		StartingPoints: 1000,
		WindowSize:     startpoints.DefaultWindow,
		VMax:           5.0,
		BioWeight:      0.5,
		NegativeReward: false,
		MaxDuration:    0,
	}
}

// Engine is the per-job supervisor. One Engine runs one job at a time;
// jobs are fully serialised (spec.md §5).
type Engine struct {
	cfg     Config
	bio     biocompute.Backend
	sched   *scheduler.Scheduler
	metrics *metrics.Aggregator
	memory  *patternmemory.Memory
	log     zerolog.Logger

	phase atomic.Int32

	bioReq chan bioRequest
	stop   chan struct{}
	wg     sync.WaitGroup
}

// bioRequest is a message-passing envelope for the dedicated bio worker:
// every biocompute.Backend call is routed through this channel so the
// backend's internal state is owned exclusively by one goroutine.
type bioRequest struct {
	op     func(ctx context.Context) (interface{}, error)
	ctx    context.Context
	result chan bioResult
}

type bioResult struct {
	value interface{}
	err   error
}

// New constructs an Engine driving bio over sched, reporting into agg
// and recording outcomes in mem. The bio worker goroutine starts
// immediately; call Close to stop it.
func New(cfg Config, bio biocompute.Backend, agg *metrics.Aggregator, mem *patternmemory.Memory, logger zerolog.Logger) *Engine {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.StartingPoints < 1 {
		cfg.StartingPoints = 1000
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = startpoints.DefaultWindow
	}
	if cfg.VMax == 0 {
		cfg.VMax = 5.0
	}

	e := &Engine{
		cfg:     cfg,
		bio:     bio,
		sched:   scheduler.New(cfg.Threads, agg),
		metrics: agg,
		memory:  mem,
		log:     logger,
		bioReq:  make(chan bioRequest),
		stop:    make(chan struct{}),
	}
	e.wg.Add(1)
	go e.bioWorker()
	return e
}

// Close stops the dedicated bio worker and waits for it to exit.
func (e *Engine) Close() {
	close(e.stop)
	e.wg.Wait()
}

// bioWorker is the single goroutine that owns e.bio; every call to the
// backend happens here, serialised, never concurrently with another.
func (e *Engine) bioWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case req := <-e.bioReq:
			v, err := req.op(req.ctx)
			req.result <- bioResult{value: v, err: err}
		}
	}
}

// callBio dispatches op to the bio worker and blocks for its result.
func (e *Engine) callBio(ctx context.Context, op func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result := make(chan bioResult, 1)
	select {
	case e.bioReq <- bioRequest{op: op, ctx: ctx, result: result}:
	case <-e.stop:
		return nil, fmt.Errorf("engine: closed")
	}
	r := <-result
	return r.value, r.err
}

// Phase returns the engine's current coarse status, lock-free.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

// Status is a point-in-time snapshot for external status reporting.
type Status struct {
	Phase      Phase
	Metrics    metrics.Snapshot
	BioStatus  string
	LastError  error
}

// Snapshot returns the engine's current status, reading the bio backend's
// diagnostic string through the same message-passing channel as every
// other bio call.
func (e *Engine) Snapshot(ctx context.Context) Status {
	v, err := e.callBio(ctx, func(ctx context.Context) (interface{}, error) {
		return e.bio.Diagnostic(), nil
	})
	bioStatus := ""
	if s, ok := v.(string); ok {
		bioStatus = s
	}
	return Status{
		Phase:     e.Phase(),
		Metrics:   e.metrics.Snapshot(),
		BioStatus: bioStatus,
		LastError: err,
	}
}

// RunJob executes the full per-job pipeline: C2 extract → C3 build →
// C4 stimulate (dedicated bio worker) → C7 seed → C8 starting points →
// C9 mine → C10 memory+reinforce+recall-driven retro-learning. On a bio
// failure, it degrades
// gracefully to Uniform starting points derived from the header's own
// block hash (spec.md §4.9) and proceeds to mine regardless.
func (e *Engine) RunJob(ctx context.Context, h *header.BlockHeader, difficulty float64, target *header.Target) scheduler.Outcome {
	startUS := time.Now().UnixMicro()

	f := features.Extract(h, difficulty)
	pattern := stimulus.Build(f, e.cfg.VMax)

	e.setPhase(Stimulating)
	response, bioErr := e.stimulate(ctx, pattern)

	var seed entropy.Seed
	if bioErr != nil {
		e.log.Warn().Err(bioErr).Msg("bio stimulation failed, falling back to uniform starting points")
		e.metrics.IncErrors()
		seed = fallbackSeed(h, response, f, startUS)
	} else {
		e.metrics.IncBioPredictions()
		nowUS := time.Now().UnixMicro()
		e.metrics.AddBioResponseTimeUS(nowUS - startUS)
		seed = entropy.Synthesise(response, f, startUS, nowUS, entropy.DefaultSubSeedCount)
	}

	e.setPhase(Seeding)
	points := startpoints.Generate(seed, e.cfg.StartingPoints, e.cfg.WindowSize)

	e.setPhase(Mining)
	mineCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.MaxDuration > 0 {
		mineCtx, cancel = context.WithTimeout(ctx, e.cfg.MaxDuration)
		defer cancel()
	}
	outcome := e.sched.Mine(mineCtx, h, target, points)

	e.setPhase(Reinforcing)
	e.reinforceOutcome(ctx, pattern, response, f, outcome, bioErr)
	e.setPhase(Idle)

	return outcome
}

// stimulate routes Stimulate through the dedicated bio worker.
func (e *Engine) stimulate(ctx context.Context, pattern stimulus.Pattern) (biocompute.Response, error) {
	v, err := e.callBio(ctx, func(ctx context.Context) (interface{}, error) {
		return e.bio.Stimulate(ctx, pattern, 100)
	})
	if err != nil {
		return biocompute.Response{}, err
	}
	resp, _ := v.(biocompute.Response)
	return resp, nil
}

// reinforceOutcome records the job outcome into pattern memory and
// reinforces the bio backend, per C10's contract: +1.0 reward on Found,
// an optional small negative reward on Exhausted.
func (e *Engine) reinforceOutcome(ctx context.Context, pattern stimulus.Pattern, response biocompute.Response, f features.HeaderFeatures, outcome scheduler.Outcome, bioErr error) {
	if bioErr != nil {
		// No valid response/pattern pairing to reinforce against.
		return
	}

	switch outcome.Kind {
	case scheduler.Found:
		e.memory.Push(patternmemory.Entry{
			Features:     f,
			Response:     response,
			Nonce:        outcome.Nonce,
			SuccessScore: 1.0,
			Timestamp:    time.Now(),
		})
		e.metrics.IncBioSuccesses()
		e.callBio(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, e.bio.Reinforce(ctx, pattern, outcome.Nonce, 1.0)
		})
		e.retroLearn(ctx, f)
	case scheduler.Exhausted:
		if !e.cfg.NegativeReward {
			return
		}
		e.memory.Push(patternmemory.Entry{
			Features:     f,
			Response:     response,
			Nonce:        0,
			SuccessScore: 0.0,
			Timestamp:    time.Now(),
		})
		e.callBio(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, e.bio.Reinforce(ctx, pattern, 0, -0.2)
		})
		e.retroLearn(ctx, f)
	}
}

// retroLearn recalls the entries most similar to f from pattern memory
// (C10) and, when the bio backend is the simulated model, drives its
// retro-learning pass (C5) over them. ExecuteRetroLearning rate-limits
// itself internally, so this is safe to call once per job outcome. Real
// MEA backends have no analogous offline retraining step — STDP
// reinforcement already happened above — so they are skipped here.
func (e *Engine) retroLearn(ctx context.Context, f features.HeaderFeatures) {
	similar := e.memory.SimilarTo(f, recallDepth)
	if len(similar) == 0 {
		return
	}

	examples := make([]simneuron.TrainingExample, len(similar))
	for i, entry := range similar {
		recalledPattern := stimulus.Build(entry.Features, e.cfg.VMax)
		examples[i] = simneuron.TrainingExample{
			Input:  recalledPattern.ResponseVector(),
			Target: entry.Nonce,
		}
	}

	e.callBio(ctx, func(ctx context.Context) (interface{}, error) {
		sb, ok := e.bio.(*simneuron.Backend)
		if !ok {
			return nil, nil
		}
		_, err := sb.ExecuteRetroLearning(ctx, examples)
		return nil, err
	})
}

// fallbackSeed builds a deterministic Uniform-strategy seed from the
// header's own block hash when the bio pipeline fails, per spec.md
// §4.9's "fall back to generating starting points with strategy =
// Uniform from a deterministic fallback seed (e.g. header hash)".
func fallbackSeed(h *header.BlockHeader, response biocompute.Response, f features.HeaderFeatures, startUS int64) entropy.Seed {
	blockHash := h.BlockHash()
	var primary uint64
	for i := 0; i < 8; i++ {
		primary |= uint64(blockHash[i]) << uint(8*i)
	}
	return entropy.Seed{
		Primary:    primary,
		SubSeeds:   nil,
		Confidence: 0, // forces startpoints.Select to choose Uniform
		Strength:   0,
		Response:   response,
		ElapsedUS:  time.Now().UnixMicro() - startUS,
	}
}
