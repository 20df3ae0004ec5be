package engine

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"

	"github.com/jadaela-ara/biomining-go/pkg/header"
	"github.com/jadaela-ara/biomining-go/pkg/metrics"
	"github.com/jadaela-ara/biomining-go/pkg/patternmemory"
	"github.com/jadaela-ara/biomining-go/pkg/scheduler"
	"github.com/jadaela-ara/biomining-go/pkg/simneuron"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := Config{
		Threads:        2,
		StartingPoints: 4,
		WindowSize:     1 << 14,
		VMax:           5.0,
	}
	bio := simneuron.New(simneuron.DefaultConfig())
	agg := metrics.New()
	mem := patternmemory.New(patternmemory.DefaultCapacity)
	logger := zerolog.Nop()

	e := New(cfg, bio, agg, mem, logger)
	t.Cleanup(e.Close)
	return e
}

func TestRunJobFindsNonceUnderEasyTarget(t *testing.T) {
	e := testEngine(t)
	h := header.Genesis(&chaincfg.MainNetParams)
	target, err := header.BitsToTarget(0x207fffff)
	if err != nil {
		t.Fatalf("BitsToTarget: %v", err)
	}

	outcome := e.RunJob(context.Background(), h, 1.0, target)
	if outcome.Kind != scheduler.Found {
		t.Fatalf("expected Found, got %s", outcome.Kind)
	}
	if e.Phase() != Idle {
		t.Errorf("expected engine to return to Idle, got %s", e.Phase())
	}
}

func TestRunJobRecordsReinforcementOnFind(t *testing.T) {
	e := testEngine(t)
	h := header.Genesis(&chaincfg.MainNetParams)
	target, err := header.BitsToTarget(0x207fffff)
	if err != nil {
		t.Fatalf("BitsToTarget: %v", err)
	}

	e.RunJob(context.Background(), h, 1.0, target)
	if e.memory.Len() == 0 {
		t.Error("expected a pattern-memory entry after a Found outcome")
	}

	snap := e.metrics.Snapshot()
	if snap.BioSuccesses == 0 {
		t.Error("expected bio success counter to increment")
	}
}

func TestSnapshotReportsPhaseAndDiagnostic(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	status := e.Snapshot(ctx)
	if status.Phase != Idle {
		t.Errorf("expected Idle before any job, got %s", status.Phase)
	}
	if status.BioStatus == "" {
		t.Error("expected non-empty bio diagnostic string")
	}
}

func TestRunJobDrivesRetroLearningFromRecalledEntries(t *testing.T) {
	e := testEngine(t)
	bio := e.bio.(*simneuron.Backend)
	h := header.Genesis(&chaincfg.MainNetParams)
	target, err := header.BitsToTarget(0x207fffff)
	if err != nil {
		t.Fatalf("BitsToTarget: %v", err)
	}

	outcome := e.RunJob(context.Background(), h, 1.0, target)
	if outcome.Kind != scheduler.Found {
		t.Fatalf("expected Found, got %s", outcome.Kind)
	}

	// reinforceOutcome pushes the job's own entry before recalling, so
	// SimilarTo always finds at least one match for itself; retro-learning
	// then runs and promotes the backend out of InitialLearning.
	if bio.State() != simneuron.Trained {
		t.Fatalf("expected retro-learning to promote the backend to Trained, got %s", bio.State())
	}
}

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Threads < 1 {
		t.Error("expected at least 1 thread")
	}
	if cfg.StartingPoints != 1000 {
		t.Errorf("expected 1000 starting points, got %d", cfg.StartingPoints)
	}
	if cfg.VMax != 5.0 {
		t.Errorf("expected VMax 5.0, got %f", cfg.VMax)
	}
}
