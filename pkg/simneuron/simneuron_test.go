package simneuron

import (
	"context"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/jadaela-ara/biomining-go/pkg/features"
	"github.com/jadaela-ara/biomining-go/pkg/header"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

func testPattern() stimulus.Pattern {
	h := header.Genesis(&chaincfg.MainNetParams)
	f := features.Extract(h, 1.0)
	return stimulus.Build(f, 2.5)
}

func TestNewBackendIsReadyImmediately(t *testing.T) {
	b := New(DefaultConfig())
	if !b.Ready() {
		t.Fatal("a freshly-constructed simulated backend should always be ready")
	}
	if err := b.Initialise(context.Background()); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	if b.State() != Untrained {
		t.Fatalf("expected initial state Untrained, got %s", b.State())
	}
}

func TestStimulateReturnsFullVoltageVector(t *testing.T) {
	b := New(DefaultConfig())
	resp, err := b.Stimulate(context.Background(), testPattern(), 100)
	if err != nil {
		t.Fatalf("Stimulate: %v", err)
	}
	if len(resp.Voltages) != stimulus.ElectrodeCount {
		t.Fatalf("expected %d voltages, got %d", stimulus.ElectrodeCount, len(resp.Voltages))
	}
}

func TestReinforceTransitionsState(t *testing.T) {
	b := New(DefaultConfig())
	if b.State() != Untrained {
		t.Fatalf("expected Untrained before any reinforcement")
	}
	if err := b.Reinforce(context.Background(), testPattern(), 42, 1.0); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if b.State() != InitialLearning {
		t.Fatalf("expected InitialLearning after first reinforcement, got %s", b.State())
	}
}

func TestReinforcementMovesPredictionTowardTarget(t *testing.T) {
	b := New(DefaultConfig())
	pattern := testPattern()
	const target = uint32(0xA5A5A5A5)

	_, before := b.Predict(pattern)

	for i := 0; i < 200; i++ {
		if err := b.Reinforce(context.Background(), pattern, target, 1.0); err != nil {
			t.Fatalf("Reinforce iteration %d: %v", i, err)
		}
	}

	_, after := b.Predict(pattern)

	wantBits := nonceBits(target)
	var errBefore, errAfter float64
	for i := range wantBits {
		db := wantBits[i] - before[i]
		da := wantBits[i] - after[i]
		errBefore += db * db
		errAfter += da * da
	}
	if errAfter >= errBefore {
		t.Errorf("expected squared error against target to shrink after reinforcement: before=%v after=%v",
			errBefore, errAfter)
	}
}

func TestExecuteInitialLearningRunsEpochsAndPromotesToTrained(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 400
	cfg.TargetAccuracy = 0.99
	b := New(cfg)

	examples := []TrainingExample{
		{Target: 0x00000000},
		{Target: 0xFFFFFFFF},
	}
	for i := range examples[0].Input {
		examples[0].Input[i] = -1.0
	}
	for i := range examples[1].Input {
		examples[1].Input[i] = 1.0
	}

	acc, epochs, err := b.ExecuteInitialLearning(context.Background(), examples)
	if err != nil {
		t.Fatalf("ExecuteInitialLearning: %v", err)
	}
	if epochs == 0 {
		t.Fatal("expected at least one training epoch to run")
	}
	if acc < cfg.TargetAccuracy {
		t.Logf("warning: accuracy %v did not reach target %v within %d epochs (non-fatal, best-effort promotion)", acc, cfg.TargetAccuracy, epochs)
	}
	if b.State() != Trained {
		t.Fatalf("expected state Trained after initial learning, got %s", b.State())
	}
}

func TestExecuteInitialLearningRejectsEmptyExamples(t *testing.T) {
	b := New(DefaultConfig())
	if _, _, err := b.ExecuteInitialLearning(context.Background(), nil); err == nil {
		t.Fatal("expected an error for zero training examples")
	}
}

func TestResetClearsStateAndWeights(t *testing.T) {
	b := New(DefaultConfig())
	pattern := testPattern()
	_ = b.Reinforce(context.Background(), pattern, 1, 1.0)
	if b.State() == Untrained {
		t.Fatal("expected state to have advanced before Reset")
	}

	if err := b.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.State() != Untrained {
		t.Fatalf("expected Untrained after Reset, got %s", b.State())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b := New(DefaultConfig())
	pattern := testPattern()
	for i := 0; i < 5; i++ {
		_ = b.Reinforce(context.Background(), pattern, uint32(i), 0.5)
	}

	data, err := b.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := New(DefaultConfig())
	if err := restored.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, wantOut := b.Predict(pattern)
	_, gotOut := restored.Predict(pattern)
	for i := range wantOut {
		if gotOut[i] != wantOut[i] {
			t.Fatalf("restored model diverges from saved model at output %d: got %v, want %v", i, gotOut[i], wantOut[i])
		}
	}
}

func TestLoadRejectsMismatchedTopology(t *testing.T) {
	b := New(DefaultConfig())
	data, err := b.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	other := Config{LayerSizes: []int{60, 16, 8}}
	mismatched := New(other)
	if err := mismatched.Load(data); err != ErrTopologyMismatch {
		t.Fatalf("expected ErrTopologyMismatch, got %v", err)
	}
}

func TestDiagnosticReportsTopologyAndCounters(t *testing.T) {
	b := New(DefaultConfig())
	s := b.Diagnostic()
	if s == "" {
		t.Fatal("expected a non-empty diagnostic string")
	}
	if !strings.Contains(s, "topology=[60 128 64 32]") || !strings.Contains(s, "reinforcements=0") {
		t.Fatalf("expected the diagnostic to report topology and reinforcement count, got %q", s)
	}
}
