package mea

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

func TestNewMarksAllElectrodesActiveAndCalibrated(t *testing.T) {
	b := New(DefaultConfig())
	for i, active := range b.electrodeActive {
		if !active {
			t.Fatalf("expected electrode %d active by default", i)
		}
		if b.calibrationFactor[i] != 1.0 {
			t.Fatalf("expected electrode %d default calibration factor 1.0, got %v", i, b.calibrationFactor[i])
		}
	}
	if b.State() != Disconnected {
		t.Fatalf("expected initial state Disconnected, got %s", b.State())
	}
}

func TestReadyFalseBeforeInitialise(t *testing.T) {
	b := New(DefaultConfig())
	if b.Ready() {
		t.Fatal("expected Ready() to be false before Initialise")
	}
}

func TestStimulateNotReadyBeforeInitialise(t *testing.T) {
	b := New(DefaultConfig())
	var pattern stimulus.Pattern
	_, err := b.Stimulate(context.Background(), pattern, 50)
	if err == nil {
		t.Fatal("expected an error stimulating a disconnected backend")
	}
	var be *biocompute.BioError
	if !errAs(err, &be) {
		t.Fatalf("expected a *biocompute.BioError, got %T", err)
	}
	if be.Kind != biocompute.NotReady {
		t.Fatalf("expected NotReady, got %v", be.Kind)
	}
}

func TestResetIsSafeWithoutATransport(t *testing.T) {
	b := New(DefaultConfig())
	if err := b.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.State() != Disconnected {
		t.Fatalf("expected Disconnected after Reset, got %s", b.State())
	}
}

func TestDecodeResponseAcceptsFullLengthFrame(t *testing.T) {
	var pattern stimulus.Pattern
	pattern.DurationMS = 100
	for i := range pattern.Electrodes {
		pattern.Electrodes[i] = stimulus.Electrode{AmplitudeV: float64(i) / 100, FrequencyHz: 50}
	}

	frame := encodeStimulation(pattern)
	// encodeStimulation's wire shape is the input to decodeResponse's
	// voltage-only frame layout; decodeResponse only reads the first
	// ElectrodeCount*4 bytes, so round-trip against a response-shaped
	// buffer built the same way decodeResponse expects.
	respFrame := make([]byte, stimulus.ElectrodeCount*4)
	copy(respFrame, frame[4:])

	voltages, ok := decodeResponse(respFrame)
	if !ok {
		t.Fatal("decodeResponse rejected a full-length frame")
	}
	_ = voltages
}

func TestDecodeResponseRejectsShortFrame(t *testing.T) {
	if _, ok := decodeResponse(make([]byte, 10)); ok {
		t.Fatal("expected decodeResponse to reject an undersized frame")
	}
}

func TestClampPatternBoundsAmplitude(t *testing.T) {
	var p stimulus.Pattern
	p.Electrodes[0] = stimulus.Electrode{AmplitudeV: -1}
	p.Electrodes[1] = stimulus.Electrode{AmplitudeV: 100}

	out := clampPattern(p, 5.0)
	if out.Electrodes[0].AmplitudeV != 0 {
		t.Errorf("expected negative amplitude clamped to 0, got %v", out.Electrodes[0].AmplitudeV)
	}
	if out.Electrodes[1].AmplitudeV != 5.0 {
		t.Errorf("expected amplitude clamped to vMax 5.0, got %v", out.Electrodes[1].AmplitudeV)
	}
}

func TestDetectSpikesLockedHonoursThresholdAndDeadTime(t *testing.T) {
	b := New(DefaultConfig())
	b.cfg.SpikeThresholdUV = -50.0

	var voltages [stimulus.ElectrodeCount]float64
	voltages[3] = -100.0 / 1e6 // -100uV, crosses -50uV threshold

	spikes := b.detectSpikesLocked(voltages, 1000)
	if len(spikes) != 1 {
		t.Fatalf("expected exactly one spike, got %d", len(spikes))
	}
	if spikes[0].ElectrodeID != 3 {
		t.Fatalf("expected spike on electrode 3, got %d", spikes[0].ElectrodeID)
	}

	// a second crossing microseconds later on the same electrode falls
	// inside the dead-time window and must not double-fire.
	again := b.detectSpikesLocked(voltages, 1001)
	if len(again) != 0 {
		t.Fatalf("expected the dead-time window to suppress a second spike, got %d", len(again))
	}
}

func TestReinforceAppliesSTDPToRecordedSpikePairs(t *testing.T) {
	b := New(DefaultConfig())
	b.state = Streaming
	b.spikeRing = []biocompute.SpikeEvent{
		{ElectrodeID: 0, TimestampUUS: 0},
		{ElectrodeID: 1, TimestampUUS: int64(5 * time.Millisecond / time.Microsecond)},
	}

	var pattern stimulus.Pattern
	if err := b.Reinforce(context.Background(), pattern, 1, 1.0); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}

	if len(b.stdpWeights) == 0 {
		t.Fatal("expected Reinforce to populate STDP weights from the recorded spike pairs")
	}
}

func TestResetClearsSpikeHistoryAndWeights(t *testing.T) {
	b := New(DefaultConfig())
	b.spikeRing = []biocompute.SpikeEvent{{ElectrodeID: 0}}
	b.stdpWeights[[2]int{0, 1}] = 0.5

	if err := b.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(b.spikeRing) != 0 {
		t.Fatal("expected Reset to clear spike history")
	}
	if len(b.stdpWeights) != 0 {
		t.Fatal("expected Reset to clear STDP weights")
	}
}

func TestDiagnosticReportsActiveElectrodeCount(t *testing.T) {
	b := New(DefaultConfig())
	b.electrodeActive[0] = false
	s := b.Diagnostic()
	if s == "" {
		t.Fatal("expected a non-empty diagnostic string")
	}
	if !strings.Contains(s, "active_electrodes=59/60") {
		t.Fatalf("expected the diagnostic to report 59/60 active electrodes, got %q", s)
	}
}

func TestConnStateStrings(t *testing.T) {
	cases := map[ConnState]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		Calibrating:  "calibrating",
		Streaming:    "streaming",
		Error:        "error",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %s, want %s", state, got, want)
		}
	}
}

func errAs(err error, target **biocompute.BioError) bool {
	be, ok := err.(*biocompute.BioError)
	if !ok {
		return false
	}
	*target = be
	return true
}
