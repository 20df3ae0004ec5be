package stimulus

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/jadaela-ara/biomining-go/pkg/features"
	"github.com/jadaela-ara/biomining-go/pkg/header"
)

func TestBuildClampsToVMax(t *testing.T) {
	h := header.Genesis(&chaincfg.MainNetParams)
	f := features.Extract(h, 5000000.0)
	const vMax = 2.5

	p := Build(f, vMax)

	for i, e := range p.Electrodes {
		if e.AmplitudeV < 0 || e.AmplitudeV > vMax {
			t.Fatalf("electrode %d amplitude %v outside [0, %v]", i, e.AmplitudeV, vMax)
		}
		if e.FrequencyHz <= 0 {
			t.Fatalf("electrode %d has non-positive frequency %v", i, e.FrequencyHz)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	h := header.Genesis(&chaincfg.MainNetParams)
	f := features.Extract(h, 1.0)

	a := Build(f, 3.0)
	b := Build(f, 3.0)

	if a != b {
		t.Fatal("Build produced different patterns for identical inputs")
	}
}

func TestBuildTotalEnergyMatchesSumOfSquares(t *testing.T) {
	h := header.Genesis(&chaincfg.MainNetParams)
	f := features.Extract(h, 1.0)
	p := Build(f, 3.0)

	var want float64
	for _, e := range p.Electrodes {
		want += e.AmplitudeV * e.AmplitudeV
	}
	if p.TotalEnergy != want {
		t.Errorf("TotalEnergy mismatch: got %v, want %v", p.TotalEnergy, want)
	}
}

func TestResponseVectorMatchesElectrodeAmplitudes(t *testing.T) {
	h := header.Genesis(&chaincfg.MainNetParams)
	f := features.Extract(h, 1.0)
	p := Build(f, 1.0)

	rv := p.ResponseVector()
	for i, e := range p.Electrodes {
		if rv[i] != e.AmplitudeV {
			t.Fatalf("ResponseVector[%d] = %v, want %v", i, rv[i], e.AmplitudeV)
		}
	}
}

func TestClampHelpers(t *testing.T) {
	if clamp01(-1) != 0 {
		t.Error("clamp01(-1) should be 0")
	}
	if clamp01(2) != 1 {
		t.Error("clamp01(2) should be 1")
	}
	if clampAmp(-1, 5) != 0 {
		t.Error("clampAmp(-1, 5) should be 0")
	}
	if clampAmp(10, 5) != 5 {
		t.Error("clampAmp(10, 5) should be 5")
	}
}
