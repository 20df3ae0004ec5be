package metrics

import (
	"strings"
	"testing"
)

func TestAggregatorCountersAccumulate(t *testing.T) {
	a := New()
	a.AddHashes(1000)
	a.AddHashes(500)
	a.IncShares()
	a.IncShares()
	a.IncBioPredictions()
	a.IncBioPredictions()
	a.IncBioSuccesses()
	a.AddBioResponseTimeUS(200)
	a.AddBioResponseTimeUS(300)
	a.IncJobs()
	a.IncErrors()

	snap := a.Snapshot()
	if snap.TotalHashes != 1500 {
		t.Errorf("TotalHashes = %d, want 1500", snap.TotalHashes)
	}
	if snap.SharesFound != 2 {
		t.Errorf("SharesFound = %d, want 2", snap.SharesFound)
	}
	if snap.BioPredictions != 2 {
		t.Errorf("BioPredictions = %d, want 2", snap.BioPredictions)
	}
	if snap.BioSuccesses != 1 {
		t.Errorf("BioSuccesses = %d, want 1", snap.BioSuccesses)
	}
	if snap.BioAccuracy != 0.5 {
		t.Errorf("BioAccuracy = %v, want 0.5", snap.BioAccuracy)
	}
	if snap.AvgBioRespUS != 250 {
		t.Errorf("AvgBioRespUS = %v, want 250", snap.AvgBioRespUS)
	}
	if snap.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", snap.Jobs)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1", snap.Errors)
	}
}

func TestSnapshotZeroPredictionsLeavesAccuracyZero(t *testing.T) {
	a := New()
	snap := a.Snapshot()
	if snap.BioAccuracy != 0 {
		t.Errorf("expected 0 accuracy with no predictions, got %v", snap.BioAccuracy)
	}
	if snap.AvgBioRespUS != 0 {
		t.Errorf("expected 0 avg response time with no predictions, got %v", snap.AvgBioRespUS)
	}
}

func TestPrintReportContainsKeyFields(t *testing.T) {
	a := New()
	a.AddHashes(42)
	a.IncShares()
	report := a.Snapshot().PrintReport()

	for _, want := range []string{"hash rate:", "bio accuracy:", "shares found:", "errors:", "uptime:"} {
		if !strings.Contains(report, want) {
			t.Errorf("expected report to contain %q, got:\n%s", want, report)
		}
	}
}
