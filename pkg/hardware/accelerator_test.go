package hardware

import (
	"testing"
)

func TestNewAccelerator(t *testing.T) {
	acc := NewAccelerator()

	if acc == nil {
		t.Fatal("NewAccelerator returned nil")
	}

	if !acc.IsEnabled() {
		t.Error("Accelerator should be enabled by default")
	}

	if acc.Optimization() != "balanced" {
		t.Errorf("Expected default optimization 'balanced', got '%s'", acc.Optimization())
	}

	if acc.WorkerCount() != acc.Info().LogicalCores {
		t.Errorf("Expected worker count %d, got %d", acc.Info().LogicalCores, acc.WorkerCount())
	}
}

func TestDetect(t *testing.T) {
	info := Detect()

	if info.LogicalCores <= 0 {
		t.Error("LogicalCores should be positive")
	}
	if info.MaxHashRate <= 0 {
		t.Error("MaxHashRate should be positive")
	}
	if info.PowerWatts <= 0 {
		t.Error("PowerWatts should be positive")
	}
}

func TestDefaultMiningThreads(t *testing.T) {
	acc := NewAccelerator()
	threads := acc.DefaultMiningThreads()
	if threads < 1 {
		t.Errorf("DefaultMiningThreads should be at least 1, got %d", threads)
	}
	if threads > acc.Info().LogicalCores {
		t.Errorf("DefaultMiningThreads (%d) should not exceed logical cores (%d)", threads, acc.Info().LogicalCores)
	}
}

func TestSetWorkerCount(t *testing.T) {
	acc := NewAccelerator()

	if err := acc.SetWorkerCount(4); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if acc.WorkerCount() != 4 {
		t.Errorf("Expected worker count 4, got %d", acc.WorkerCount())
	}

	if err := acc.SetWorkerCount(0); err == nil {
		t.Error("Expected error for worker count 0")
	}

	maxWorkers := acc.Info().LogicalCores * 2
	if err := acc.SetWorkerCount(maxWorkers + 100); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if acc.WorkerCount() != maxWorkers {
		t.Errorf("Expected worker count capped at %d, got %d", maxWorkers, acc.WorkerCount())
	}
}

func TestEnableDisable(t *testing.T) {
	acc := NewAccelerator()

	if !acc.IsEnabled() {
		t.Error("Accelerator should be enabled by default")
	}

	acc.Disable()
	if acc.IsEnabled() {
		t.Error("Accelerator should be disabled")
	}

	acc.Enable()
	if !acc.IsEnabled() {
		t.Error("Accelerator should be enabled")
	}
}

func TestSetOptimization(t *testing.T) {
	acc := NewAccelerator()

	tests := []struct {
		mode          string
		expectError   bool
		checkWorkers  bool
		expectedRatio float64
	}{
		{"power_save", false, true, 0.5},
		{"balanced", false, true, 1.0},
		{"performance", false, true, 2.0},
		{"extreme", false, true, 4.0},
		{"invalid", true, false, 0},
	}

	cores := acc.Info().LogicalCores

	for _, tt := range tests {
		err := acc.SetOptimization(tt.mode)

		if tt.expectError {
			if err == nil {
				t.Errorf("Expected error for mode '%s'", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for mode '%s': %v", tt.mode, err)
			continue
		}
		if acc.Optimization() != tt.mode {
			t.Errorf("Expected optimization '%s', got '%s'", tt.mode, acc.Optimization())
		}

		if tt.checkWorkers {
			expectedWorkers := int(float64(cores) * tt.expectedRatio)
			if expectedWorkers < 1 {
				expectedWorkers = 1
			}
			if acc.WorkerCount() != expectedWorkers {
				t.Errorf("For mode '%s', expected %d workers, got %d",
					tt.mode, expectedWorkers, acc.WorkerCount())
			}
		}
	}
}

func TestEstimateHashRate(t *testing.T) {
	acc := NewAccelerator()

	if hashRate := acc.EstimateHashRate(); hashRate <= 0 {
		t.Error("Hash rate should be positive when enabled")
	}

	acc.Disable()
	if hashRate := acc.EstimateHashRate(); hashRate != 0 {
		t.Error("Hash rate should be zero when disabled")
	}
	acc.Enable()
}

func TestEstimatePowerConsumption(t *testing.T) {
	acc := NewAccelerator()

	if power := acc.EstimatePowerConsumption(); power <= 0 {
		t.Error("Power consumption should be positive when enabled")
	}

	acc.Disable()
	if power := acc.EstimatePowerConsumption(); power != 0 {
		t.Error("Power consumption should be zero when disabled")
	}
	acc.Enable()

	acc.SetOptimization("power_save")
	powerSave := acc.EstimatePowerConsumption()
	acc.SetOptimization("extreme")
	powerExtreme := acc.EstimatePowerConsumption()

	if powerExtreme <= powerSave {
		t.Error("Extreme mode should consume more power than power_save")
	}
}

func TestGetEfficiency(t *testing.T) {
	acc := NewAccelerator()

	if efficiency := acc.GetEfficiency(); efficiency <= 0 {
		t.Error("Efficiency should be positive when enabled")
	}

	acc.Disable()
	if efficiency := acc.GetEfficiency(); efficiency != 0 {
		t.Error("Efficiency should be zero when disabled")
	}
	acc.Enable()
}

func TestGetStats(t *testing.T) {
	acc := NewAccelerator()
	stats := acc.GetStats()

	requiredFields := []string{
		"hardware_name",
		"logical_cores",
		"worker_count",
		"enabled",
		"optimization",
		"estimated_hashrate",
		"estimated_power_w",
		"efficiency_h_per_w",
	}

	for _, field := range requiredFields {
		if _, ok := stats[field]; !ok {
			t.Errorf("Stats missing required field: %s", field)
		}
	}

	if stats["logical_cores"] != acc.Info().LogicalCores {
		t.Errorf("Expected logical_cores %d, got %v", acc.Info().LogicalCores, stats["logical_cores"])
	}
	if stats["enabled"] != true {
		t.Error("Expected enabled to be true")
	}
}

func BenchmarkEstimateHashRate(b *testing.B) {
	acc := NewAccelerator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.EstimateHashRate()
	}
}

func BenchmarkGetStats(b *testing.B) {
	acc := NewAccelerator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.GetStats()
	}
}
