// Package hardware adapts the teacher's pkg/hardware/accelerator.go:
// the same mutex-guarded struct, "optimization" modes, and
// map[string]interface{} stats snapshot, but detection now goes through
// gopsutil's core/memory probing instead of runtime.NumCPU() alone, and
// the default mining-thread count feeds the scheduler directly.
package hardware

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info describes the detected compute hardware backing the mining
// scheduler.
type Info struct {
	Name             string
	LogicalCores     int
	PhysicalCores    int
	TotalMemoryBytes uint64
	MaxHashRate      float64 // estimated H/s
	PowerWatts       float64 // estimated watts at full load
}

// Detect probes the host via gopsutil, falling back to runtime.NumCPU()
// if the platform-specific probe is unavailable.
func Detect() Info {
	info := Info{Name: runtime.GOARCH, LogicalCores: runtime.NumCPU()}

	if logical, err := cpu.Counts(true); err == nil && logical > 0 {
		info.LogicalCores = logical
	}
	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		info.PhysicalCores = physical
	} else {
		info.PhysicalCores = info.LogicalCores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryBytes = vm.Total
	}

	info.MaxHashRate = float64(info.LogicalCores) * 250.0
	info.PowerWatts = float64(info.LogicalCores) * 50.0
	return info
}

// Accelerator manages the worker-count/optimization knob that feeds the
// mining scheduler's default thread count.
type Accelerator struct {
	mu           sync.RWMutex
	info         Info
	workerCount  int
	enabled      bool
	optimization string
}

// NewAccelerator probes the host and defaults to a "balanced" worker
// count equal to the logical core count.
func NewAccelerator() *Accelerator {
	info := Detect()
	return &Accelerator{
		info:         info,
		workerCount:  info.LogicalCores,
		enabled:      true,
		optimization: "balanced",
	}
}

// DefaultMiningThreads returns max(1, logical cores - 1), the scheduler's
// documented default worker count.
func (a *Accelerator) DefaultMiningThreads() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := a.info.LogicalCores - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Info returns the detected hardware info.
func (a *Accelerator) Info() Info {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

// SetWorkerCount sets the number of parallel mining workers, capped at
// twice the logical core count.
func (a *Accelerator) SetWorkerCount(count int) error {
	if count < 1 {
		return fmt.Errorf("hardware: worker count must be at least 1")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	maxWorkers := a.info.LogicalCores * 2
	if count > maxWorkers {
		count = maxWorkers
	}
	a.workerCount = count
	return nil
}

// WorkerCount returns the current configured worker count.
func (a *Accelerator) WorkerCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workerCount
}

// Enable / Disable toggle whether the accelerator reports a non-zero
// estimated hash rate (used by status reporting, not by the scheduler
// itself, which always mines when asked).
func (a *Accelerator) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
}

func (a *Accelerator) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
}

func (a *Accelerator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetOptimization sets the optimization mode ("power_save", "balanced",
// "performance", "extreme") and rescales the worker count accordingly.
func (a *Accelerator) SetOptimization(mode string) error {
	validModes := map[string]bool{
		"power_save": true, "balanced": true, "performance": true, "extreme": true,
	}
	if !validModes[mode] {
		return fmt.Errorf("hardware: invalid optimization mode: %s", mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.optimization = mode

	switch mode {
	case "power_save":
		a.workerCount = a.info.LogicalCores / 2
		if a.workerCount < 1 {
			a.workerCount = 1
		}
	case "balanced":
		a.workerCount = a.info.LogicalCores
	case "performance":
		a.workerCount = a.info.LogicalCores * 2
	case "extreme":
		a.workerCount = a.info.LogicalCores * 4
	}
	return nil
}

func (a *Accelerator) Optimization() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.optimization
}

// EstimateHashRate estimates aggregate hash rate for the current worker
// count, with diminishing returns for oversubscription past 1x cores.
func (a *Accelerator) EstimateHashRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.enabled {
		return 0
	}

	baseRate := a.info.MaxHashRate
	ratio := float64(a.workerCount) / float64(a.info.LogicalCores)

	var efficiency float64
	switch {
	case ratio <= 1.0:
		efficiency = ratio
	case ratio <= 2.0:
		efficiency = 1.0 + (ratio-1.0)*0.7
	default:
		efficiency = 1.7 + (ratio-2.0)*0.3
	}
	return baseRate * efficiency
}

// EstimatePowerConsumption estimates watts drawn at the current worker
// count and optimization mode.
func (a *Accelerator) EstimatePowerConsumption() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.enabled {
		return 0
	}

	basePower := a.info.PowerWatts
	ratio := float64(a.workerCount) / float64(a.info.LogicalCores)
	multiplier := ratio

	switch a.optimization {
	case "power_save":
		multiplier *= 0.8
	case "balanced":
		multiplier *= 0.9
	case "performance":
		multiplier *= 1.0
	case "extreme":
		multiplier *= 1.15
	}
	return basePower * multiplier
}

// GetEfficiency returns estimated H/s per watt.
func (a *Accelerator) GetEfficiency() float64 {
	power := a.EstimatePowerConsumption()
	if power == 0 {
		return 0
	}
	return a.EstimateHashRate() / power
}

// GetStats returns a comprehensive stats map, matching the teacher's
// GetStats() shape.
func (a *Accelerator) GetStats() map[string]interface{} {
	a.mu.RLock()
	name := a.info.Name
	cores := a.info.LogicalCores
	workers := a.workerCount
	enabled := a.enabled
	opt := a.optimization
	a.mu.RUnlock()

	return map[string]interface{}{
		"hardware_name":      name,
		"logical_cores":      cores,
		"worker_count":       workers,
		"enabled":            enabled,
		"optimization":       opt,
		"estimated_hashrate": a.EstimateHashRate(),
		"estimated_power_w":  a.EstimatePowerConsumption(),
		"efficiency_h_per_w": a.GetEfficiency(),
	}
}
