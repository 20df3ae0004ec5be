// Package metrics aggregates mining and bio-compute counters with
// fetch-add atomics on the hot path, exposing a read-only snapshot
// struct — the same "atomic counters, snapshot-struct read" pattern the
// teacher's pkg/hardware/accelerator.go GetStats() and guiperry-HASHER's
// DeviceStats/DeviceStatsSnapshot use.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Aggregator holds the engine's atomic counters. No locks on the hot
// path: every update is a single fetch-add.
type Aggregator struct {
	totalHashes        atomic.Uint64
	sharesFound        atomic.Uint64
	bioPredictions     atomic.Uint64
	bioSuccesses       atomic.Uint64
	bioResponseTimeSum atomic.Uint64 // microseconds
	jobs               atomic.Uint64
	errors             atomic.Uint64

	startedAt time.Time
}

// New constructs an Aggregator with its wall-clock start time pinned so
// Snapshot can derive a hash rate.
func New() *Aggregator {
	return &Aggregator{startedAt: time.Now()}
}

func (a *Aggregator) AddHashes(n uint64)            { a.totalHashes.Add(n) }
func (a *Aggregator) IncShares()                    { a.sharesFound.Add(1) }
func (a *Aggregator) IncBioPredictions()             { a.bioPredictions.Add(1) }
func (a *Aggregator) IncBioSuccesses()               { a.bioSuccesses.Add(1) }
func (a *Aggregator) AddBioResponseTimeUS(us int64) { a.bioResponseTimeSum.Add(uint64(us)) }
func (a *Aggregator) IncJobs()                       { a.jobs.Add(1) }
func (a *Aggregator) IncErrors()                     { a.errors.Add(1) }

// Snapshot is a point-in-time, lock-free read of every counter plus
// fields derived at read time (accuracy, hash rate).
type Snapshot struct {
	TotalHashes    uint64
	SharesFound    uint64
	BioPredictions uint64
	BioSuccesses   uint64
	BioAccuracy    float64
	AvgBioRespUS   float64
	Jobs           uint64
	Errors         uint64
	HashesPerSec   float64
	Uptime         time.Duration
}

// Snapshot reads every counter and derives hash rate / bio accuracy.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		TotalHashes:    a.totalHashes.Load(),
		SharesFound:    a.sharesFound.Load(),
		BioPredictions: a.bioPredictions.Load(),
		BioSuccesses:   a.bioSuccesses.Load(),
		Jobs:           a.jobs.Load(),
		Errors:         a.errors.Load(),
		Uptime:         time.Since(a.startedAt),
	}
	if s.BioPredictions > 0 {
		s.BioAccuracy = float64(s.BioSuccesses) / float64(s.BioPredictions)
		s.AvgBioRespUS = float64(a.bioResponseTimeSum.Load()) / float64(s.BioPredictions)
	}
	if s.Uptime > 0 {
		s.HashesPerSec = float64(s.TotalHashes) / s.Uptime.Seconds()
	}
	return s
}

var (
	reportTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	reportLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// PrintReport renders a terminal status report, in the style of the
// teacher's economy.Treasury.PrintReport() banner.
func (s Snapshot) PrintReport() string {
	return fmt.Sprintf(
		"%s\n%s %.2f H/s\n%s %d/%d\n%s %d\n%s %d\n%s %s\n",
		reportTitle.Render("bio-mining engine — status report"),
		reportLabel.Render("hash rate:"), s.HashesPerSec,
		reportLabel.Render("bio accuracy:"), s.BioSuccesses, s.BioPredictions,
		reportLabel.Render("shares found:"), s.SharesFound,
		reportLabel.Render("errors:"), s.Errors,
		reportLabel.Render("uptime:"), s.Uptime.Round(time.Second),
	)
}
