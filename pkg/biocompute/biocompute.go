// Package biocompute defines the capability contract every bio-compute
// backend (simulated neuron network or real MEA hardware) must satisfy.
// The mining scheduler depends only on this interface; it never knows
// which backend it is driving.
package biocompute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

// ErrorKind is the closed set of bio-subsystem failure categories from
// the error-handling design. The first three are retryable by the
// scheduler; the last two are reported and cause a fallback to uniform
// starting points for the current job.
type ErrorKind int

const (
	// NotReady means stimulate was called before initialise completed.
	NotReady ErrorKind = iota
	// Timeout means a device frame did not arrive within wait_ms+slack.
	Timeout
	// DeviceDisconnected means the transport dropped mid-session.
	DeviceDisconnected
	// SignalQualityBelowFloor means the captured response's quality
	// metric fell below the configured floor.
	SignalQualityBelowFloor
	// Internal is a backend-internal fault with no specific recovery.
	Internal
)

func (k ErrorKind) String() string {
	switch k {
	case NotReady:
		return "not_ready"
	case Timeout:
		return "timeout"
	case DeviceDisconnected:
		return "device_disconnected"
	case SignalQualityBelowFloor:
		return "signal_quality_below_floor"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// ErrBio is the sentinel every BioError wraps, so callers can test with
// errors.Is(err, biocompute.ErrBio) without caring about the kind.
var ErrBio = errors.New("biocompute: operation failed")

// BioError is the typed error surfaced by the capability interface.
type BioError struct {
	Kind ErrorKind
	Msg  string
}

func (e *BioError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("biocompute: %s", e.Kind)
	}
	return fmt.Sprintf("biocompute: %s: %s", e.Kind, e.Msg)
}

func (e *BioError) Unwrap() error { return ErrBio }

// NewBioError constructs a BioError of the given kind.
func NewBioError(kind ErrorKind, msg string) *BioError {
	return &BioError{Kind: kind, Msg: msg}
}

// Retryable reports whether the scheduler may re-issue the operation
// after re-initialising the backend.
func (k ErrorKind) Retryable() bool {
	switch k {
	case NotReady, Timeout, DeviceDisconnected:
		return true
	default:
		return false
	}
}

// SpikeEvent is a single threshold-crossing event captured on a real MEA.
type SpikeEvent struct {
	ElectrodeID  int
	AmplitudeUV  float64
	TimestampUUS int64
}

// Response is the capture produced by stimulate_and_capture: a per-
// electrode voltage vector plus derived quality metrics.
type Response struct {
	Voltages        [stimulus.ElectrodeCount]float64
	Strength        float64 // mean absolute amplitude
	SignalQuality   float64 // in [0,1], inverse of variance-normalised noise
	CaptureTimeUS   int64
	Spikes          []SpikeEvent // only populated by the real backend
}

// Backend is the uniform contract implemented by the simulated neuron
// network and the real-MEA driver. Blocking/synchronous at this surface;
// the scheduler runs it from a single dedicated bio worker, never from a
// mining worker.
type Backend interface {
	// Initialise transitions the backend to a ready state or returns a
	// BioError describing why it could not.
	Initialise(ctx context.Context) error

	// Ready reports whether Stimulate may be called.
	Ready() bool

	// Stimulate applies pattern and returns the captured response, or a
	// BioError if no valid frame arrived within waitMS plus backend slack.
	Stimulate(ctx context.Context, pattern stimulus.Pattern, waitMS uint32) (Response, error)

	// Reinforce asynchronously updates the backend's internal state
	// given the stimulus/nonce pair and a reward in [-1,1].
	Reinforce(ctx context.Context, pattern stimulus.Pattern, nonce uint32, reward float64) error

	// Reset returns the backend to a freshly-initialised state.
	Reset(ctx context.Context) error

	// Diagnostic returns a human-readable status string.
	Diagnostic() string
}

// strengthAndQuality computes the response-strength and signal-quality
// metrics shared by every backend from a raw voltage vector.
func strengthAndQuality(voltages [stimulus.ElectrodeCount]float64) (strength, quality float64) {
	var sumAbs, sum, sumSq float64
	n := float64(len(voltages))
	for _, v := range voltages {
		sumAbs += abs(v)
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	strength = sumAbs / n
	quality = clamp01(1.0 / (1.0 + variance))
	return strength, quality
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NewResponse builds a Response from raw voltages, filling in the derived
// strength/quality fields and the capture timestamp.
func NewResponse(voltages [stimulus.ElectrodeCount]float64, capturedAt time.Time) Response {
	strength, quality := strengthAndQuality(voltages)
	return Response{
		Voltages:      voltages,
		Strength:      strength,
		SignalQuality: quality,
		CaptureTimeUS: capturedAt.UnixMicro(),
	}
}
