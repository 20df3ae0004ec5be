// Package mea implements the real Multi-Electrode Array bio-compute
// backend: a connection state machine over a pluggable transport, spike
// detection, impedance calibration, and spike-timing-dependent
// reinforcement. It implements biocompute.Backend so the scheduler can
// drive it interchangeably with the simulated backend.
package mea

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/mea/transport"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

// ConnState is the real-MEA connection state machine's current state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Calibrating
	Streaming
	Error
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Calibrating:
		return "calibrating"
	case Streaming:
		return "streaming"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Config configures the real-MEA backend, mirroring the bio-compute
// configuration document's real_mea-relevant fields (spec.md §6).
type Config struct {
	Transport         transport.Config
	SpikeDetection    bool
	SpikeThresholdUV  float64
	MaxRetries        int
	AutoCalibration   bool
	ImpedanceMaxOhms  float64
	VMax              float64
	IMaxUA            float64
	ReconnectMaxTries int
	ReconnectWindow   time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SpikeDetection:    true,
		SpikeThresholdUV:  -50.0,
		MaxRetries:        3,
		AutoCalibration:   true,
		ImpedanceMaxOhms:  10_000_000,
		VMax:              5.0,
		IMaxUA:            100.0,
		ReconnectMaxTries: 5,
		ReconnectWindow:   30 * time.Second,
	}
}

const spikeDeadTime = time.Millisecond
const spikeBufferCapacity = 1000

// Backend drives a physical MEA over one of the pluggable transports.
type Backend struct {
	mu sync.Mutex

	cfg   Config
	state ConnState
	tr    transport.Transport

	electrodeActive    [stimulus.ElectrodeCount]bool
	impedanceOhms      [stimulus.ElectrodeCount]float64
	calibrationFactor  [stimulus.ElectrodeCount]float64
	lastSpikeTime      [stimulus.ElectrodeCount]time.Time
	spikeRing          []biocompute.SpikeEvent

	stdpWeights map[[2]int]float64

	reconnect *reconnectLimiter
}

var _ biocompute.Backend = (*Backend)(nil)

// New constructs a real-MEA backend bound to cfg's transport. The
// transport is opened lazily by Initialise.
func New(cfg Config) *Backend {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ImpedanceMaxOhms == 0 {
		cfg.ImpedanceMaxOhms = 10_000_000
	}
	if cfg.VMax == 0 {
		cfg.VMax = 5.0
	}
	if cfg.IMaxUA == 0 {
		cfg.IMaxUA = 100.0
	}
	if cfg.ReconnectMaxTries == 0 {
		cfg.ReconnectMaxTries = 5
	}
	if cfg.ReconnectWindow == 0 {
		cfg.ReconnectWindow = 30 * time.Second
	}

	b := &Backend{
		cfg:         cfg,
		state:       Disconnected,
		stdpWeights: make(map[[2]int]float64),
		reconnect:   newReconnectLimiter(cfg.ReconnectMaxTries, cfg.ReconnectWindow),
	}
	for i := range b.calibrationFactor {
		b.calibrationFactor[i] = 1.0
		b.electrodeActive[i] = true
	}
	return b
}

// Initialise opens the transport, runs impedance calibration if
// configured, and transitions to Streaming. It sends no device-
// identification query of its own; the only frame exchange is the
// calibration round-trip.
func (b *Backend) Initialise(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.reconnect.Allow() {
		b.state = Error
		return biocompute.NewBioError(biocompute.DeviceDisconnected, "reconnect rate limited")
	}

	b.state = Connecting
	tr, err := transport.Open(ctx, b.cfg.Transport)
	if err != nil {
		b.state = Error
		return biocompute.NewBioError(biocompute.DeviceDisconnected, err.Error())
	}
	b.tr = tr
	b.state = Connected

	if b.cfg.AutoCalibration {
		b.state = Calibrating
		if err := b.calibrateLocked(ctx); err != nil {
			b.state = Error
			return err
		}
	}

	b.state = Streaming
	return nil
}

// Ready reports whether the backend may accept Stimulate calls.
func (b *Backend) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Streaming || b.state == Connected
}

// calibrateLocked applies a small known test waveform per electrode,
// measures the response, and solves Z = V_applied / I_measured under the
// linear assumption, marking electrodes over ImpedanceMaxOhms inactive.
// Caller must hold b.mu.
func (b *Backend) calibrateLocked(ctx context.Context) error {
	testPattern := stimulus.Pattern{DurationMS: 10}
	for i := range testPattern.Electrodes {
		testPattern.Electrodes[i] = stimulus.Electrode{AmplitudeV: 0.1, FrequencyHz: 1000}
	}

	frame := encodeStimulation(testPattern)
	if err := b.tr.SendFrame(frame); err != nil {
		return biocompute.NewBioError(biocompute.DeviceDisconnected, err.Error())
	}

	resp, err := b.tr.ReceiveFrame(ctx, readTimeout(b.cfg))
	if err != nil {
		return biocompute.NewBioError(biocompute.Timeout, err.Error())
	}
	voltages, ok := decodeResponse(resp)
	if !ok {
		return biocompute.NewBioError(biocompute.Internal, "malformed calibration frame")
	}

	const appliedV = 0.1
	const assumedCurrentUA = 1.0
	for i, v := range voltages {
		measuredUA := math.Abs(v) * assumedCurrentUA
		if measuredUA < 1e-9 {
			measuredUA = 1e-9
		}
		impedance := appliedV / (measuredUA * 1e-6)
		b.impedanceOhms[i] = impedance
		b.electrodeActive[i] = impedance <= b.cfg.ImpedanceMaxOhms
		if measuredUA != 0 {
			b.calibrationFactor[i] = appliedV / measuredUA
		}
	}
	return nil
}

func readTimeout(cfg Config) time.Duration {
	if cfg.Transport.ReadTimeoutMS == 0 {
		return 2 * time.Second
	}
	return time.Duration(cfg.Transport.ReadTimeoutMS) * time.Millisecond
}

// Stimulate clamps pattern amplitudes to configured safety limits,
// serialises and sends the frame, and waits up to waitMS (plus transport
// slack) for a 60-sample response, retrying up to MaxRetries times.
func (b *Backend) Stimulate(ctx context.Context, pattern stimulus.Pattern, waitMS uint32) (biocompute.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Streaming && b.state != Connected {
		return biocompute.Response{}, biocompute.NewBioError(biocompute.NotReady, b.state.String())
	}

	clamped := clampPattern(pattern, b.cfg.VMax)
	frame := encodeStimulation(clamped)

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if err := b.tr.SendFrame(frame); err != nil {
			lastErr = err
			continue
		}
		resp, err := b.tr.ReceiveFrame(ctx, time.Duration(waitMS)*time.Millisecond+readTimeout(b.cfg)/4)
		if err != nil {
			lastErr = err
			continue
		}
		voltages, ok := decodeResponse(resp)
		if !ok {
			lastErr = fmt.Errorf("malformed response frame")
			continue
		}

		response := biocompute.NewResponse(voltages, time.Now())
		if b.cfg.SpikeDetection {
			response.Spikes = b.detectSpikesLocked(voltages, response.CaptureTimeUS)
		}
		if response.SignalQuality < 0.05 {
			return response, biocompute.NewBioError(biocompute.SignalQualityBelowFloor, "")
		}
		return response, nil
	}

	b.state = Error
	if lastErr == nil {
		lastErr = fmt.Errorf("no response")
	}
	return biocompute.Response{}, biocompute.NewBioError(biocompute.Timeout, lastErr.Error())
}

// detectSpikesLocked fires a spike event per electrode whose sample
// crosses the configured threshold, honouring a one-sample-window dead
// time to avoid double-counting. Caller must hold b.mu.
func (b *Backend) detectSpikesLocked(voltages [stimulus.ElectrodeCount]float64, captureUS int64) []biocompute.SpikeEvent {
	var spikes []biocompute.SpikeEvent
	now := time.UnixMicro(captureUS)
	thresholdV := b.cfg.SpikeThresholdUV / 1e6

	for i, v := range voltages {
		if v >= thresholdV {
			continue
		}
		if now.Sub(b.lastSpikeTime[i]) < spikeDeadTime {
			continue
		}
		b.lastSpikeTime[i] = now
		ev := biocompute.SpikeEvent{
			ElectrodeID:  i,
			AmplitudeUV:  v * 1e6,
			TimestampUUS: captureUS,
		}
		spikes = append(spikes, ev)
		b.spikeRing = append(b.spikeRing, ev)
		if len(b.spikeRing) > spikeBufferCapacity {
			b.spikeRing = b.spikeRing[len(b.spikeRing)-spikeBufferCapacity:]
		}
	}
	return spikes
}

// stdpEta and stdpTau are the spike-timing-dependent-plasticity learning
// rate and time constant.
const (
	stdpEta = 0.05
	stdpTau = 20 * time.Millisecond
)

// Reinforce applies spike-timing-dependent plasticity across every pair
// of spikes recorded in the ring buffer within five stdpTau of each
// other, scaled by reward.
func (b *Backend) Reinforce(ctx context.Context, pattern stimulus.Pattern, nonce uint32, reward float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < len(b.spikeRing); i++ {
		for j := 0; j < len(b.spikeRing); j++ {
			if i == j {
				continue
			}
			pre, post := b.spikeRing[i], b.spikeRing[j]
			dt := time.Duration(post.TimestampUUS-pre.TimestampUUS) * time.Microsecond
			if dt.Abs() > stdpTau*5 {
				continue
			}
			key := [2]int{pre.ElectrodeID, post.ElectrodeID}
			sign := 1.0
			if dt < 0 {
				sign = -1.0
			}
			delta := stdpEta * reward * math.Exp(-math.Abs(dt.Seconds())/stdpTau.Seconds()) * sign
			b.stdpWeights[key] += delta
		}
	}
	return nil
}

// Reset clears learned STDP weights and spike history, returning to
// Disconnected; a subsequent Initialise is required before use.
func (b *Backend) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tr != nil {
		_ = b.tr.Close()
		b.tr = nil
	}
	b.state = Disconnected
	b.spikeRing = nil
	b.stdpWeights = make(map[[2]int]float64)
	return nil
}

// Diagnostic reports connection state, active-electrode count, and spike
// history depth.
func (b *Backend) Diagnostic() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	active := 0
	for _, a := range b.electrodeActive {
		if a {
			active++
		}
	}
	return fmt.Sprintf("mea: state=%s active_electrodes=%d/%d spikes_buffered=%d",
		b.state, active, stimulus.ElectrodeCount, len(b.spikeRing))
}

// State returns the current connection state.
func (b *Backend) State() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func clampPattern(p stimulus.Pattern, vMax float64) stimulus.Pattern {
	out := p
	for i, e := range out.Electrodes {
		if e.AmplitudeV > vMax {
			e.AmplitudeV = vMax
		}
		if e.AmplitudeV < 0 {
			e.AmplitudeV = 0
		}
		out.Electrodes[i] = e
	}
	return out
}

// encodeStimulation serialises a pattern as amplitude/frequency float32
// pairs per electrode, the wire shape every transport's framing wraps.
func encodeStimulation(p stimulus.Pattern) []byte {
	buf := make([]byte, 4+stimulus.ElectrodeCount*8)
	binary.LittleEndian.PutUint32(buf[0:4], p.DurationMS)
	for i, e := range p.Electrodes {
		off := 4 + i*8
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(float32(e.AmplitudeV)))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(float32(e.FrequencyHz)))
	}
	return buf
}

// decodeResponse parses a 60-sample float32 voltage frame.
func decodeResponse(frame []byte) ([stimulus.ElectrodeCount]float64, bool) {
	var out [stimulus.ElectrodeCount]float64
	if len(frame) < stimulus.ElectrodeCount*4 {
		return out, false
	}
	for i := 0; i < stimulus.ElectrodeCount; i++ {
		bits := binary.LittleEndian.Uint32(frame[i*4 : i*4+4])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, true
}
