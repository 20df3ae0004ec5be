// Package simneuron implements the simulated bio-compute backend: a
// layered neuron model with Hebbian-style plasticity and a back-
// propagation error term, not a biologically accurate simulation but one
// whose reinforcement has a monotone, observable effect. It implements
// biocompute.Backend so the scheduler can drive it interchangeably with
// the real-MEA backend.
package simneuron

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

// TrainingState is the model's coarse learning-progress tag.
type TrainingState int

const (
	Untrained TrainingState = iota
	InitialLearning
	Trained
	Retraining
	Optimising
)

func (s TrainingState) String() string {
	switch s {
	case Untrained:
		return "untrained"
	case InitialLearning:
		return "initial_learning"
	case Trained:
		return "trained"
	case Retraining:
		return "retraining"
	case Optimising:
		return "optimising"
	default:
		return "unknown"
	}
}

// DefaultLayerSizes is the model topology: input to output.
var DefaultLayerSizes = []int{60, 128, 64, 32}

const (
	defaultLearningRate = 0.01
	defaultDecay        = 0.995
	defaultMomentum     = 0.9
	weightClip          = 5.0
	jitterSigma         = 0.01
	defaultTargetAcc    = 0.85
	retroRateLimit      = 30 * time.Second
)

// layer holds one fully-connected layer's parameters. Weights[i][j] is
// the weight from source neuron i to destination neuron j — a flat
// arena of float64 slices rather than per-neuron objects, matching the
// teacher's array-of-arrays-over-heap-graph convention.
type layer struct {
	Weights  [][]float64
	Momentum [][]float64
	Biases   []float64
}

func newLayer(in, out int) *layer {
	w := make([][]float64, in)
	m := make([][]float64, in)
	for i := range w {
		w[i] = make([]float64, out)
		m[i] = make([]float64, out)
		for j := range w[i] {
			w[i][j] = (rand.Float64()*2 - 1) * 0.1
		}
	}
	b := make([]float64, out)
	return &layer{Weights: w, Momentum: m, Biases: b}
}

// TrainingExample pairs a stimulus input with an expected nonce for
// supervised initial-learning.
type TrainingExample struct {
	Input  [stimulus.ElectrodeCount]float64
	Target uint32
}

// Config configures a fresh Backend.
type Config struct {
	LayerSizes    []int
	LearningRate  float64
	Decay         float64
	Momentum      float64
	MaxIterations uint32
	TargetAccuracy float64
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		LayerSizes:     append([]int(nil), DefaultLayerSizes...),
		LearningRate:   defaultLearningRate,
		Decay:          defaultDecay,
		Momentum:       defaultMomentum,
		MaxIterations:  200,
		TargetAccuracy: defaultTargetAcc,
	}
}

// Backend is the simulated bio-compute model. Exported fields are kept to
// a minimum; state is mutex-protected since retro-learning reads are
// concurrent with the bio worker's own writes in principle, even though
// in practice both run on the single dedicated bio worker.
type Backend struct {
	mu sync.RWMutex

	cfg    Config
	layers []*layer
	state  TrainingState

	lastActivations [][]float64 // scratch from the most recent forward pass
	lastRetro       time.Time
	reinforceCount  uint64
}

var _ biocompute.Backend = (*Backend)(nil)

// New builds a fresh, untrained simulated backend.
func New(cfg Config) *Backend {
	if len(cfg.LayerSizes) < 2 {
		cfg.LayerSizes = append([]int(nil), DefaultLayerSizes...)
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = defaultLearningRate
	}
	if cfg.Decay == 0 {
		cfg.Decay = defaultDecay
	}
	if cfg.Momentum == 0 {
		cfg.Momentum = defaultMomentum
	}
	if cfg.TargetAccuracy == 0 {
		cfg.TargetAccuracy = defaultTargetAcc
	}

	b := &Backend{cfg: cfg, state: Untrained}
	b.layers = make([]*layer, len(cfg.LayerSizes)-1)
	for i := 0; i < len(cfg.LayerSizes)-1; i++ {
		b.layers[i] = newLayer(cfg.LayerSizes[i], cfg.LayerSizes[i+1])
	}
	return b
}

// Initialise is a no-op beyond marking the backend ready: the simulated
// model has no external transport to open.
func (b *Backend) Initialise(ctx context.Context) error {
	return nil
}

// Ready is always true once constructed.
func (b *Backend) Ready() bool { return true }

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// forward runs the full layer stack over input, returning every layer's
// activation vector (including the input as layers[0]) for later use by
// both the response-capture and the reinforcement back-prop pass.
func (b *Backend) forward(input []float64, jitter bool) [][]float64 {
	activations := make([][]float64, len(b.layers)+1)
	activations[0] = input

	prev := input
	for li, l := range b.layers {
		out := make([]float64, len(l.Biases))
		for j := range out {
			var z float64
			for i, x := range prev {
				z += x * l.Weights[i][j]
			}
			z += l.Biases[j]
			if jitter {
				z += rand.NormFloat64() * jitterSigma
			}
			out[j] = sigmoid(z)
		}
		activations[li+1] = out
		prev = out
	}
	return activations
}

// Stimulate runs the forward pass and returns the first hidden layer's
// activations (padded or truncated to 60), rescaled from [0,1] to [-1,1],
// as the captured response.
func (b *Backend) Stimulate(ctx context.Context, pattern stimulus.Pattern, waitMS uint32) (biocompute.Response, error) {
	input := pattern.ResponseVector()

	b.mu.Lock()
	activations := b.forward(input[:], true)
	b.lastActivations = activations
	b.mu.Unlock()

	if len(activations) < 2 {
		return biocompute.Response{}, biocompute.NewBioError(biocompute.Internal, "no hidden layer")
	}
	hidden := activations[1]

	var voltages [stimulus.ElectrodeCount]float64
	for i := range voltages {
		if i < len(hidden) {
			voltages[i] = hidden[i]*2 - 1 // centre sigmoid output around 0 like a voltage
		}
	}

	resp := biocompute.NewResponse(voltages, time.Now())
	if resp.SignalQuality < 0 {
		return biocompute.Response{}, biocompute.NewBioError(biocompute.SignalQualityBelowFloor, "")
	}
	return resp, nil
}

// predictNonce interprets the output layer's 32 activations bitwise: each
// activation >= 0.5 contributes a 1 bit, MSB first.
func predictNonce(output []float64) uint32 {
	var n uint32
	for i := 0; i < 32 && i < len(output); i++ {
		if output[i] >= 0.5 {
			n |= 1 << uint(31-i)
		}
	}
	return n
}

func nonceBits(nonce uint32) []float64 {
	bits := make([]float64, 32)
	for i := 0; i < 32; i++ {
		if nonce&(1<<uint(31-i)) != 0 {
			bits[i] = 1
		}
	}
	return bits
}

// Reinforce applies a Hebbian update (`w += eta*reward*a_i*a_j`, with
// momentum and decay) to every layer, then — since a target nonce is
// always available here — runs one back-propagation pass against the
// bitwise encoding of nonce.
func (b *Backend) Reinforce(ctx context.Context, pattern stimulus.Pattern, nonce uint32, reward float64) error {
	input := pattern.ResponseVector()

	b.mu.Lock()
	defer b.mu.Unlock()

	activations := b.forward(input[:], false)
	b.hebbianUpdate(activations, reward)
	b.backprop(activations, nonceBits(nonce))
	b.reinforceCount++

	switch b.state {
	case Untrained:
		b.state = InitialLearning
	case InitialLearning:
		// stays until ExecuteInitialLearning promotes it
	}
	return nil
}

// hebbianUpdate implements `w_ij += eta*reward*a_i*a_j`, momentum-smoothed
// and decayed, clamped to [-clip, clip].
func (b *Backend) hebbianUpdate(activations [][]float64, reward float64) {
	eta := b.cfg.LearningRate
	beta := b.cfg.Momentum
	decay := b.cfg.Decay

	for li, l := range b.layers {
		pre := activations[li]
		post := activations[li+1]
		for i := range l.Weights {
			for j := range l.Weights[i] {
				delta := eta * reward * pre[i] * post[j]
				l.Momentum[i][j] = beta*l.Momentum[i][j] + (1-beta)*delta
				w := l.Weights[i][j] + l.Momentum[i][j]
				w *= decay
				l.Weights[i][j] = clampWeight(w)
			}
		}
	}
}

// backprop runs one mean-squared-error backward pass against target,
// one layer at a time.
func (b *Backend) backprop(activations [][]float64, target []float64) {
	out := activations[len(activations)-1]
	if len(out) != len(target) {
		return
	}

	delta := make([]float64, len(out))
	for i := range out {
		err := target[i] - out[i]
		delta[i] = err * out[i] * (1 - out[i]) // sigmoid derivative
	}

	eta := b.cfg.LearningRate
	for li := len(b.layers) - 1; li >= 0; li-- {
		l := b.layers[li]
		pre := activations[li]

		nextDelta := make([]float64, len(pre))
		for i := range l.Weights {
			var sum float64
			for j := range l.Weights[i] {
				sum += l.Weights[i][j] * delta[j]
				l.Weights[i][j] = clampWeight(l.Weights[i][j] + eta*delta[j]*pre[i])
			}
			a := pre[i]
			nextDelta[i] = sum * a * (1 - a)
		}
		for j := range l.Biases {
			l.Biases[j] += eta * delta[j]
		}
		delta = nextDelta
	}
}

func clampWeight(w float64) float64 {
	if w > weightClip {
		return weightClip
	}
	if w < -weightClip {
		return -weightClip
	}
	return w
}

// Reset discards all learned weights and returns to Untrained.
func (b *Backend) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < len(b.cfg.LayerSizes)-1; i++ {
		b.layers[i] = newLayer(b.cfg.LayerSizes[i], b.cfg.LayerSizes[i+1])
	}
	b.state = Untrained
	b.reinforceCount = 0
	return nil
}

// Diagnostic reports the model's topology and training state.
func (b *Backend) Diagnostic() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("simneuron: topology=%v state=%s reinforcements=%d",
		b.cfg.LayerSizes, b.state, b.reinforceCount)
}

// State returns the current training-state tag.
func (b *Backend) State() TrainingState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Predict runs a noiseless forward pass over pattern and returns the
// output layer interpreted as a candidate nonce, alongside the raw output
// activations (used by tests measuring reinforcement's effect).
func (b *Backend) Predict(pattern stimulus.Pattern) (uint32, []float64) {
	input := pattern.ResponseVector()
	b.mu.Lock()
	activations := b.forward(input[:], false)
	b.mu.Unlock()
	out := activations[len(activations)-1]
	return predictNonce(out), append([]float64(nil), out...)
}

// ExecuteInitialLearning trains on examples for up to MaxIterations
// epochs, tracking accuracy (fraction whose predicted nonce matches the
// example's target in every bit) until it exceeds TargetAccuracy.
func (b *Backend) ExecuteInitialLearning(ctx context.Context, examples []TrainingExample) (accuracy float64, epochs uint32, err error) {
	if len(examples) == 0 {
		return 0, 0, fmt.Errorf("simneuron: no training examples")
	}

	b.mu.Lock()
	b.state = InitialLearning
	b.mu.Unlock()

	order := make([]int, len(examples))
	for i := range order {
		order[i] = i
	}

	var acc float64
	var epoch uint32
	for ; epoch < b.cfg.MaxIterations; epoch++ {
		select {
		case <-ctx.Done():
			return acc, epoch, ctx.Err()
		default:
		}

		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		correct := 0
		b.mu.Lock()
		for _, idx := range order {
			ex := examples[idx]
			activations := b.forward(ex.Input[:], false)
			b.backprop(activations, nonceBits(ex.Target))
			out := activations[len(activations)-1]
			if predictNonce(out) == ex.Target {
				correct++
			}
		}
		b.mu.Unlock()

		acc = float64(correct) / float64(len(examples))
		if acc >= b.cfg.TargetAccuracy {
			break
		}
	}

	b.mu.Lock()
	if acc >= b.cfg.TargetAccuracy {
		b.state = Trained
	} else {
		b.state = Trained // epoch cap reached; best effort still promotes
	}
	b.mu.Unlock()

	return acc, epoch, nil
}

// ExecuteRetroLearning runs a short focused backward pass over recently
// recalled examples, rate-limited to once per retroRateLimit.
func (b *Backend) ExecuteRetroLearning(ctx context.Context, examples []TrainingExample) (ran bool, err error) {
	b.mu.Lock()
	if time.Since(b.lastRetro) < retroRateLimit {
		b.mu.Unlock()
		return false, nil
	}
	b.lastRetro = time.Now()
	b.state = Retraining
	b.mu.Unlock()

	epochs := b.cfg.MaxIterations / 5
	if epochs == 0 {
		epochs = 1
	}

	for e := uint32(0); e < epochs; e++ {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		default:
		}
		b.mu.Lock()
		for _, ex := range examples {
			activations := b.forward(ex.Input[:], false)
			b.backprop(activations, nonceBits(ex.Target))
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.state = Trained
	b.mu.Unlock()
	return true, nil
}

// --- Serialisation ---

// document is the forward-compatible persisted-model format: a version
// field, topology descriptor, weight matrices, and metadata.
type document struct {
	Version  int       `json:"version"`
	Layers   []int     `json:"layers"`
	Weights  [][][]float64 `json:"weights"`
	Biases   [][]float64   `json:"biases"`
	State    int       `json:"state"`
	Config   Config    `json:"config"`
}

const documentVersion = 1

// ErrTopologyMismatch is returned by Load when the saved model's topology
// disagrees with the backend it is being loaded into.
var ErrTopologyMismatch = fmt.Errorf("simneuron: model topology incompatible")

// Save serialises the model state (topology, weights, thresholds,
// training-state tag, config) to a forward-compatible JSON document. The
// reinforcement counter is not saved: Load leaves the receiving backend's
// own counter unchanged.
func (b *Backend) Save() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc := document{
		Version: documentVersion,
		Layers:  append([]int(nil), b.cfg.LayerSizes...),
		State:   int(b.state),
		Config:  b.cfg,
	}
	for _, l := range b.layers {
		doc.Weights = append(doc.Weights, l.Weights)
		doc.Biases = append(doc.Biases, l.Biases)
	}
	return json.Marshal(doc)
}

// Load replaces b's state with the document encoded in data. Loading a
// model whose topology disagrees with the current configuration is a
// hard error: the caller must Reset or reconfigure instead.
func (b *Backend) Load(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("simneuron: decode model: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(doc.Layers) != len(b.cfg.LayerSizes) {
		return ErrTopologyMismatch
	}
	for i, sz := range doc.Layers {
		if sz != b.cfg.LayerSizes[i] {
			return ErrTopologyMismatch
		}
	}

	for i, l := range b.layers {
		l.Weights = doc.Weights[i]
		l.Biases = doc.Biases[i]
		for r := range l.Momentum {
			for c := range l.Momentum[r] {
				l.Momentum[r][c] = 0
			}
		}
	}
	b.state = TrainingState(doc.State)
	return nil
}
