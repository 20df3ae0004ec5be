package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/engine"
	"github.com/jadaela-ara/biomining-go/pkg/header"
	"github.com/jadaela-ara/biomining-go/pkg/mea"
	"github.com/jadaela-ara/biomining-go/pkg/mea/transport"
	"github.com/jadaela-ara/biomining-go/pkg/metrics"
	"github.com/jadaela-ara/biomining-go/pkg/patternmemory"
	"github.com/jadaela-ara/biomining-go/pkg/simneuron"
)

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

// parseHeaderAndBits decodes the CLI's `<header_hex> <bits>` argument
// pair into a BlockHeader and Target, per the mine subcommand's contract.
func parseHeaderAndBits(headerHex, bitsArg string) (*header.BlockHeader, *header.Target, error) {
	raw, err := hex.DecodeString(headerHex)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid header hex: %w", err)
	}
	h, err := header.Deserialize(raw)
	if err != nil {
		return nil, nil, err
	}

	bits, err := strconv.ParseUint(bitsArg, 0, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid bits value %q: %w", bitsArg, err)
	}
	target, err := header.BitsToTarget(uint32(bits))
	if err != nil {
		return nil, nil, err
	}
	return h, target, nil
}

// buildBackend constructs the configured bio-compute backend (simulated
// or real_mea) from persistent flags, loading a persisted model for the
// simulated backend when --model-path is set and the file exists.
func buildBackend(cmd *cobra.Command) (biocompute.Backend, error) {
	mode, _ := cmd.Flags().GetString("mode")

	switch mode {
	case "simulated":
		modelPath, _ := cmd.Flags().GetString("model-path")
		backend := simneuron.New(simneuron.DefaultConfig())
		if modelPath != "" {
			if data, err := os.ReadFile(modelPath); err == nil {
				if err := backend.Load(data); err != nil {
					return nil, fmt.Errorf("loading model %s: %w", modelPath, err)
				}
			}
		}
		return backend, nil

	case "real_mea":
		transportKind, _ := cmd.Flags().GetString("transport")
		devicePath, _ := cmd.Flags().GetString("device-path")
		host, _ := cmd.Flags().GetString("network-host")
		port, _ := cmd.Flags().GetUint32("network-port")
		vmax, _ := cmd.Flags().GetFloat64("vmax")

		cfg := mea.DefaultConfig()
		cfg.VMax = vmax
		cfg.Transport = transport.Config{
			Kind:        transport.Kind(transportKind),
			DevicePath:  devicePath,
			NetworkHost: host,
			NetworkPort: uint16(port),
		}
		return mea.New(cfg), nil

	default:
		return nil, fmt.Errorf("unknown mode %q: must be simulated or real_mea", mode)
	}
}

// buildEngine wires a freshly-constructed backend into an Engine using
// the command's persistent flags.
func buildEngine(cmd *cobra.Command) (*engine.Engine, biocompute.Backend, error) {
	backend, err := buildBackend(cmd)
	if err != nil {
		return nil, nil, err
	}

	threads, _ := cmd.Flags().GetInt("threads")
	startingPoints, _ := cmd.Flags().GetUint32("starting-points")
	windowSize, _ := cmd.Flags().GetUint32("window-size")
	vmax, _ := cmd.Flags().GetFloat64("vmax")

	cfg := engine.DefaultConfig()
	if threads > 0 {
		cfg.Threads = threads
	}
	if startingPoints > 0 {
		cfg.StartingPoints = int(startingPoints)
	}
	if windowSize > 0 {
		cfg.WindowSize = windowSize
	}
	cfg.VMax = vmax
	if maxDuration, err := cmd.Flags().GetDuration("max-duration"); err == nil {
		cfg.MaxDuration = maxDuration
	}

	agg := metrics.New()
	mem := patternmemory.New(patternmemory.DefaultCapacity)
	e := engine.New(cfg, backend, agg, mem, newLogger())
	return e, backend, nil
}

// difficultyOneTarget is the target at Bitcoin's conventional
// "difficulty 1" (compact bits 0x1d00ffff), used to derive a difficulty
// scalar from an arbitrary target for feature extraction.
var difficultyOneTarget = func() *big.Int {
	t, err := header.BitsToTarget(0x1d00ffff)
	if err != nil {
		panic(err)
	}
	return &t.Int
}()

// computeDifficulty converts a target back into the conventional
// difficulty scalar difficulty_1_target / target.
func computeDifficulty(target *header.Target) float64 {
	if target.Int.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(difficultyOneTarget, &target.Int)
	f, _ := ratio.Float64()
	return f
}

// initBackend runs the backend's Initialise (a no-op for the simulated
// backend, a transport-open + calibration sequence for real_mea).
func initBackend(ctx context.Context, backend biocompute.Backend) error {
	return backend.Initialise(ctx)
}
