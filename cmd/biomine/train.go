package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jadaela-ara/biomining-go/pkg/features"
	"github.com/jadaela-ara/biomining-go/pkg/simneuron"
	"github.com/jadaela-ara/biomining-go/pkg/stimulus"
)

var trainCmd = &cobra.Command{
	Use:   "train <examples_file>",
	Short: "Run initial supervised learning on the simulated backend from a JSON example file",
	Args:  cobra.ExactArgs(1),
	Run:   runTrain,
}

// trainExample is one row of the examples file: a header/bits/difficulty
// triple plus the nonce the model should learn to predict for it.
type trainExample struct {
	HeaderHex  string  `json:"header_hex"`
	Bits       string  `json:"bits"`
	Difficulty float64 `json:"difficulty"`
	Nonce      uint32  `json:"nonce"`
}

func runTrain(cmd *cobra.Command, args []string) {
	modelPath, _ := cmd.Flags().GetString("model-path")
	if modelPath == "" {
		fmt.Fprintln(os.Stderr, "train requires --model-path to write the trained model to")
		os.Exit(exitConfigError)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading examples file: %v\n", err)
		os.Exit(exitIOError)
	}

	var rows []trainExample
	if err := json.Unmarshal(data, &rows); err != nil {
		fmt.Fprintf(os.Stderr, "parsing examples file: %v\n", err)
		os.Exit(exitConfigError)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "examples file contains no rows")
		os.Exit(exitConfigError)
	}

	vmax, _ := cmd.Flags().GetFloat64("vmax")
	examples := make([]simneuron.TrainingExample, 0, len(rows))
	for i, row := range rows {
		h, target, err := parseHeaderAndBits(row.HeaderHex, row.Bits)
		if err != nil {
			fmt.Fprintf(os.Stderr, "row %d: %v\n", i, err)
			os.Exit(exitConfigError)
		}
		difficulty := row.Difficulty
		if difficulty == 0 {
			difficulty = computeDifficulty(target)
		}
		f := features.Extract(h, difficulty)
		pattern := stimulus.Build(f, vmax)
		examples = append(examples, simneuron.TrainingExample{
			Input:  pattern.ResponseVector(),
			Target: row.Nonce,
		})
	}

	backend := simneuron.New(simneuron.DefaultConfig())
	accuracy, epochs, err := backend.ExecuteInitialLearning(context.Background(), examples)
	if err != nil {
		fmt.Fprintf(os.Stderr, "training failed: %v\n", err)
		os.Exit(exitBioError)
	}
	fmt.Printf("trained: accuracy=%.4f epochs=%d\n", accuracy, epochs)

	saved, err := backend.Save()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serialising model: %v\n", err)
		os.Exit(exitBioError)
	}
	if err := os.WriteFile(modelPath, saved, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing model to %s: %v\n", modelPath, err)
		os.Exit(exitIOError)
	}

	os.Exit(exitSuccess)
}
