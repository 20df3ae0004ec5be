package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jadaela-ara/biomining-go/pkg/hardware"
	"github.com/jadaela-ara/biomining-go/pkg/metrics"
	"github.com/jadaela-ara/biomining-go/pkg/simneuron"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report detected hardware and, if --model-path is set, the persisted model's diagnostic",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	acc := hardware.NewAccelerator()
	for k, v := range acc.GetStats() {
		fmt.Printf("%s: %v\n", k, v)
	}

	modelPath, _ := cmd.Flags().GetString("model-path")
	if modelPath != "" {
		data, err := os.ReadFile(modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading model %s: %v\n", modelPath, err)
			os.Exit(exitIOError)
		}
		backend := simneuron.New(simneuron.DefaultConfig())
		if err := backend.Load(data); err != nil {
			fmt.Fprintf(os.Stderr, "loading model: %v\n", err)
			os.Exit(exitBioError)
		}
		fmt.Println(backend.Diagnostic())
	}

	snap := metrics.New().Snapshot()
	fmt.Print(snap.PrintReport())
	os.Exit(exitSuccess)
}
