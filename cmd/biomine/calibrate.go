package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jadaela-ara/biomining-go/pkg/mea"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Connect to the configured real-MEA transport and run impedance calibration",
	Args:  cobra.NoArgs,
	Run:   runCalibrate,
}

func runCalibrate(cmd *cobra.Command, args []string) {
	mode, _ := cmd.Flags().GetString("mode")
	if mode != "real_mea" {
		fmt.Fprintln(os.Stderr, "calibrate requires --mode=real_mea")
		os.Exit(exitConfigError)
	}

	backend, err := buildBackend(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	meaBackend, ok := backend.(*mea.Backend)
	if !ok {
		fmt.Fprintln(os.Stderr, "internal error: expected a real-MEA backend")
		os.Exit(exitConfigError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := meaBackend.Initialise(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "calibration failed: %v\n", err)
		os.Exit(exitBioError)
	}

	fmt.Println(meaBackend.Diagnostic())
	os.Exit(exitSuccess)
}
