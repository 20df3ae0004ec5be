package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jadaela-ara/biomining-go/pkg/biocompute"
	"github.com/jadaela-ara/biomining-go/pkg/scheduler"
)

var mineCmd = &cobra.Command{
	Use:   "mine <header_hex> <bits>",
	Short: "Mine a single block header against the given compact-bits target",
	Args:  cobra.ExactArgs(2),
	Run:   runMine,
}

func init() {
	mineCmd.Flags().Duration("max-duration", 0, "wall-clock budget for this job (0 = unbounded)")
}

func runMine(cmd *cobra.Command, args []string) {
	h, target, err := parseHeaderAndBits(args[0], args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}

	e, backend, err := buildEngine(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
	defer e.Close()

	maxDuration, _ := cmd.Flags().GetDuration("max-duration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if maxDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), maxDuration+5*time.Second)
		defer cancel()
	}

	if err := initBackend(ctx, backend); err != nil {
		fmt.Fprintf(os.Stderr, "bio-compute initialise failed: %v\n", err)
		os.Exit(exitBioError)
	}

	difficulty := computeDifficulty(target)
	outcome := e.RunJob(ctx, h, difficulty, target)

	switch outcome.Kind {
	case scheduler.Found:
		fmt.Printf("found nonce=%d digest=%x\n", outcome.Nonce, outcome.Digest)
		os.Exit(exitSuccess)
	case scheduler.Exhausted:
		fmt.Println("exhausted: no valid nonce in the scanned window")
		os.Exit(exitExhausted)
	case scheduler.Cancelled:
		fmt.Println("cancelled")
		os.Exit(exitExhausted)
	default:
		var bioErr *biocompute.BioError
		if outcome.Err != nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", outcome.Err)
			if errors.As(outcome.Err, &bioErr) {
				os.Exit(exitBioError)
			}
		}
		os.Exit(exitBioError)
	}
}
