// Command biomine is the thin CLI wrapper around the bio-guided mining
// engine: mine, train, calibrate, and status subcommands. It owns no
// business logic beyond flag parsing and exit-code mapping — every
// operation delegates to pkg/engine, pkg/simneuron, or pkg/mea. Grounded
// on the teacher's cmd/exs-node cobra root command (banner + persistent
// flags + versioned subcommands).
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════════════════════╗
║                  biomine — bio-guided PoW                  ║
║            bio-compute-steered Bitcoin mining engine        ║
║                      version %s                          ║
╚═══════════════════════════════════════════════════════════╝
`
)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// Exit codes per the CLI surface's documented contract.
const (
	exitSuccess       = 0
	exitExhausted     = 1
	exitConfigError   = 2
	exitBioError      = 3
	exitIOError       = 4
)

var rootCmd = &cobra.Command{
	Use:     "biomine",
	Short:   "Bio-guided Bitcoin proof-of-work mining engine",
	Long:    titleStyle.Render(fmt.Sprintf(banner, version)),
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().Int("threads", 0, "mining worker count (0 = auto, logical cores - 1)")
	rootCmd.PersistentFlags().Uint32("starting-points", 1000, "number of nonce starting points per job")
	rootCmd.PersistentFlags().Uint32("window-size", 1<<22, "nonces scanned per starting point")
	rootCmd.PersistentFlags().Float64("vmax", 5.0, "stimulation safety voltage ceiling")
	rootCmd.PersistentFlags().String("mode", "simulated", "bio-compute backend: simulated|real_mea")
	rootCmd.PersistentFlags().String("model-path", "", "simulated-backend persisted model path")
	rootCmd.PersistentFlags().String("transport", "tcp", "real_mea transport: serial|tcp|udp|shared_memory|named_pipe|hdf5")
	rootCmd.PersistentFlags().String("device-path", "", "real_mea serial/HDF5 device or file path")
	rootCmd.PersistentFlags().String("network-host", "127.0.0.1", "real_mea tcp/udp host")
	rootCmd.PersistentFlags().Uint32("network-port", 9444, "real_mea tcp/udp port")

	rootCmd.AddCommand(mineCmd, trainCmd, calibrateCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}
