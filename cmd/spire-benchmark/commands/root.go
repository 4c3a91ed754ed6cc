// Package commands implements the spire-benchmark CLI.
package commands

import "github.com/spf13/cobra"

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "spire-benchmark",
	Short: "ITRC-Client load generator: measures replay-channel round-trip latency",
	Long: `spire-benchmark runs ITRC-Client as a synthetic client: it signs and
fans a BENCHMARK ping out to the current control-center replica set on
a fixed period, verifies each inbound TC_FINAL reply, and tabulates the
round-trip latency into a histogram printed at the end of the run.

Use "spire-benchmark benchmark <client_id> <spines_addr:port> <poll_usec> <num_polls>"
to start a run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to
// happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/spire-itrc/config.yaml)")
	rootCmd.AddCommand(benchmarkCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
