// Package commands implements the spire-proxy CLI.
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
	Use:   "spire-proxy",
	Short: "ITRC-Client proxy: fans RTU updates into the replica set and routes back TC_FINAL replies",
	Long: `spire-proxy runs ITRC-Client on behalf of a set of field-protocol
gateways: it signs and fans each RTU's update out to the current
control-center replica set, verifies inbound TC_FINAL replies, and
routes each one to the RTU it is addressed to over a local IPC channel.

Use "spire-proxy proxy <subscriber_id> <spines_addr:port> <num_rtus>"
to start a proxy.`,
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
	rootCmd.AddCommand(proxyCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
