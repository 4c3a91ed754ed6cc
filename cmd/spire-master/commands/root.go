// Package commands implements the spire-master CLI.
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
	Use:   "spire-master",
	Short: "ITRC-Master: the intrusion-tolerant replication channel replica process",
	Long: `spire-master runs one replica's ITRC-Master and ITRC-Inject
tasks: the exclusive owner of replicated SCADA state, which also
collects threshold-signature shares into TC_FINAL replies, and the
task that feeds client traffic into the local Prime replica. It runs
no ITRC-Client.

Use "spire-master server <replica_id> <spines_int_addr:port> <spines_ext_addr:port>"
to start a replica.`,
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
	rootCmd.AddCommand(serverCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
