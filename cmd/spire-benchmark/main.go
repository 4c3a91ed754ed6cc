// Command spire-benchmark runs ITRC-Client as a synthetic load
// generator: it periodically sends a BENCHMARK ping through the
// current control-center replica set and measures the round-trip
// latency of each verified TC_FINAL reply, printing a latency
// histogram at the end of the run.
package main

import (
	"fmt"
	"os"

	"github.com/spire-resilient-systems/itrc/cmd/spire-benchmark/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
