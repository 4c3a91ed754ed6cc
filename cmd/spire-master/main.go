// Command spire-master runs one replica's ITRC-Master and ITRC-Inject
// tasks: the exclusive owner of replicated SCADA state, which also
// collects threshold-signature shares into TC_FINAL replies, and the
// task that feeds client traffic into the local Prime replica. It runs
// no ITRC-Client.
package main

import (
	"fmt"
	"os"

	"github.com/spire-resilient-systems/itrc/cmd/spire-master/commands"
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
