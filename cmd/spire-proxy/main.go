// Command spire-proxy runs ITRC-Client for a field-protocol proxy
// process: it fans a set of emulated RTUs' updates out to the current
// control-center replica set and routes verified TC_FINAL replies back
// to whichever RTU they are addressed to. Translating those updates to
// and from Modbus/DNP3 on the wire is out of scope; spire-proxy exposes
// only the per-RTU local IPC channel a protocol gateway would bridge.
package main

import (
	"fmt"
	"os"

	"github.com/spire-resilient-systems/itrc/cmd/spire-proxy/commands"
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
