// Package main implements the bpf-verify CLI (bpfv).
// It verifies programs written in the textual assembler and inspects their
// control-flow graphs.
package main

import (
	"os"

	"github.com/l3aro/bpf-verify/cmd/bpfv/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`bpfv version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
