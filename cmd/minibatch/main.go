// Package main is the entry point for the minibatch CLI.
//
// Usage:
//
//	minibatch [flags] <command> [args]
//
// Commands:
//
//	gen        - Synthesize a demo corpus (archives, labels, manifest)
//	inspect    - Build a corpus catalog and print its statistics
//	batches    - Drive the randomized source and summarize the batches
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/minibatch/cmd/minibatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
