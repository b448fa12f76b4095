// Command neuralctl is the operator CLI for a running Neural Engine
// deployment (spec.md §6's CLI surface): replaying recorded data,
// verifying and dumping the ledger's hash chain, listing and scanning
// for devices, and starting/ending recording sessions.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}
