package main

import (
	"github.com/spf13/cobra"
)

// rootParams holds the persistent flags every subcommand reads (spec.md
// §6's CLI surface), grounded on the CLIParams-plus-MakeCommand shape
// the pack's one cobra precedent uses.
type rootParams struct {
	addr  string
	token string
}

func newRootCommand() *cobra.Command {
	params := &rootParams{}

	root := &cobra.Command{
		Use:           "neuralctl",
		Short:         "Operate a Neural Engine deployment from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&params.addr, "addr", "http://localhost:8080", "control-plane API base URL")
	root.PersistentFlags().StringVar(&params.token, "token", "", "bearer token for authenticated requests")

	root.AddCommand(
		newIngestCommand(params),
		newLedgerCommand(params),
		newDevicesCommand(params),
		newSessionCommand(params),
	)

	return root
}

func (p *rootParams) client() *client {
	return newClient(p.addr, p.token)
}
