package main

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neurascale/neural-engine/pkg/api"
)

func newLedgerCommand(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the Neural Ledger's hash chain",
	}
	cmd.AddCommand(newLedgerVerifyCommand(root), newLedgerDumpCommand(root))
	return cmd
}

// newLedgerVerifyCommand implements "ledger verify --from --to"
// (spec.md §6), exiting 2 when the API reports an integrity violation.
func newLedgerVerifyCommand(root *rootParams) *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the hash chain over a sequence range and check it is intact",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.LedgerVerifyResponse
			path := "/v1/ledger/verify" + seqRangeQuery(from, to)
			if err := root.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first sequence number to verify (inclusive)")
	cmd.Flags().Uint64Var(&to, "to", 0, "last sequence number to verify (inclusive); 0 means the chain's current tip")
	return cmd
}

// newLedgerDumpCommand implements "ledger dump <range>" (spec.md §6),
// where range is "from:to" (e.g. "100:200").
func newLedgerDumpCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <from:to>",
		Short: "Print every ledger event in a sequence range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseSeqRange(args[0])
			if err != nil {
				return err
			}

			var resp api.LedgerDumpResponse
			path := "/v1/ledger/dump" + seqRangeQuery(from, to)
			if derr := root.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); derr != nil {
				return derr
			}
			return printJSON(cmd, resp)
		},
	}
}

// parseSeqRange parses "from:to", e.g. "0:1000".
func parseSeqRange(raw string) (from, to uint64, err error) {
	var sep int = -1
	for i, r := range raw {
		if r == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return 0, 0, userError("range %q must be formatted \"from:to\"", raw)
	}
	from, ferr := strconv.ParseUint(raw[:sep], 10, 64)
	if ferr != nil {
		return 0, 0, userError("invalid range start %q: %w", raw[:sep], ferr)
	}
	to, terr := strconv.ParseUint(raw[sep+1:], 10, 64)
	if terr != nil {
		return 0, 0, userError("invalid range end %q: %w", raw[sep+1:], terr)
	}
	return from, to, nil
}
