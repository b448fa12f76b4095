package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurascale/neural-engine/pkg/api"
)

func newIngestCommand(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submit neural data to the ingestion service",
	}
	cmd.AddCommand(newIngestReplayCommand(root))
	return cmd
}

// newIngestReplayCommand implements "ingest replay <file>" (spec.md
// §6's CLI surface): file is a JSON-encoded IngestNeuralDataRequest,
// posted verbatim to POST /v1/ingest/neural-data.
func newIngestReplayCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a recorded neural-data chunk through the ingestion API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return userError("read %s: %w", args[0], err)
			}

			var req api.IngestNeuralDataRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return userError("parse %s as an ingest request: %w", args[0], err)
			}

			var resp api.IngestNeuralDataResponse
			if err := root.client().do(cmd.Context(), http.MethodPost, "/v1/ingest/neural-data", &req, &resp); err != nil {
				return err
			}

			return printJSON(cmd, resp)
		},
	}
}
