package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/neurascale/neural-engine/pkg/api"
	ledgerclient "github.com/neurascale/neural-engine/pkg/datastorage/client"
)

func newSessionCommand(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, end, and inspect recording sessions",
	}
	cmd.AddCommand(newSessionStartCommand(root), newSessionEndCommand(root), newSessionGetCommand(root))
	return cmd
}

// newSessionGetCommand implements "session get", reusing
// pkg/datastorage/client.LedgerClient rather than root.client()'s
// generic do(): it is the one neuralctl query this package's response
// shape was built for (GET /v1/sessions/{id}), including its own
// absence-is-not-an-error (404 → nil, nil) convention.
func newSessionGetCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Fetch the current recording session by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lc := ledgerclient.NewLedgerClient(ledgerclient.Config{BaseURL: root.addr, Token: root.token})
			session, err := lc.GetSessionByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if session == nil {
				return userError("neuralctl: session %q not found", args[0])
			}
			return printJSON(cmd, session)
		},
	}
}

// newSessionStartCommand implements "session start" (spec.md §6).
func newSessionStartCommand(root *rootParams) *cobra.Command {
	var paradigm, userID string
	var devices []string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SessionStartRequest{Paradigm: paradigm, Devices: devices, UserID: userID}
			var resp api.SessionStartResponse
			if err := root.client().do(cmd.Context(), http.MethodPost, "/v1/session/start", &req, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&paradigm, "paradigm", "", "experiment paradigm label recorded on session_created")
	cmd.Flags().StringVar(&userID, "user", "", "subject/user id, anonymized before it reaches the ledger")
	cmd.Flags().StringSliceVar(&devices, "device", nil, "device id to associate with the session (repeatable)")
	return cmd
}

// newSessionEndCommand implements "session end" (spec.md §6).
func newSessionEndCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a recording session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.SessionEndRequest{SessionID: args[0]}
			var resp struct {
				SessionID string `json:"session_id"`
			}
			if err := root.client().do(cmd.Context(), http.MethodPost, "/v1/session/end", &req, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}
