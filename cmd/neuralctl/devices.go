package main

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neurascale/neural-engine/pkg/api"
)

func newDevicesCommand(root *rootParams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and discover neural acquisition devices",
	}
	cmd.AddCommand(newDevicesListCommand(root), newDevicesScanCommand(root))
	return cmd
}

// newDevicesListCommand implements "devices list" (spec.md §6).
func newDevicesListCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every device registered with the device manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp []api.DeviceResponse
			if err := root.client().do(cmd.Context(), http.MethodGet, "/v1/devices", nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

// newDevicesScanCommand implements "devices scan" (spec.md §6), calling
// GET /v1/devices/discover.
func newDevicesScanCommand(root *rootParams) *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan every configured discovery backend for reachable devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/devices/discover"
			if timeoutSec > 0 {
				path += "?timeout=" + strconv.Itoa(timeoutSec)
			}
			var resp []api.DiscoveredDeviceResponse
			if err := root.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "scan timeout in seconds (defaults to the server's own default)")
	return cmd
}
