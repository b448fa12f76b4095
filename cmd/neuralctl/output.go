package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// printJSON writes v to the command's stdout as indented JSON, the
// format every neuralctl subcommand uses for its successful output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return userError("encode output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(append(encoded, '\n'))
	return err
}
