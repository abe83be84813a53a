// cmd/corebusctl/version.go
// Implements the `corebusctl version` sub-command, printing build metadata
// injected via pkg/version. Supports an optional --json flag for machine
// consumption.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgerun/ipcbus/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print corebusctl version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				ver, commit, date := version.Components()
				payload := map[string]string{
					"version": ver,
					"commit":  commit,
					"date":    date,
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}

			fmt.Println(version.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "print version information as JSON")
	return cmd
}
