// cmd/corebusctl/list.go
// Implements `corebusctl list-interfaces`, enumerating the Unix domain
// sockets currently listening in the configured socket directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-interfaces",
		Short: "List core-bus interfaces currently listening",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(socketDir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				info, err := e.Info()
				if err != nil || info.Mode().Type() != os.ModeSocket {
					continue
				}
				fmt.Println(e.Name())
			}
			return nil
		},
	}
	return cmd
}
