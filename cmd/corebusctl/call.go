// cmd/corebusctl/call.go
// Implements `corebusctl call <interface> <method> [json-params]`, a thin
// wrapper over internal/corebus/client.Call for manual operator use.
package main

import (
	"github.com/spf13/cobra"

	"github.com/edgerun/ipcbus/internal/corebus/client"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <interface> <method> [json-params]",
		Short: "Send a unary request and print the response",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 3 {
				raw = args[2]
			}
			params, err := parseParams(raw)
			if err != nil {
				return err
			}
			resp, err := client.Call(socketDir, args[0], args[1], params)
			if err != nil {
				return err
			}
			return printObject(resp)
		},
	}
	return cmd
}
