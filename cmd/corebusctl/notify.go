// cmd/corebusctl/notify.go
// Implements `corebusctl notify <interface> <method> [json-params]`, a
// fire-and-forget request over internal/corebus/client.Notify.
package main

import (
	"github.com/spf13/cobra"

	"github.com/edgerun/ipcbus/internal/corebus/client"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <interface> <method> [json-params]",
		Short: "Send a fire-and-forget request",
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
			return client.Notify(socketDir, args[0], args[1], params)
		},
	}
	return cmd
}
