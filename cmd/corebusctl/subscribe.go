// cmd/corebusctl/subscribe.go
// Implements `corebusctl subscribe <interface> <method> [json-params]`,
// printing each delivered event as JSON until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgerun/ipcbus/internal/corebus/client"
	"github.com/edgerun/ipcbus/internal/gobj"
	"github.com/edgerun/ipcbus/internal/sockpool"
)

func newSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <interface> <method> [json-params]",
		Short: "Open a subscription and print events until interrupted",
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

			done := make(chan struct{})
			subs := client.NewSubscriptions(1)

			onResponse := func(_ any, _ sockpool.Handle, value gobj.Object) error {
				return printObject(value)
			}
			onClose := func(_ any, _ sockpool.Handle) {
				close(done)
			}

			if _, err := subs.Subscribe(socketDir, args[0], args[1], params, onResponse, onClose, nil); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "interrupted")
			case <-done:
				fmt.Fprintln(os.Stderr, "subscription closed by server")
			}
			return nil
		},
	}
	return cmd
}
