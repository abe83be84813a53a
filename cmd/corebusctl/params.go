// cmd/corebusctl/params.go
// Shared JSON-argument parsing for the call/notify/subscribe subcommands.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/edgerun/ipcbus/internal/gobj"
)

// parseParams decodes an optional trailing JSON-object argument into a
// gobj.Object. An empty argument is treated as an empty object, so
// operations with no parameters can omit the argument entirely.
func parseParams(raw string) (gobj.Object, error) {
	if raw == "" {
		return gobj.Map(), nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return gobj.Object{}, fmt.Errorf("invalid JSON params: %w", err)
	}
	return gobj.FromJSON(v), nil
}

func printObject(o gobj.Object) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(gobj.ToJSON(o))
}
