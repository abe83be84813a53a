// cmd/corebusctl/main.go
// Entrypoint for the corebusctl operator CLI. Kept tiny: all logic lives
// in root.go and the per-operation subcommand files.
package main

func main() {
	Execute()
}
