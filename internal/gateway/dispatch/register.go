package dispatch

// RegisterAll wires the full six-operation table (spec §4.14) into a fresh
// Dispatcher.
func RegisterAll(d *Dispatcher) {
	RegisterMQTT(d)
	RegisterPubSub(d)
	RegisterConfig(d)
}
