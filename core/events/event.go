package events

// Event is a state change published by one of the engines.
type Event interface {
	EventType() string
}

// Emitter receives engine events for downstream consumers such as the RPC
// layer, log sinks or indexers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines fall back to it when no emitter
// is configured so emission never needs a nil check at call sites.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
