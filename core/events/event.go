package events

// Event is a structured record of a vault state change: a deposit, a
// redemption, a rate update or a loan lifecycle step.
type Event interface {
	EventType() string
}

// Emitter forwards vault events to downstream consumers such as the RPC
// websocket stream or an external indexer.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. The engine falls back to it when no sink
// is wired, so emitting never needs a nil check on the hot path.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
