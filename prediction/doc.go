// Package prediction is a tick-synchronous client-side prediction and
// server-reconciliation engine.
//
// Every peer registers the same entities with a Manager and calls Tick at a
// fixed rate. The server simulates authoritatively with the inputs its
// clients sent and returns a delta frame per client per tick. Clients
// simulate ahead with their own input, and when a frame arrives they roll
// their entities back to the server's state, re-simulate the verified tick
// and replay the ticks they had predicted since. Spawns and despawns go
// through the Hierarchy so that they roll back too.
//
// Entity behaviors are plain values wrapped by NewEntity, NewInputEntity or
// NewStateless; optional hooks are discovered through the capability
// interfaces declared in entity.go.
package prediction
