package prediction

// Context is the view of the tick scheduler handed to entity hooks.
type Context interface {
	// CurrentTick returns the tick being simulated or replayed.
	CurrentTick() uint64
	// Delta returns the simulation step in seconds, time scale applied.
	Delta() float64
	IsServer() bool
	IsClient() bool
	IsSimulating() bool
	IsReplaying() bool
	IsVerified() bool
	// LocalPlayer returns this peer's player id, NoPlayer on a dedicated
	// server.
	LocalPlayer() PlayerID
	// IsLocalOwner reports whether entities owned by owner are driven by
	// this peer's input.
	IsLocalOwner(owner PlayerID) bool

	Hierarchy() *Hierarchy
	Players() *Players
	Time() *Time
	Events() *PhysicsEvents
}
