package prediction

// shouldFire decides whether a gameplay side effect for an entity owned by
// owner runs in the current tick: always on the server, on the owning client
// only the first time the tick is simulated, and elsewhere only once the
// tick is verified.
func shouldFire(ctx Context, owner PlayerID) bool {
	if ctx.IsServer() {
		return true
	}
	if ctx.IsLocalOwner(owner) {
		return !ctx.IsReplaying()
	}
	return ctx.IsVerified()
}

// Event is a replay-aware notification owned by an entity. Invoking it from
// Simulate is safe: listeners run at most once per tick per peer.
type Event[T any] struct {
	owner     Entity
	listeners []func(ctx Context, v T)
}

func NewEvent[T any](owner Entity) *Event[T] {
	return &Event[T]{owner: owner}
}

func (e *Event[T]) AddListener(fn func(ctx Context, v T)) {
	e.listeners = append(e.listeners, fn)
}

// Invoke runs the listeners if the tick in ctx allows side effects.
func (e *Event[T]) Invoke(ctx Context, v T) bool {
	if !shouldFire(ctx, e.owner.Owner()) {
		return false
	}
	for _, fn := range e.listeners {
		fn(ctx, v)
	}
	return true
}
