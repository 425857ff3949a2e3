package prediction

import "github.com/go-gl/mathgl/mgl64"

// Contact is a collision reported by the physics step. Normal points from A
// toward B.
type Contact struct {
	A, B   ObjectID
	Normal mgl64.Vec3
}

func (c Contact) swapped() Contact {
	return Contact{A: c.B, B: c.A, Normal: c.Normal.Mul(-1)}
}

// PhysicsEvents collects contacts during the physics step and delivers them
// to the objects involved in PostSimulate, gated like Event.
type PhysicsEvents struct {
	m         *Manager
	entity    *Predicted[NoInput, NoState]
	pending   []Contact
	listeners map[ObjectID][]func(ctx Context, c Contact)
}

func newPhysicsEvents(m *Manager) *PhysicsEvents {
	e := &PhysicsEvents{m: m, listeners: make(map[ObjectID][]func(Context, Contact))}
	e.entity = NewStateless(e)
	return e
}

// Record queues a contact for this tick.
func (e *PhysicsEvents) Record(c Contact) {
	e.pending = append(e.pending, c)
}

// Subscribe delivers contacts involving obj to fn, with obj as Contact.A.
func (e *PhysicsEvents) Subscribe(obj ObjectID, fn func(ctx Context, c Contact)) {
	e.listeners[obj] = append(e.listeners[obj], fn)
}

// Unsubscribe drops every listener of obj.
func (e *PhysicsEvents) Unsubscribe(obj ObjectID) {
	delete(e.listeners, obj)
}

// Simulate discards contacts left over from a previous step.
func (e *PhysicsEvents) Simulate(Context, float64) {
	e.pending = e.pending[:0]
}

func (e *PhysicsEvents) PostSimulate(ctx Context, _ float64) {
	for _, c := range e.pending {
		e.dispatch(ctx, c)
		e.dispatch(ctx, c.swapped())
	}
	e.pending = e.pending[:0]
}

func (e *PhysicsEvents) dispatch(ctx Context, c Contact) {
	fns := e.listeners[c.A]
	if len(fns) == 0 || !shouldFire(ctx, e.m.objectOwner(c.A)) {
		return
	}
	for _, fn := range fns {
		fn(ctx, c)
	}
}
