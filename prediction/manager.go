package prediction

import (
	"fmt"
	"slices"
	"sync"

	"github.com/automoto/rewind/logging"
	"github.com/automoto/rewind/prediction/codec"
	"github.com/automoto/rewind/prediction/inputqueue"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/shared/protocol"
)

// Role selects which halves of the protocol a Manager runs.
type Role uint8

const (
	RoleServer Role = 1 << iota
	RoleClient

	// RoleHost is a server that also renders for a local player.
	RoleHost = RoleServer | RoleClient
)

// Config holds the tuning knobs of a Manager. Zero fields take the values
// of DefaultConfig.
type Config struct {
	TickRate       int
	HistorySeconds int

	// MinInputs and MaxInputs are the watermarks of every remote input
	// queue on the server.
	MinInputs int
	MaxInputs int

	// RepeatFactor scales how long a stale remote input is extrapolated.
	RepeatFactor float64

	// FullResyncInterval is the number of ticks after which a client's
	// delta baseline is dropped and the next frame is written in full.
	// Negative disables periodic resync.
	FullResyncInterval int

	// MTU is the input frame size above which inputs go over the reliable
	// channel.
	MTU int

	// PoolGraceTicks is how long despawned instances stay pooled.
	PoolGraceTicks int

	// InterpolationDepth is the number of view samples buffered before
	// playback starts.
	InterpolationDepth int
}

func DefaultConfig() Config {
	return Config{
		TickRate:           30,
		HistorySeconds:     5,
		MinInputs:          1,
		MaxInputs:          4,
		RepeatFactor:       0.8,
		FullResyncInterval: 300,
		MTU:                protocol.DefaultMTU,
		PoolGraceTicks:     60,
		InterpolationDepth: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.HistorySeconds <= 0 {
		c.HistorySeconds = d.HistorySeconds
	}
	if c.MinInputs <= 0 {
		c.MinInputs = d.MinInputs
	}
	if c.MaxInputs < c.MinInputs {
		c.MaxInputs = max(d.MaxInputs, c.MinInputs)
	}
	if c.RepeatFactor == 0 {
		c.RepeatFactor = d.RepeatFactor
	}
	if c.FullResyncInterval == 0 {
		c.FullResyncInterval = 10 * c.TickRate
	}
	if c.MTU <= 0 {
		c.MTU = d.MTU
	}
	if c.PoolGraceTicks <= 0 {
		c.PoolGraceTicks = 2 * c.TickRate
	}
	if c.InterpolationDepth <= 0 {
		c.InterpolationDepth = max(c.TickRate/10, 2)
	}
	return c
}

// Transport carries frames between the manager and its peers. Send methods
// are called from the tick goroutine and must not block on the network.
type Transport interface {
	SendFullSync(target PlayerID, msg messages.FullSync) error
	SendFrame(target PlayerID, msg messages.DeltaFrame) error
	SendInput(msg messages.InputFrame, reliable bool) error
}

// PhysicsStep is the external integrator shared by all entities.
type PhysicsStep interface {
	Simulate(delta float64)
	SyncTransforms()
}

// Dependencies are the collaborators of a Manager. All are optional except
// Transport for networked roles.
type Dependencies struct {
	Transport Transport
	Physics   PhysicsStep
	Directory ObjectDirectory
	Logger    logging.Logger
	Metrics   Metrics
}

type observer struct {
	id         PlayerID
	queue      *inputqueue.Queue[messages.InputFrame]
	consuming  bool
	lastResync uint64
	baseline   uint64
	pre        codec.Packer
	post       codec.Packer
}

type inboundInput struct {
	from  PlayerID
	frame messages.InputFrame
}

type inbox struct {
	mu        sync.Mutex
	inputs    []inboundInput
	frames    []messages.DeltaFrame
	fullSyncs []messages.FullSync
	joins     []PlayerID
	leaves    []PlayerID
}

// Manager is the tick scheduler of one simulation instance. It owns every
// registered entity, the built-in systems and the per-client server state.
// Tick, UpdateView and every entity hook run on one goroutine; the Handle*
// and observer methods may be called from any goroutine.
type Manager struct {
	cfg       Config
	isServer  bool
	isClient  bool
	tickDelta float64

	localPlayer PlayerID

	transport Transport
	physics   PhysicsStep
	directory ObjectDirectory
	log       logging.Logger
	metrics   Metrics
	codec     *codec.Delta

	// OnDiagnostic, when set, receives every absorbed failure.
	OnDiagnostic func(Diagnostic)

	entities []Entity
	byID     map[ComponentID]Entity
	objects  map[ObjectID][]Entity

	hierarchy *Hierarchy
	time      *Time
	players   *Players
	events    *PhysicsEvents

	localTick          uint64
	localTickInContext uint64
	lastVerifiedTick   uint64
	simulating         bool
	replaying          bool
	verified           bool

	observers     map[PlayerID]*observer
	observerOrder []PlayerID

	lastAppliedServerTick uint64
	frames                []messages.DeltaFrame
	fullSyncs             []messages.FullSync

	in      inbox
	scratch codec.Packer
	input   codec.Packer
}

// NewManager creates a manager and registers the built-in systems on
// SystemsObject.
func NewManager(cfg Config, role Role, deps Dependencies) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:              cfg,
		isServer:         role&RoleServer != 0,
		isClient:         role&RoleClient != 0,
		tickDelta:        1 / float64(cfg.TickRate),
		transport:        deps.Transport,
		physics:          deps.Physics,
		directory:        deps.Directory,
		log:              logging.OrNop(deps.Logger),
		metrics:          orNopMetrics(deps.Metrics),
		codec:            codec.NewDelta(),
		byID:             make(map[ComponentID]Entity),
		objects:          make(map[ObjectID][]Entity),
		observers:        make(map[PlayerID]*observer),
		localTick:        1,
		lastVerifiedTick: 1,
	}

	m.hierarchy = newHierarchy(m)
	m.time = newTime()
	m.players = newPlayers(m)
	m.events = newPhysicsEvents(m)
	if err := m.registerObject(SystemsObject, NoPlayer, []Entity{
		m.hierarchy.entity,
		m.time.entity,
		m.players.entity,
		m.events.entity,
	}); err != nil {
		panic(err)
	}
	return m
}

// SetLocalPlayer sets the player whose input this peer captures.
func (m *Manager) SetLocalPlayer(id PlayerID) { m.localPlayer = id }

// SetTransport replaces the transport, for transports that need the manager
// to exist before they are built.
func (m *Manager) SetTransport(t Transport) { m.transport = t }

func (m *Manager) Config() Config                { return m.cfg }
func (m *Manager) Codec() *codec.Delta           { return m.codec }
func (m *Manager) Logger() logging.Logger        { return m.log }
func (m *Manager) Directory() ObjectDirectory    { return m.directory }
func (m *Manager) TickRate() int                 { return m.cfg.TickRate }
func (m *Manager) TickDelta() float64            { return m.tickDelta }
func (m *Manager) LocalTick() uint64             { return m.localTick }
func (m *Manager) LocalTickInContext() uint64    { return m.localTickInContext }
func (m *Manager) LastVerifiedTick() uint64      { return m.lastVerifiedTick }
func (m *Manager) LastAppliedServerTick() uint64 { return m.lastAppliedServerTick }
func (m *Manager) IsVerifiedAndReplaying() bool  { return m.verified && m.replaying }

// Context implementation.

func (m *Manager) CurrentTick() uint64              { return m.localTickInContext }
func (m *Manager) IsServer() bool                   { return m.isServer }
func (m *Manager) IsClient() bool                   { return m.isClient }
func (m *Manager) IsSimulating() bool               { return m.simulating }
func (m *Manager) IsReplaying() bool                { return m.replaying }
func (m *Manager) IsVerified() bool                 { return m.verified }
func (m *Manager) LocalPlayer() PlayerID            { return m.localPlayer }
func (m *Manager) Hierarchy() *Hierarchy            { return m.hierarchy }
func (m *Manager) Players() *Players                { return m.players }
func (m *Manager) Time() *Time                      { return m.time }
func (m *Manager) Events() *PhysicsEvents           { return m.events }
func (m *Manager) IsLocalOwner(owner PlayerID) bool { return m.isController(owner) }

// Delta returns the tick delta scaled by the Time system.
func (m *Manager) Delta() float64 {
	return m.tickDelta * m.time.Scale()
}

// isController reports whether this peer supplies input for entities owned
// by owner: the owner itself, or the server for unowned entities.
func (m *Manager) isController(owner PlayerID) bool {
	if owner != NoPlayer {
		return owner == m.localPlayer
	}
	return m.isServer
}

func (m *Manager) historyCapacity() int {
	return m.cfg.TickRate * m.cfg.HistorySeconds
}

func (m *Manager) interpolationDepth() int {
	return m.cfg.InterpolationDepth
}

// Entity returns the registered entity with id.
func (m *Manager) Entity(id ComponentID) (Entity, bool) {
	e, ok := m.byID[id]
	return e, ok
}

// Object returns the entities of obj in component order.
func (m *Manager) Object(obj ObjectID) []Entity {
	return m.objects[obj]
}

// EntityCount returns the number of registered entities.
func (m *Manager) EntityCount() int {
	return len(m.byID)
}

// RegisterObject registers the components of a statically created object.
// Its id must be identical on every peer and must not be reused by the
// hierarchy, which skips ids that are already registered.
func (m *Manager) RegisterObject(obj ObjectID, owner PlayerID, components ...Entity) error {
	if obj == SystemsObject {
		return fmt.Errorf("object %d is reserved: %w", obj, ErrDuplicateEntity)
	}
	return m.registerObject(obj, owner, components)
}

// UnregisterObject tears down and removes the components of obj. It must not
// be called from inside Simulate.
func (m *Manager) UnregisterObject(obj ObjectID) error {
	if _, ok := m.objects[obj]; !ok {
		return fmt.Errorf("object %d: %w", obj, ErrUnknownEntity)
	}
	m.unregisterObject(obj)
	return nil
}

func (m *Manager) registerObject(obj ObjectID, owner PlayerID, components []Entity) error {
	if _, ok := m.objects[obj]; ok {
		return fmt.Errorf("object %d: %w", obj, ErrDuplicateEntity)
	}
	for i, e := range components {
		id := ComponentID{Object: obj, Component: uint32(i)}
		e.setup(m, id, owner)
		m.byID[id] = e
		m.entities = append(m.entities, e)
	}
	m.objects[obj] = slices.Clone(components)
	return nil
}

// unregisterObject leaves nil tombstones in the entity list so indices held
// by an in-progress simulation loop stay valid; compact removes them.
func (m *Manager) unregisterObject(obj ObjectID) {
	components, ok := m.objects[obj]
	if !ok {
		return
	}
	delete(m.objects, obj)
	for _, e := range components {
		delete(m.byID, e.ID())
		e.teardown()
		for i, other := range m.entities {
			if other == e {
				m.entities[i] = nil
				break
			}
		}
	}
}

func (m *Manager) compact() {
	m.entities = slices.DeleteFunc(m.entities, func(e Entity) bool { return e == nil })
}

// objectOwner returns the owner of obj's first component.
func (m *Manager) objectOwner(obj ObjectID) PlayerID {
	components := m.objects[obj]
	if len(components) == 0 {
		return NoPlayer
	}
	return components[0].Owner()
}

// SetOwner transfers obj to owner. Ownership is part of every entity's
// full state, so the change rolls back with it.
func (m *Manager) SetOwner(obj ObjectID, owner PlayerID) error {
	if !m.simulating {
		return ErrNotSimulating
	}
	components, ok := m.objects[obj]
	if !ok {
		return fmt.Errorf("object %d: %w", obj, ErrUnknownEntity)
	}
	for _, e := range components {
		e.setOwner(owner)
	}
	return nil
}

// AddObserver queues a newly connected client. On the next tick it gets an
// input queue and a full sync.
func (m *Manager) AddObserver(player PlayerID) {
	m.in.mu.Lock()
	m.in.joins = append(m.in.joins, player)
	m.in.mu.Unlock()
}

// RemoveObserver queues the removal of a disconnected client.
func (m *Manager) RemoveObserver(player PlayerID) {
	m.in.mu.Lock()
	m.in.leaves = append(m.in.leaves, player)
	m.in.mu.Unlock()
}

// Observers returns the connected clients in ascending id order.
func (m *Manager) Observers() []PlayerID {
	return slices.Clone(m.observerOrder)
}

// HandleInput queues an input frame received from a client.
func (m *Manager) HandleInput(from PlayerID, frame messages.InputFrame) {
	m.metrics.AddBytes(DirectionReceived, len(frame.Payload))
	m.in.mu.Lock()
	m.in.inputs = append(m.in.inputs, inboundInput{from: from, frame: frame})
	m.in.mu.Unlock()
}

// HandleFrame queues a delta frame received from the server.
func (m *Manager) HandleFrame(frame messages.DeltaFrame) {
	m.metrics.AddBytes(DirectionReceived, len(frame.Payload))
	m.in.mu.Lock()
	m.in.frames = append(m.in.frames, frame)
	m.in.mu.Unlock()
}

// HandleFullSync queues a full sync received from the server.
func (m *Manager) HandleFullSync(msg messages.FullSync) {
	m.metrics.AddBytes(DirectionReceived, len(msg.Payload))
	m.in.mu.Lock()
	m.in.fullSyncs = append(m.in.fullSyncs, msg)
	m.in.mu.Unlock()
}

func (m *Manager) drainInbox() {
	m.in.mu.Lock()
	joins, leaves := m.in.joins, m.in.leaves
	inputs := m.in.inputs
	frames, fullSyncs := m.in.frames, m.in.fullSyncs
	m.in.joins, m.in.leaves, m.in.inputs = nil, nil, nil
	m.in.frames, m.in.fullSyncs = nil, nil
	m.in.mu.Unlock()

	if m.isServer {
		for _, id := range leaves {
			m.dropObserver(id)
		}
		for _, id := range joins {
			m.addObserver(id)
		}
		for _, in := range inputs {
			o, ok := m.observers[in.from]
			if !ok {
				continue
			}
			m.codec.Ack(uint32(in.from), in.frame.AckServerTick)
			if dropped := o.queue.Push(in.frame); dropped > 0 {
				m.log.Debug("dropped surplus inputs", "player", in.from, "count", dropped)
			}
		}
	}
	if m.isClient && !m.isServer {
		m.frames = append(m.frames, frames...)
		m.fullSyncs = append(m.fullSyncs, fullSyncs...)
	}
}

func (m *Manager) addObserver(id PlayerID) {
	if _, ok := m.observers[id]; ok {
		return
	}
	o := &observer{
		id:    id,
		queue: inputqueue.New[messages.InputFrame](m.cfg.MinInputs, m.cfg.MaxInputs),
	}
	m.observers[id] = o
	i, _ := slices.BinarySearch(m.observerOrder, id)
	m.observerOrder = slices.Insert(m.observerOrder, i, id)
	m.log.Info("observer joined", "player", id, "tick", m.localTick)
	m.sendFullSync(o)
}

func (m *Manager) dropObserver(id PlayerID) {
	if _, ok := m.observers[id]; !ok {
		return
	}
	delete(m.observers, id)
	if i, found := slices.BinarySearch(m.observerOrder, id); found {
		m.observerOrder = slices.Delete(m.observerOrder, i, i+1)
	}
	m.codec.RemoveRecipient(uint32(id))
	m.log.Info("observer left", "player", id, "tick", m.localTick)
}

func (m *Manager) diagnose(d Diagnostic) {
	switch d.Kind {
	case DiagStarvedInput:
		m.log.Debug("input starved", "player", d.Player, "tick", d.Tick)
	case DiagSpawnMismatch:
		m.log.Error("spawn mismatch", "tick", d.Tick, "entity", d.Entity, "err", d.Err)
	default:
		m.log.Warn(d.Kind.String(), "tick", d.Tick, "entity", d.Entity, "player", d.Player, "err", d.Err)
	}
	m.metrics.CountDiagnostic(d.Kind)
	if m.OnDiagnostic != nil {
		m.OnDiagnostic(d)
	}
}

// Close unregisters every object and empties the spawn pool. The manager
// must not be used afterwards.
func (m *Manager) Close() {
	m.hierarchy.close()
	for obj := range m.objects {
		if obj != SystemsObject {
			m.unregisterObject(obj)
		}
	}
	m.unregisterObject(SystemsObject)
	m.compact()
	for _, id := range slices.Clone(m.observerOrder) {
		m.dropObserver(id)
	}
}
