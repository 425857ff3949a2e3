package prediction

// Tick runs one fixed step: Step followed by Reconcile.
func (m *Manager) Tick() {
	m.Step()
	m.Reconcile()
}

// Step drains the inbox and simulates the next local tick. Servers send
// their frames and clients their input as part of the step.
func (m *Manager) Step() {
	m.drainInbox()

	tick := m.localTick
	m.localTickInContext = tick
	m.simulating = true
	m.verified = m.isServer

	if m.isServer {
		m.prepareRemoteInputs(tick)
	}
	for _, e := range m.entities {
		if e != nil {
			e.prepareInput(m.isServer, m.isController(e.Owner()), tick)
		}
	}
	if m.isServer {
		m.beginFrames(tick)
	}

	m.runSimulation(m.Delta())

	if m.isServer {
		m.finishFrames(tick)
	}
	m.snapshot(tick)
	if m.isServer && m.isClient {
		m.updateViewStates(false)
	}
	if m.isClient && !m.isServer {
		m.sendInput(tick)
	}

	m.localTick++
	m.simulating = false
	m.verified = false
	m.compact()
	m.metrics.SetEntities(len(m.byID))
}

// runSimulation advances every entity, the physics world and the deferred
// event handlers by delta. Entities spawned during the loop are simulated in
// the same pass; removed ones are skipped.
func (m *Manager) runSimulation(delta float64) {
	tick := m.localTickInContext
	for i := 0; i < len(m.entities); i++ {
		if e := m.entities[i]; e != nil {
			e.simulateTick(tick, delta)
		}
	}
	if m.physics != nil {
		m.physics.Simulate(delta)
	}
	for i := 0; i < len(m.entities); i++ {
		if e := m.entities[i]; e != nil {
			e.postSimulate(tick, delta)
		}
	}
}

func (m *Manager) snapshot(tick uint64) {
	for _, e := range m.entities {
		if e != nil {
			e.pullState()
			e.saveState(tick)
		}
	}
}

func (m *Manager) syncTransforms() {
	if m.physics != nil {
		m.physics.SyncTransforms()
	}
}

func (m *Manager) recordViews() {
	for _, e := range m.entities {
		if e != nil {
			e.recordView()
		}
	}
}

func (m *Manager) updateViewStates(accumulate bool) {
	for _, e := range m.entities {
		if e != nil {
			e.updateViewState(m.tickDelta, accumulate)
		}
	}
}

// UpdateView advances every entity's interpolation by a render frame of dt
// seconds. It must be called from the goroutine that calls Tick.
func (m *Manager) UpdateView(dt float64) {
	for _, e := range m.entities {
		if e != nil {
			e.updateView(dt)
		}
	}
}

// prepareRemoteInputs routes the oldest queued input frame of every client
// to the entities it owns. The frame is popped when the tick's frames are
// sent so its client tick can be echoed back.
func (m *Manager) prepareRemoteInputs(tick uint64) {
	for _, id := range m.observerOrder {
		o := m.observers[id]
		o.consuming = o.queue.Ready()
		m.metrics.SetQueueDepth(id, o.queue.Count())
		if !o.consuming {
			m.diagnose(Diagnostic{Kind: DiagStarvedInput, Tick: tick, Player: id})
			continue
		}
		frame, _ := o.queue.Peek()
		m.routeInput(id, frame.Payload, tick)
	}
}

func (m *Manager) routeInput(sender PlayerID, payload []byte, tick uint64) {
	entries, err := parseEntries(payload)
	if err != nil {
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: tick, Player: sender, Err: err})
		return
	}
	for _, entry := range entries {
		e, ok := m.byID[entry.id]
		if !ok || e.Owner() != sender {
			continue
		}
		if err := e.queueInput(sender, entry.packer()); err != nil {
			m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: tick, Entity: entry.id, Player: sender, Err: err})
		}
	}
}

// sendInput sends the inputs this client captured for tick.
func (m *Manager) sendInput(tick uint64) {
	if m.transport == nil || m.localPlayer == NoPlayer {
		return
	}
	m.input.Reset()
	for _, e := range m.entities {
		if e == nil || !e.HasInput() || e.Owner() != m.localPlayer {
			continue
		}
		m.scratch.Reset()
		if err := e.writeInput(tick, NoPlayer, &m.scratch, false); err != nil {
			m.log.Warn("input not encoded", "entity", e.ID(), "tick", tick, "err", err)
			continue
		}
		writeEntry(&m.input, e.ID(), m.scratch.Bytes())
	}

	msg := newInputFrame(tick, m.lastAppliedServerTick, m.input.Bytes())
	reliable := len(msg.Payload) > m.cfg.MTU
	if err := m.transport.SendInput(msg, reliable); err != nil {
		m.log.Warn("input not sent", "tick", tick, "err", err)
		return
	}
	m.metrics.AddBytes(DirectionSent, len(msg.Payload))
}
