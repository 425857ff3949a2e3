package prediction

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/automoto/rewind/shared/messages"
)

// Reconcile applies the authoritative frames received since the last call.
// For each frame the client rolls back to the tick before the one whose
// input the server consumed, re-simulates that tick as verified and finally
// replays every tick it had predicted beyond it. Without frames it only
// produces the view sample for the tick just simulated.
func (m *Manager) Reconcile() {
	m.drainInbox()
	if !m.isClient || m.isServer {
		return
	}

	for _, fs := range m.takeFullSyncs() {
		m.applyFullSync(fs)
	}

	frames := m.takeFrames()
	if len(frames) == 0 {
		m.updateViewStates(false)
		return
	}

	m.recordViews()
	m.simulating, m.replaying, m.verified = true, true, true

	applied := false
	for _, f := range frames {
		if m.applyFrame(f) {
			applied = true
		}
	}

	m.verified = false
	if applied {
		from := m.lastVerifiedTick + 1
		if m.localTick > from {
			m.metrics.ObserveReplay(m.localTick - from)
		}
		for tick := from; tick < m.localTick; tick++ {
			m.localTickInContext = tick
			m.runSimulation(m.Delta())
			m.snapshot(tick)
		}
		m.syncTransforms()
		m.updateViewStates(true)
	} else {
		m.updateViewStates(false)
	}

	m.localTickInContext = m.localTick
	m.simulating, m.replaying = false, false
	m.compact()
}

// oldestReplayableTick is the lowest verified tick whose preceding state is
// still inside the history window.
func (m *Manager) oldestReplayableTick() uint64 {
	capacity := uint64(m.historyCapacity())
	if m.localTick <= capacity {
		return 0
	}
	return m.localTick - capacity + 1
}

func (m *Manager) takeFullSyncs() []messages.FullSync {
	syncs := m.fullSyncs
	m.fullSyncs = nil
	slices.SortStableFunc(syncs, func(a, b messages.FullSync) int {
		return cmp.Compare(a.ServerTick, b.ServerTick)
	})
	return syncs
}

// takeFrames returns the pending frames newer than the last applied one in
// ascending server tick order.
func (m *Manager) takeFrames() []messages.DeltaFrame {
	frames := m.frames
	m.frames = nil
	frames = slices.DeleteFunc(frames, func(f messages.DeltaFrame) bool {
		return f.ServerTick <= m.lastAppliedServerTick
	})
	slices.SortStableFunc(frames, func(a, b messages.DeltaFrame) int {
		return cmp.Compare(a.ServerTick, b.ServerTick)
	})
	return slices.CompactFunc(frames, func(a, b messages.DeltaFrame) bool {
		return a.ServerTick == b.ServerTick
	})
}

// applyFrame rolls back to the frame's state and re-simulates its verified
// tick. It reports whether the frame was applied.
func (m *Manager) applyFrame(f messages.DeltaFrame) bool {
	if f.ServerTick <= m.lastAppliedServerTick {
		return false
	}
	parsed, err := parseFrame(f.Payload)
	if err != nil {
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: f.ServerTick, Err: err})
		return false
	}
	if f.ClientTick >= m.localTick {
		err := fmt.Errorf("%w: client tick %d not simulated yet", ErrMalformedFrame, f.ClientTick)
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: f.ServerTick, Err: err})
		return false
	}
	if err := m.codec.BeginRead(f.ServerTick, f.BaselineTick); err != nil {
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: f.ServerTick, Err: fmt.Errorf("%w: %w", ErrMalformedFrame, err)})
		return false
	}

	if f.ClientTick != 0 {
		m.lastVerifiedTick = f.ClientTick
	}
	if floor := m.oldestReplayableTick(); m.lastVerifiedTick < floor {
		err := fmt.Errorf("%w: verified tick %d, oldest replayable %d", ErrDesync, m.lastVerifiedTick, floor)
		m.diagnose(Diagnostic{Kind: DiagDesync, Tick: f.ServerTick, Err: err})
		m.lastVerifiedTick = floor
	}
	verifiedTick := m.lastVerifiedTick
	stateTick := verifiedTick - 1
	if m.localTick > verifiedTick {
		m.metrics.ObserveRollback(m.localTick - verifiedTick)
	}

	m.localTickInContext = stateTick
	m.readEntries(parsed.pre, stateTick, verifiedTick)
	m.syncTransforms()

	m.localTickInContext = verifiedTick
	m.runSimulation(m.Delta())
	m.readEntries(parsed.post, verifiedTick, verifiedTick)
	m.snapshot(verifiedTick)

	m.codec.EndRead()
	m.lastAppliedServerTick = f.ServerTick
	return true
}

// applyFullSync replaces every entity's state with the server's and resets
// interpolation. The sync is taken as the state after the last tick this
// client simulated.
func (m *Manager) applyFullSync(fs messages.FullSync) {
	if fs.ServerTick < m.lastAppliedServerTick {
		return
	}
	parsed, err := parseFrame(fs.Payload)
	if err != nil {
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: fs.ServerTick, Err: err})
		return
	}
	if err := m.codec.BeginRead(fs.ServerTick, 0); err != nil {
		m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: fs.ServerTick, Err: err})
		return
	}
	if fs.TickRate != 0 && fs.TickRate != m.cfg.TickRate {
		m.log.Warn("server tick rate differs", "server", fs.TickRate, "local", m.cfg.TickRate)
	}

	tick := m.localTick - 1
	m.simulating, m.replaying, m.verified = true, true, true
	m.localTickInContext = tick
	m.readEntries(parsed.pre, tick, tick)
	m.readEntries(parsed.post, tick, tick)
	m.syncTransforms()
	m.codec.EndRead()

	for _, e := range m.entities {
		if e != nil {
			e.resetInterpolation()
		}
	}
	m.lastVerifiedTick = m.localTick
	m.lastAppliedServerTick = fs.ServerTick
	m.simulating, m.replaying, m.verified = false, false, false
	m.localTickInContext = m.localTick
	m.log.Info("full sync applied", "server_tick", fs.ServerTick, "local_tick", tick)
}
