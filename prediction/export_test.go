package prediction

// ReplayFrom rolls every entity back to tick and re-simulates up to the
// last simulated tick.
func (m *Manager) ReplayFrom(tick uint64) error {
	m.simulating, m.replaying = true, true
	defer func() {
		m.simulating, m.replaying = false, false
		m.localTickInContext = m.localTick
	}()

	m.localTickInContext = tick
	for _, e := range m.entities {
		if err := e.rollback(tick); err != nil {
			return err
		}
	}
	m.syncTransforms()
	for t := tick + 1; t < m.localTick; t++ {
		m.localTickInContext = t
		m.runSimulation(m.Delta())
		m.snapshot(t)
	}
	return nil
}

func (h *Hierarchy) Apply(target []SpawnRecord) { h.apply(target) }

func (p *Predicted[I, S]) RecordInput(tick uint64, in I) { p.inputs.Write(tick, in) }

var ShouldFire = shouldFire
