package prediction

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/automoto/rewind/prediction/codec"
	"github.com/automoto/rewind/shared/messages"
)

// Payload layout shared by frames and full syncs: two length-prefixed
// sections, the first holding entities written before Simulate and the
// second the event handlers written after it. Each section is a sequence of
// entries (object id, component id, length-prefixed body), so an entry the
// reader cannot decode is skipped without losing the rest.

type entry struct {
	id   ComponentID
	body []byte
}

func (e entry) packer() *codec.Packer { return codec.NewPacker(e.body) }

type parsedFrame struct {
	pre  []entry
	post []entry
}

func writeEntry(p *codec.Packer, id ComponentID, body []byte) {
	p.WriteUvarint(uint64(id.Object))
	p.WriteUvarint(uint64(id.Component))
	p.WriteBytes(body)
}

func parseEntries(data []byte) ([]entry, error) {
	p := codec.NewPacker(data)
	var entries []entry
	for p.Remaining() > 0 {
		obj, err := p.ReadUvarint()
		if err != nil {
			return nil, err
		}
		comp, err := p.ReadUvarint()
		if err != nil {
			return nil, err
		}
		body, err := p.ReadBytes()
		if err != nil {
			return nil, err
		}
		if obj > uint64(^ObjectID(0)) || comp > uint64(^uint32(0)) {
			return nil, fmt.Errorf("entry id %d:%d out of range", obj, comp)
		}
		entries = append(entries, entry{
			id:   ComponentID{Object: ObjectID(obj), Component: uint32(comp)},
			body: body,
		})
	}
	return entries, nil
}

func parseFrame(payload []byte) (parsedFrame, error) {
	p := codec.NewPacker(payload)
	pre, err := p.ReadBytes()
	if err != nil {
		return parsedFrame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	post, err := p.ReadBytes()
	if err != nil {
		return parsedFrame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if p.Remaining() != 0 {
		return parsedFrame{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, p.Remaining())
	}

	var f parsedFrame
	if f.pre, err = parseEntries(pre); err != nil {
		return parsedFrame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.post, err = parseEntries(post); err != nil {
		return parsedFrame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return f, nil
}

func joinSections(pre, post []byte) []byte {
	var p codec.Packer
	p.WriteBytes(pre)
	p.WriteBytes(post)
	return p.Bytes()
}

func newInputFrame(tick, ack uint64, payload []byte) messages.InputFrame {
	return messages.InputFrame{
		ClientTick:    tick,
		AckServerTick: ack,
		Payload:       bytes.Clone(payload),
	}
}

// writeEntity appends e's state and its input for tick to section.
func (m *Manager) writeEntity(section *codec.Packer, e Entity, target PlayerID, tick uint64) {
	if !e.HasState() {
		return
	}
	m.scratch.Reset()
	if _, err := e.writeState(target, &m.scratch); err != nil {
		m.log.Warn("state not encoded", "entity", e.ID(), "tick", tick, "err", err)
		return
	}
	if err := e.writeInput(tick, target, &m.scratch, true); err != nil {
		m.log.Warn("input not encoded", "entity", e.ID(), "tick", tick, "err", err)
		return
	}
	writeEntry(section, e.ID(), m.scratch.Bytes())
}

// beginFrames opens every client's frame for tick and writes the entities
// whose state must be captured before they simulate.
func (m *Manager) beginFrames(tick uint64) {
	interval := uint64(max(m.cfg.FullResyncInterval, 0))
	for _, id := range m.observerOrder {
		o := m.observers[id]
		if interval > 0 && tick-o.lastResync >= interval {
			m.codec.ResetRecipient(uint32(id))
			o.lastResync = tick
		}
		o.baseline = m.codec.BeginFrame(uint32(id), tick)
		o.pre.Reset()
		o.post.Reset()
		for _, e := range m.entities {
			if e != nil && !e.isEventHandler() {
				m.writeEntity(&o.pre, e, id, tick)
			}
		}
	}
}

// finishFrames writes the event handlers and sends every client its frame.
func (m *Manager) finishFrames(tick uint64) {
	for _, id := range m.observerOrder {
		o := m.observers[id]
		for _, e := range m.entities {
			if e != nil && e.isEventHandler() {
				m.writeEntity(&o.post, e, id, tick)
			}
		}

		var clientTick uint64
		if o.consuming {
			if frame, ok := o.queue.Pop(); ok {
				clientTick = frame.ClientTick
			}
		}

		msg := messages.DeltaFrame{
			ServerTick:   tick,
			ClientTick:   clientTick,
			BaselineTick: o.baseline,
			Payload:      joinSections(o.pre.Bytes(), o.post.Bytes()),
		}
		if m.transport == nil {
			continue
		}
		if err := m.transport.SendFrame(id, msg); err != nil {
			m.log.Warn("frame not sent", "player", id, "tick", tick, "err", err)
			continue
		}
		m.metrics.AddBytes(DirectionSent, len(msg.Payload))
	}
}

// sendFullSync writes every entity for the last completed tick and sends it
// reliably. The sync becomes the client's baseline right away.
func (m *Manager) sendFullSync(o *observer) {
	tick := m.localTick - 1
	m.codec.ResetRecipient(uint32(o.id))
	m.codec.BeginFrame(uint32(o.id), tick)

	var pre, post codec.Packer
	for _, e := range m.entities {
		if e == nil {
			continue
		}
		if e.isEventHandler() {
			m.writeEntity(&post, e, o.id, tick)
		} else {
			m.writeEntity(&pre, e, o.id, tick)
		}
	}
	m.codec.Ack(uint32(o.id), tick)
	o.lastResync = tick

	msg := messages.FullSync{
		TickRate:   m.cfg.TickRate,
		ServerTick: tick,
		Payload:    joinSections(pre.Bytes(), post.Bytes()),
	}
	if m.transport == nil {
		return
	}
	if err := m.transport.SendFullSync(o.id, msg); err != nil {
		m.log.Warn("full sync not sent", "player", o.id, "tick", tick, "err", err)
		return
	}
	m.metrics.AddBytes(DirectionSent, len(msg.Payload))
}

// readEntries decodes the states of a section into history at stateTick and
// the inputs at inputTick, rolling each entity back to stateTick. Entries
// are applied in order so objects spawned by the hierarchy entry exist by
// the time their own entries are read.
func (m *Manager) readEntries(entries []entry, stateTick, inputTick uint64) {
	for _, en := range entries {
		e, ok := m.byID[en.id]
		if !ok {
			m.log.Debug("frame entry for unknown entity", "entity", en.id, "tick", stateTick)
			continue
		}
		body := en.packer()
		err := e.readState(stateTick, body)
		switch {
		case errors.Is(err, ErrDesync):
			// The entity keeps its current state.
			m.diagnose(Diagnostic{Kind: DiagDesync, Tick: stateTick, Entity: en.id, Err: err})
		case err != nil:
			m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: stateTick, Entity: en.id, Err: err})
			continue
		default:
			if err := e.rollback(stateTick); err != nil {
				m.diagnose(Diagnostic{Kind: DiagDesync, Tick: stateTick, Entity: en.id, Err: err})
			}
		}
		if err := e.readInput(inputTick, NoPlayer, body, true); err != nil {
			m.diagnose(Diagnostic{Kind: DiagMalformedFrame, Tick: inputTick, Entity: en.id, Err: err})
		}
	}
}
