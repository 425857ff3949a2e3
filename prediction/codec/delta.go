package codec

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

var ErrMissingBaseline = errors.New("codec: missing baseline")

// baselineWindow is the number of ticks a frame stays usable as a
// baseline. Readers keep that many decoded frames, and writers drop a
// recipient's baseline once it falls that far behind the frame being
// written, so a frame is never diffed against one the reader has evicted.
const baselineWindow = 64

type encodings map[Key][]byte

type recipient struct {
	baselineTick uint64
	baseline     encodings
	writingTick  uint64
	pending      map[uint64]encodings
	lastSent     encodings
}

// Delta is the per-session delta codec. The writing side tracks, for every
// recipient, the encodings it sent in each frame and promotes a frame to the
// recipient's baseline once the recipient acknowledges it. The reading side
// keeps the encodings of recent frames so that "unchanged" flags can be
// resolved against whichever baseline the writer used.
//
// Methods are safe for concurrent use; Ack is typically called from network
// goroutines while frames are written on the tick goroutine.
type Delta struct {
	mu         sync.Mutex
	recipients map[uint32]*recipient

	received      map[uint64]encodings
	receivedOrder []uint64
	reading       encodings
	readingBase   encodings
	readingTick   uint64

	senders map[uint32]encodings
}

func NewDelta() *Delta {
	return &Delta{
		recipients: make(map[uint32]*recipient),
		received:   make(map[uint64]encodings),
		senders:    make(map[uint32]encodings),
	}
}

func (d *Delta) recipient(target uint32) *recipient {
	r, ok := d.recipients[target]
	if !ok {
		r = &recipient{pending: make(map[uint64]encodings), lastSent: make(encodings)}
		d.recipients[target] = r
	}
	return r
}

// BeginFrame starts writing the frame for tick to target and returns the
// tick of the baseline the frame is diffed against, 0 meaning none. A
// baseline older than the reader's retention is dropped.
func (d *Delta) BeginFrame(target uint32, tick uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.recipient(target)
	if r.baselineTick != 0 && tick >= r.baselineTick+baselineWindow {
		r.baseline = nil
		r.baselineTick = 0
	}
	r.writingTick = tick
	r.pending[tick] = make(encodings)
	if len(r.pending) > baselineWindow {
		oldest := tick
		for t := range r.pending {
			if t < oldest {
				oldest = t
			}
		}
		delete(r.pending, oldest)
	}
	return r.baselineTick
}

// WriteReliable writes a changed flag and, when value differs from target's
// acknowledged baseline, its encoding. It reports whether value changed.
func (d *Delta) WriteReliable(p *Packer, target uint32, key Key, value any) (bool, error) {
	enc, err := Marshal(value)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.recipient(target)
	if frame, ok := r.pending[r.writingTick]; ok {
		frame[key] = enc
	}

	prev, ok := r.baseline[key]
	changed := !ok || !bytes.Equal(prev, enc)
	p.WriteBool(changed)
	if changed {
		p.WriteBytes(enc)
	}
	return changed, nil
}

// Ack promotes the frame target received at tick to its baseline. Acks for
// unknown or older frames are ignored.
func (d *Delta) Ack(target uint32, tick uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.recipients[target]
	if !ok || tick <= r.baselineTick {
		return
	}
	frame, ok := r.pending[tick]
	if !ok {
		return
	}
	r.baseline = frame
	r.baselineTick = tick
	for t := range r.pending {
		if t <= tick {
			delete(r.pending, t)
		}
	}
}

// ResetRecipient drops target's baseline so its next frame is written in
// full.
func (d *Delta) ResetRecipient(target uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.recipients[target]; ok {
		r.baseline = nil
		r.baselineTick = 0
		clear(r.pending)
	}
}

// RemoveRecipient forgets everything about target.
func (d *Delta) RemoveRecipient(target uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recipients, target)
	delete(d.senders, target)
}

// BeginRead starts decoding the frame for tick written against baseline.
func (d *Delta) BeginRead(tick, baseline uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readingBase = nil
	if baseline != 0 {
		base, ok := d.received[baseline]
		if !ok {
			return fmt.Errorf("frame %d against %d: %w", tick, baseline, ErrMissingBaseline)
		}
		d.readingBase = base
	}
	d.reading = make(encodings)
	d.readingTick = tick
	return nil
}

// ReadReliable reads a value written by WriteReliable into out, which must
// be a pointer to a zero value.
func (d *Delta) ReadReliable(p *Packer, key Key, out any) error {
	changed, err := p.ReadBool()
	if err != nil {
		return err
	}

	var enc []byte
	if changed {
		b, err := p.ReadBytes()
		if err != nil {
			return err
		}
		enc = bytes.Clone(b)
	} else {
		d.mu.Lock()
		prev, ok := d.readingBase[key]
		d.mu.Unlock()
		if !ok {
			return fmt.Errorf("key %#x: %w", uint32(key), ErrMissingBaseline)
		}
		enc = prev
	}

	d.mu.Lock()
	if d.reading != nil {
		d.reading[key] = enc
	}
	d.mu.Unlock()

	return Unmarshal(enc, out)
}

// EndRead commits the frame being read so later frames may use it as their
// baseline.
func (d *Delta) EndRead() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reading == nil {
		return
	}
	if _, exists := d.received[d.readingTick]; !exists {
		d.receivedOrder = append(d.receivedOrder, d.readingTick)
	}
	d.received[d.readingTick] = d.reading
	for len(d.receivedOrder) > baselineWindow {
		delete(d.received, d.receivedOrder[0])
		d.receivedOrder = d.receivedOrder[1:]
	}
	d.reading = nil
	d.readingBase = nil
}

// AbortRead discards the frame being read.
func (d *Delta) AbortRead() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reading = nil
	d.readingBase = nil
}

// Write is the unreliable variant of WriteReliable. The payload is always
// included so a lost packet never leaves the reader without a base; the
// result still reports whether value changed since the last write to target.
func (d *Delta) Write(p *Packer, target uint32, key Key, value any) (bool, error) {
	enc, err := Marshal(value)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	r := d.recipient(target)
	prev, ok := r.lastSent[key]
	changed := !ok || !bytes.Equal(prev, enc)
	r.lastSent[key] = enc
	d.mu.Unlock()

	p.WriteBool(true)
	p.WriteBytes(enc)
	return changed, nil
}

// Read is the unreliable variant of ReadReliable. An omitted payload falls
// back to the last value received from sender for key.
func (d *Delta) Read(p *Packer, sender uint32, key Key, out any) error {
	present, err := p.ReadBool()
	if err != nil {
		return err
	}

	d.mu.Lock()
	last, ok := d.senders[sender]
	if !ok {
		last = make(encodings)
		d.senders[sender] = last
	}
	d.mu.Unlock()

	var enc []byte
	if present {
		b, err := p.ReadBytes()
		if err != nil {
			return err
		}
		enc = bytes.Clone(b)
		d.mu.Lock()
		last[key] = enc
		d.mu.Unlock()
	} else {
		d.mu.Lock()
		enc, ok = last[key]
		d.mu.Unlock()
		if !ok {
			return fmt.Errorf("sender %d key %#x: %w", sender, uint32(key), ErrMissingBaseline)
		}
	}
	return Unmarshal(enc, out)
}
