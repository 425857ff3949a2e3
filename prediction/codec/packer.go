// Package codec serializes predicted state for the wire. Values are encoded
// with canonical msgpack and diffed against per-recipient baselines so that
// unchanged values cost a single flag byte.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortBuffer = errors.New("codec: short buffer")

// Packer is a growable byte buffer with a read cursor.
type Packer struct {
	buf []byte
	pos int
}

// NewPacker wraps data for reading. Writes append after the existing bytes.
func NewPacker(data []byte) *Packer {
	return &Packer{buf: data}
}

// Bytes returns everything written so far.
func (p *Packer) Bytes() []byte { return p.buf }

// Len returns the number of bytes written.
func (p *Packer) Len() int { return len(p.buf) }

// Remaining returns the number of unread bytes.
func (p *Packer) Remaining() int { return len(p.buf) - p.pos }

// Reset empties the buffer, keeping its capacity.
func (p *Packer) Reset() {
	p.buf = p.buf[:0]
	p.pos = 0
}

func (p *Packer) WriteBool(v bool) {
	if v {
		p.buf = append(p.buf, 1)
		return
	}
	p.buf = append(p.buf, 0)
}

func (p *Packer) ReadBool() (bool, error) {
	if p.Remaining() < 1 {
		return false, ErrShortBuffer
	}
	b := p.buf[p.pos]
	p.pos++
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("codec: invalid bool byte %#x at %d", b, p.pos-1)
	}
}

func (p *Packer) WriteUvarint(v uint64) {
	p.buf = binary.AppendUvarint(p.buf, v)
}

func (p *Packer) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(p.buf[p.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("codec: bad uvarint at %d: %w", p.pos, ErrShortBuffer)
	}
	p.pos += n
	return v, nil
}

func (p *Packer) WriteVarint(v int64) {
	p.buf = binary.AppendVarint(p.buf, v)
}

func (p *Packer) ReadVarint() (int64, error) {
	v, n := binary.Varint(p.buf[p.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("codec: bad varint at %d: %w", p.pos, ErrShortBuffer)
	}
	p.pos += n
	return v, nil
}

// WriteBytes writes a length-prefixed byte slice.
func (p *Packer) WriteBytes(b []byte) {
	p.WriteUvarint(uint64(len(b)))
	p.buf = append(p.buf, b...)
}

// ReadBytes reads a length-prefixed byte slice. The result aliases the
// packer's buffer.
func (p *Packer) ReadBytes() ([]byte, error) {
	n, err := p.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(p.Remaining()) < n {
		return nil, fmt.Errorf("codec: %d byte payload at %d: %w", n, p.pos, ErrShortBuffer)
	}
	b := p.buf[p.pos : p.pos+int(n)]
	p.pos += int(n)
	return b, nil
}
