package rdp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortRead indicates a typed read did not find enough remaining bytes.
// Reads that return this error leave the packer's cursor unmoved.
var ErrShortRead = errors.New("rdp: short read")

// BytePacker is a cursor-based reader/writer over a bounded mutable buffer.
// It performs no allocation on the hot path: Data is caller-owned, and every
// typed read/write operates directly on it.
//
// Invariant: 0 <= pos <= len(Data). Typed reads fail without side effects
// when fewer than sizeof(T) bytes remain between pos and len(Data).
type BytePacker struct {
	// Data is the backing buffer. Writers must pre-size it; BytePacker never
	// grows it (that is the SendPipeline's job via reservation).
	Data []byte
	pos  int
}

// NewBytePacker wraps buf for reading and writing starting at offset 0.
func NewBytePacker(buf []byte) *BytePacker {
	return &BytePacker{Data: buf}
}

// Reset rebinds the packer to buf and resets the cursor to 0.
func (p *BytePacker) Reset(buf []byte) {
	p.Data = buf
	p.pos = 0
}

// Len reports the logical length of the buffer (its write bound), not the
// cursor position.
func (p *BytePacker) Len() int { return len(p.Data) }

// Remaining reports the number of unread/unwritten bytes ahead of the cursor.
func (p *BytePacker) Remaining() int { return len(p.Data) - p.pos }

// Mark returns the current cursor position, for later use with SetPosition
// or to compute a span length.
func (p *BytePacker) Mark() int { return p.pos }

// Position returns the current cursor offset from the base of Data.
// This is the BytePacker contract's "length()" (= cursor - base), since
// Data already starts at the base.
func (p *BytePacker) Position() int { return p.pos }

// SetPosition moves the cursor to an absolute offset. It does not validate
// against Len(); callers that seek past the end will fail on the next typed
// read, as specified.
func (p *BytePacker) SetPosition(n int) { p.pos = n }

// Seek advances the cursor by n bytes (negative n rewinds). It does not
// validate bounds; callers seeking a read PDU back to a recorded mark rely on
// this being unchecked, matching the C implementation's stream_seek.
func (p *BytePacker) Seek(n int) { p.pos += n }

// Bytes returns the full backing slice.
func (p *BytePacker) Bytes() []byte { return p.Data }

// Tail returns the unread/unwritten slice ahead of the cursor.
func (p *BytePacker) Tail() []byte { return p.Data[p.pos:] }

func (p *BytePacker) need(n int) error {
	if p.Remaining() < n {
		return fmt.Errorf("rdp: need %d bytes, have %d: %w", n, p.Remaining(), ErrShortRead)
	}
	return nil
}

// ReadU8 reads one byte.
func (p *BytePacker) ReadU8() (uint8, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.Data[p.pos]
	p.pos++
	return v, nil
}

// ReadU16LE reads a little-endian 16-bit value.
func (p *BytePacker) ReadU16LE() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(p.Data[p.pos:])
	p.pos += 2
	return v, nil
}

// ReadU16BE reads a big-endian 16-bit value.
func (p *BytePacker) ReadU16BE() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(p.Data[p.pos:])
	p.pos += 2
	return v, nil
}

// ReadU32LE reads a little-endian 32-bit value.
func (p *BytePacker) ReadU32LE() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(p.Data[p.pos:])
	p.pos += 4
	return v, nil
}

// ReadBytes reads n raw bytes and returns a slice aliasing Data.
func (p *BytePacker) ReadBytes(n int) ([]byte, error) {
	if err := p.need(n); err != nil {
		return nil, err
	}
	b := p.Data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// WriteU8 writes one byte.
func (p *BytePacker) WriteU8(v uint8) {
	p.Data[p.pos] = v
	p.pos++
}

// WriteU16LE writes a little-endian 16-bit value.
func (p *BytePacker) WriteU16LE(v uint16) {
	binary.LittleEndian.PutUint16(p.Data[p.pos:], v)
	p.pos += 2
}

// WriteU16BE writes a big-endian 16-bit value.
func (p *BytePacker) WriteU16BE(v uint16) {
	binary.BigEndian.PutUint16(p.Data[p.pos:], v)
	p.pos += 2
}

// WriteU32LE writes a little-endian 32-bit value.
func (p *BytePacker) WriteU32LE(v uint32) {
	binary.LittleEndian.PutUint32(p.Data[p.pos:], v)
	p.pos += 4
}

// WriteBytes copies b into the buffer at the cursor and advances past it.
func (p *BytePacker) WriteBytes(b []byte) {
	n := copy(p.Data[p.pos:], b)
	p.pos += n
}

// WriteZero writes n zero bytes.
func (p *BytePacker) WriteZero(n int) {
	for i := 0; i < n; i++ {
		p.Data[p.pos+i] = 0
	}
	p.pos += n
}
