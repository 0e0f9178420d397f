package rdp

import "fmt"

// This file implements the small subset of ITU-T X.691 Packed Encoding
// Rules (PER) that the MCS framer needs: constrained 16-bit integers with an
// additive offset, generic octet-string lengths, and the one-byte enumerated
// DisconnectProviderUltimatum reason. It is not a general PER codec — the
// MCS framer uses only these shapes (spec.md §4.2).

// perWriteInteger16 writes a constrained 16-bit integer as (value - min),
// big-endian, per the MCS "initiator"/"channelId" encoding (spec.md §4.2).
func perWriteInteger16(p *BytePacker, value uint16, min uint16) {
	p.WriteU16BE(value - min)
}

// perReadInteger16 reads a constrained 16-bit integer and adds min back.
func perReadInteger16(p *BytePacker, min uint16) (uint16, error) {
	v, err := p.ReadU16BE()
	if err != nil {
		return 0, fmt.Errorf("rdp: per integer16: %w", err)
	}
	return v + min, nil
}

// perWriteLength always emits the long form: a 2-byte big-endian length with
// the high bit forced set (spec.md §4.2, §6 "MCS user-data length on emit:
// always 2 bytes, high bit set"). This sacrifices the 1-byte short form for
// lengths <= 0x7F in exchange for uniform back-fill arithmetic.
func perWriteLength(p *BytePacker, length uint16) {
	p.WriteU16BE(length | 0x8000)
}

// perReadLength decodes a generic PER length determinant: short form (high
// bit clear, value in the single byte) or long form (high bit set, 15-bit
// value spanning two bytes). Peers are not required to use the long form
// the writer always emits, so the reader must tolerate both.
func perReadLength(p *BytePacker) (uint16, error) {
	b0, err := p.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("rdp: per length: %w", err)
	}
	if b0&0x80 == 0 {
		return uint16(b0), nil
	}
	b1, err := p.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("rdp: per length: %w", err)
	}
	return uint16(b0&0x7F)<<8 | uint16(b1), nil
}

// perReadEnumerated reads a PER-encoded small enumerated value: a single
// byte holding the zero-based index, as used for the
// DisconnectProviderUltimatum reason code (spec.md §4.2).
func perReadEnumerated(p *BytePacker) (uint8, error) {
	v, err := p.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("rdp: per enumerated: %w", err)
	}
	return v, nil
}
