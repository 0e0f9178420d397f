package rdp

import "fmt"

// This file implements the thin TPKT/X.224 wrapper that every slow-path
// frame carries beneath the MCS header, and the fast-path/slow-path
// discriminator that depends on it.
//
// TPKT's version octet (always 3, binary 0b11) and a fast-path header's
// action field (0 or 1, per spec.md §4.5) occupy the same leading byte of
// every frame the transport delivers — there is no separate marker. A peer
// can only be told apart by that byte's low two bits: 0b11 means TPKT (and
// therefore a slow-path MCS frame follows), anything else means fast-path.
// This is why RDPPacketHeaderMax (the MCS layer alone, grounded on
// original_source/libfreerdp-core/rdp.c) does not include these
// TPKTHeaderLength bytes: the original implementation parses them in a
// distinct tpkt.c, one layer below rdp.c, and this file plays that same
// role.
const (
	tpktVersion          = 3
	x224DataHeaderLength = 3 // length indicator, code, eot
	x224CodeData         = 0xF0
	x224EOT              = 0x80
)

// isFastPathFrame reports whether the leading byte identifies a fast-path
// frame rather than a TPKT-wrapped slow-path frame. TPKT's version octet
// is always 3; a fast-path action field (0 or 1) never collides with that
// value, so the check is an exclusion rather than a match against a single
// fast-path constant.
func isFastPathFrame(b0 uint8) bool {
	return b0&0x03 != tpktVersion
}

// readTPKTX224Header validates and strips the 7-byte TPKT+X.224 data TPDU
// header, returning the TPKT-declared total frame length.
func readTPKTX224Header(p *BytePacker) (uint16, error) {
	version, err := p.ReadU8()
	if err != nil || version != tpktVersion {
		return 0, fmt.Errorf("rdp: tpkt version: %w", ErrFrameMalformed)
	}
	p.Seek(1) // reserved
	length, err := p.ReadU16BE()
	if err != nil {
		return 0, fmt.Errorf("rdp: tpkt length: %w", ErrFrameMalformed)
	}

	p.Seek(1) // X.224 length indicator, not needed once parsed
	code, err := p.ReadU8()
	if err != nil || code != x224CodeData {
		return 0, fmt.Errorf("rdp: x224 data tpdu code: %w", ErrFrameMalformed)
	}
	p.Seek(1) // eot

	return length, nil
}

// writeTPKTX224Header writes the 7-byte TPKT+X.224 data TPDU header.
// totalLength is the complete frame length, TPKT header included.
func writeTPKTX224Header(p *BytePacker, totalLength uint16) {
	p.WriteU8(tpktVersion)
	p.WriteU8(0) // reserved
	p.WriteU16BE(totalLength)
	p.WriteU8(x224DataHeaderLength - 1) // length indicator excludes itself
	p.WriteU8(x224CodeData)
	p.WriteU8(x224EOT)
}
