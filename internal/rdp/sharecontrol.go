package rdp

import "fmt"

// This file implements the Share Control Header (spec.md §4.4): the 6-byte
// header that precedes every slow-path Share Control PDU inside the MCS
// user-data payload.

// writeShareControlHeader writes the 6-byte header. length is the total
// byte count from this header to the end of the PDU, already computed by
// the caller via the back-fill design (spec.md §4.9). pduType's low nibble
// is OR'd with shareControlWireBit on the wire (spec.md §4.4).
func writeShareControlHeader(p *BytePacker, length uint16, pduType ShareControlType, pduSource uint16) {
	p.WriteU16LE(length)
	p.WriteU16LE(uint16(pduType)&shareControlTypeMask | shareControlWireBit)
	p.WriteU16LE(pduSource)
}

// readShareControlHeader decodes the header. Windows XP is known to emit a
// short (4-byte) DEACTIVATE_ALL PDU that omits pduSource entirely; per
// spec.md §4.4 this is tolerated by treating pduSource as 0 whenever
// length <= 4.
func readShareControlHeader(p *BytePacker) (length uint16, pduType ShareControlType, pduSource uint16, err error) {
	length, err = p.ReadU16LE()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("rdp: share control length: %w", ErrFrameMalformed)
	}
	if int(length)-2 > p.Remaining() {
		return 0, 0, 0, fmt.Errorf("rdp: share control length %d exceeds remaining %d: %w",
			length, p.Remaining(), ErrFrameMalformed)
	}

	typeField, err := p.ReadU16LE()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("rdp: share control type: %w", ErrFrameMalformed)
	}
	pduType = ShareControlType(typeField & shareControlTypeMask)

	if length > 4 {
		pduSource, err = p.ReadU16LE()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("rdp: share control pdu source: %w", ErrFrameMalformed)
		}
	}

	return length, pduType, pduSource, nil
}
