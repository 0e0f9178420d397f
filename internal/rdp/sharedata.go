package rdp

import (
	"encoding/binary"
	"fmt"
)

// This file implements the Share Data Header (spec.md §4.4) and the Data
// PDU router (spec.md §4.8): the 12-byte header nested inside a
// PDUTypeData Share Control PDU, and dispatch by pduType2 to per-kind
// handlers.

// writeShareDataHeader writes the fixed 12-byte header. length is the
// uncompressedLength field (the back-filled total from this header to the
// end of the PDU, spec.md §4.9); compressedType/compressedLength describe
// the body that follows and are 0 for an uncompressed send (the core never
// originates compressed output, spec.md §4.6).
func writeShareDataHeader(p *BytePacker, shareID uint32, streamID uint8, length uint16, pduType2 uint8, compressedType uint8, compressedLength uint16) {
	p.WriteU32LE(shareID)
	p.WriteU8(0) // pad1
	p.WriteU8(streamID)
	p.WriteU16LE(length)
	p.WriteU8(pduType2)
	p.WriteU8(compressedType)
	p.WriteU16LE(compressedLength)
}

// readShareDataHeader decodes the 12-byte header.
func readShareDataHeader(p *BytePacker) (shareID uint32, streamID uint8, length uint16, pduType2 uint8, compressedType uint8, compressedLength uint16, err error) {
	if p.Remaining() < ShareDataHeaderLength {
		return 0, 0, 0, 0, 0, 0, fmt.Errorf("rdp: share data header: %w", ErrShortRead)
	}
	shareID, _ = p.ReadU32LE()
	p.Seek(1) // pad1
	streamID, _ = p.ReadU8()
	length, _ = p.ReadU16LE()
	pduType2, _ = p.ReadU8()
	compressedType, _ = p.ReadU8()
	compressedLength, _ = p.ReadU16LE()
	return shareID, streamID, length, pduType2, compressedType, compressedLength, nil
}

// Control PDU action codes (spec.md §4.8), carried in the first two bytes
// of a PDUType2Control body.
const (
	ctrlActionRequestControl = 1
	ctrlActionGrantedControl = 2
	ctrlActionDetach         = 3
	ctrlActionCooperate      = 4
)

// ShareDataHandlers holds the per-kind Data PDU callbacks a client wires up
// (spec.md §4.8). Every field is optional: a nil handler means the PDU is
// accepted and silently dropped, matching the original implementation's
// permissive default-case handling of Data PDU kinds it does not act on.
type ShareDataHandlers struct {
	OnUpdate          func(data []byte) error
	OnControl         func(data []byte) error
	OnPointer         func(data []byte) error
	OnSynchronize     func(data []byte) error
	OnPlaySound       func(data []byte) error
	OnSaveSessionInfo func(data []byte) error
	OnFontMap         func(data []byte) error
	OnSetErrorInfo    func(errorInfo uint32) error
}

// dispatchDataPDU routes a decoded Data PDU body to its handler (spec.md
// §4.8), and updates the FINALIZATION-phase tracking bits (spec.md §4.10)
// when a finalization-sequence PDU arrives.
func (s *Session) dispatchDataPDU(pduType2 uint8, data []byte) error {
	s.Recorder.OnPDURecv(pduType2, len(data))

	switch pduType2 {
	case PDUType2Update:
		if s.Data.OnUpdate != nil {
			return s.Data.OnUpdate(data)
		}
	case PDUType2Control:
		s.trackControlFinalize(data)
		if s.Data.OnControl != nil {
			return s.Data.OnControl(data)
		}
	case PDUType2Pointer:
		if s.Data.OnPointer != nil {
			return s.Data.OnPointer(data)
		}
	case PDUType2Synchronize:
		s.finalizeSCPDUs |= finalizeSynchronize
		s.maybeActivate()
		if s.Data.OnSynchronize != nil {
			return s.Data.OnSynchronize(data)
		}
	case PDUType2PlaySound:
		if s.Data.OnPlaySound != nil {
			return s.Data.OnPlaySound(data)
		}
	case PDUType2SaveSessionInfo:
		if s.Data.OnSaveSessionInfo != nil {
			return s.Data.OnSaveSessionInfo(data)
		}
	case PDUType2FontMap:
		s.finalizeSCPDUs |= finalizeFontMap
		s.maybeActivate()
		if s.Data.OnFontMap != nil {
			return s.Data.OnFontMap(data)
		}
	case PDUType2SetErrorInfo:
		if len(data) >= 4 {
			s.errorInfo = binary.LittleEndian.Uint32(data[:4])
		}
		if s.Data.OnSetErrorInfo != nil {
			return s.Data.OnSetErrorInfo(s.errorInfo)
		}
	default:
		// Unrecognized Data PDU kinds are accepted and ignored, matching
		// the original implementation's default-case behavior.
	}
	return nil
}

// trackControlFinalize inspects a Control PDU's action code and sets the
// corresponding finalization bit (spec.md §4.10).
func (s *Session) trackControlFinalize(data []byte) {
	if len(data) < 2 {
		return
	}
	action := binary.LittleEndian.Uint16(data[:2])
	switch action {
	case ctrlActionCooperate:
		s.finalizeSCPDUs |= finalizeControlCooperate
	case ctrlActionGrantedControl:
		s.finalizeSCPDUs |= finalizeControlGranted
	}
}

// maybeActivate transitions FINALIZATION -> ACTIVE once every expected
// finalization-sequence PDU has been observed (spec.md §4.10).
func (s *Session) maybeActivate() {
	if s.phase == PhaseFinalization && s.finalizeSCPDUs == finalizeSCComplete {
		s.setPhase(PhaseActive)
	}
}
