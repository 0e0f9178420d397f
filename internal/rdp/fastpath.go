package rdp

import "fmt"

// This file implements the Fast-Path framer (spec.md §4.5): the
// alternative, shorter framing used once the connection is ACTIVE, in place
// of the TPKT/MCS/Share Control stack. A fast-path frame is distinguished
// from a TPKT frame by its first byte: TPKT always starts with version 3
// (binary 0b11) in its low two bits, while a fast-path header's action
// field never takes that value (0 for FASTPATH_ACTION_FASTPATH, 1 for the
// legacy FASTPATH_ACTION_X224 passthrough). isFastPathFrame in tpkt.go
// holds the actual discriminator, since it must agree with tpkt.go's own
// parsing of the alternative it rules out.

// fastPathLength reads the 1-or-2-byte length field: high bit of the first
// byte set means a second byte follows, and the 15-bit value is big-endian
// (spec.md §4.5). The returned length is the total PDU length, header bytes
// included.
func fastPathLength(p *BytePacker) (uint16, error) {
	b0, err := p.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("rdp: fast-path length: %w", ErrFrameMalformed)
	}
	if b0&fastPathLengthContinuation == 0 {
		return uint16(b0), nil
	}
	b1, err := p.ReadU8()
	if err != nil {
		return 0, fmt.Errorf("rdp: fast-path length: %w", ErrFrameMalformed)
	}
	return uint16(b0&^uint8(fastPathLengthContinuation))<<8 | uint16(b1), nil
}

// writeFastPathLength always emits the long form for uniform back-fill
// arithmetic, mirroring perWriteLength's choice at the MCS layer.
func writeFastPathLength(p *BytePacker, length uint16) {
	p.WriteU8(uint8(length>>8) | fastPathLengthContinuation)
	p.WriteU8(uint8(length))
}

// readFastPathFrame decodes one fast-path PDU starting at p's current
// position (the header byte itself must still be unread). It handles the
// encrypted/secure-checksum flag bits by delegating to the same
// SecurityContext primitives the slow path uses, synthesizing the
// equivalent SecEncrypt/SecSecureChecksum flags (spec.md §4.5). On success
// it returns the decrypted payload as a view into p's buffer.
func (s *Session) readFastPathFrame(p *BytePacker) ([]byte, error) {
	frameStart := p.Position()

	header, err := p.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("rdp: fast-path header: %w", ErrFrameMalformed)
	}
	flags := header &^ fastPathActionMask

	length, err := fastPathLength(p)
	if err != nil {
		return nil, err
	}
	frameEnd := frameStart + int(length)
	if frameEnd > p.Len() {
		return nil, fmt.Errorf("rdp: fast-path length %d exceeds buffer: %w", length, ErrFrameMalformed)
	}

	secFlags := uint16(0)
	if flags&fastPathOutputEncrypted != 0 {
		secFlags |= SecEncrypt
	}
	if flags&fastPathOutputSecureChecksum != 0 {
		secFlags |= SecSecureChecksum
	}

	bodyStart := p.Position()
	body := p.Data[bodyStart:frameEnd]

	if secFlags&SecEncrypt == 0 {
		p.SetPosition(frameEnd)
		return body, nil
	}

	if s.Settings.EncryptionMethod == EncryptionMethodFIPS {
		plain, err := s.decryptFIPSBody(body)
		if err != nil {
			return nil, err
		}
		p.SetPosition(frameEnd)
		return plain, nil
	}

	if len(body) < secMACLength {
		return nil, fmt.Errorf("rdp: fast-path mac: %w", ErrShortRead)
	}
	var mac [8]byte
	copy(mac[:], body[:secMACLength])
	payload := body[secMACLength:]

	ok, err := s.Security.decryptLegacy(mac, payload, secFlags&SecSecureChecksum != 0)
	if err != nil {
		return nil, fmt.Errorf("rdp: fast-path decrypt: %w", ErrFrameMalformed)
	}
	if !ok {
		s.Recorder.OnMACMismatch()
		if !s.Security.AllowInsecureLegacyMAC {
			return nil, fmt.Errorf("rdp: fast-path mac mismatch: %w", ErrLegacyMACMismatch)
		}
	}

	p.SetPosition(frameEnd)
	return payload, nil
}
