package rdp

import "fmt"

// This file implements the ReceivePipeline (spec.md §4.7): the full decode
// chain from one transport-delivered frame down to dispatched Data PDUs.
// ReceiveFrame sees the frame exactly as it arrived on the wire — either a
// TPKT/X.224-wrapped slow-path frame or a bare fast-path frame — and
// discriminates and strips the TPKT/X.224 wrapper itself (tpkt.go), since
// that discriminator depends on the same leading byte the fast-path header
// occupies (spec.md §4.5): no lower layer can make that call without
// duplicating tpkt.go's own parsing. This mirrors
// original_source/libfreerdp-core/rdp.c's rdp_recv_tpkt_pdu, which performs
// the same check directly in the RDP-layer receive loop rather than in a
// generic transport read.

// ReceiveFrame decodes one frame delivered by the transport. It is the
// entry point dispatchActive (fsm.go) calls once the state machine reaches
// FINALIZATION/ACTIVE.
func (s *Session) ReceiveFrame(p *BytePacker) error {
	if s.disconnect {
		return ErrDisconnected
	}
	if p.Remaining() == 0 {
		return fmt.Errorf("rdp: empty frame: %w", ErrFrameMalformed)
	}

	b0 := p.Data[p.Position()]
	if isFastPathFrame(b0) {
		return s.receiveFastPath(p)
	}
	return s.receiveSlowPath(p)
}

func (s *Session) receiveFastPath(p *BytePacker) error {
	payload, err := s.readFastPathFrame(p)
	if err != nil {
		return err
	}
	s.Recorder.OnPDURecv(0, len(payload))
	if s.Data.OnUpdate != nil {
		return s.Data.OnUpdate(payload)
	}
	return nil
}

func (s *Session) receiveSlowPath(p *BytePacker) error {
	if _, err := readTPKTX224Header(p); err != nil {
		return err
	}

	length, channelID, err := s.readMCSHeader(p)
	if err != nil {
		return err
	}
	if s.disconnect {
		// readMCSHeader observed a DisconnectProviderUltimatum.
		return nil
	}
	frameEnd := p.Position() + int(length)
	if frameEnd > p.Len() {
		return fmt.Errorf("rdp: mcs frame end %d exceeds buffer: %w", frameEnd, ErrFrameMalformed)
	}

	if s.Settings.Encryption {
		secFlags, err := readSecurityHeader(p)
		if err != nil {
			return err
		}

		if secFlags&(SecEncrypt|SecRedirectionPKT) != 0 {
			if secFlags&SecEncrypt != 0 {
				cipherStart := p.Position()
				if s.Settings.EncryptionMethod == EncryptionMethodFIPS {
					plain, err := s.decryptFIPSBody(p.Data[cipherStart:frameEnd])
					if err != nil {
						return err
					}
					p.Seek(fipsHeaderLength + fipsSigLength)
					frameEnd = p.Position() + len(plain)
				} else {
					if frameEnd-cipherStart < secMACLength {
						return fmt.Errorf("rdp: security mac: %w", ErrShortRead)
					}
					var mac [8]byte
					copy(mac[:], p.Data[cipherStart:cipherStart+secMACLength])
					payload := p.Data[cipherStart+secMACLength : frameEnd]

					ok, err := s.Security.decryptLegacy(mac, payload, secFlags&SecSecureChecksum != 0)
					if err != nil {
						return fmt.Errorf("rdp: legacy decrypt: %w", ErrFrameMalformed)
					}
					if !ok {
						s.Recorder.OnMACMismatch()
						if !s.Security.AllowInsecureLegacyMAC {
							return fmt.Errorf("rdp: legacy mac mismatch: %w", ErrLegacyMACMismatch)
						}
					}
					p.Seek(secMACLength)
				}
			}

			if secFlags&SecRedirectionPKT != 0 {
				// The original implementation rewinds 2 bytes here: a
				// redirection PDU carries no Share Control Header.
				p.Seek(-2)
				if s.Redirect != nil {
					return s.Redirect.HandleRedirection(p.Data[p.Position():frameEnd])
				}
				return nil
			}
		}
	}

	if channelID != MCSGlobalChannelID {
		if s.Channels != nil {
			return s.Channels.HandleChannelData(channelID, p.Data[p.Position():frameEnd])
		}
		return nil
	}

	for frameEnd-p.Position() > 3 {
		mark := p.Position()
		scLength, pduType, pduSource, err := readShareControlHeader(p)
		if err != nil {
			return err
		}
		s.Settings.PDUSource = pduSource
		nextMark := mark + int(scLength)
		if nextMark > frameEnd || nextMark < p.Position() {
			return fmt.Errorf("rdp: share control length %d out of range: %w", scLength, ErrFrameMalformed)
		}

		switch pduType {
		case PDUTypeData:
			if err := s.receiveDataPDU(p, nextMark); err != nil {
				return err
			}
		case PDUTypeDeactivateAll:
			// The server is asking for capability renegotiation; this core
			// does not implement capability exchange (Non-goals), so it
			// only surfaces the phase regression.
			s.setPhase(PhaseCapability)
		case PDUTypeServerRedirection:
			if s.Redirect != nil {
				if err := s.Redirect.HandleRedirection(p.Data[p.Position():nextMark]); err != nil {
					return err
				}
			}
		default:
			// DemandActive/ConfirmActive belong to capability exchange,
			// out of scope; accept and skip.
		}

		p.SetPosition(nextMark)
	}

	return nil
}

// receiveDataPDU decodes the Share Data Header nested in a PDUTypeData
// Share Control PDU, decompressing the body first if PACKET_COMPRESSED is
// set (spec.md §4.6), then dispatches it by pduType2 (spec.md §4.8).
func (s *Session) receiveDataPDU(p *BytePacker, pduEnd int) error {
	_, streamID, _, pduType2, compressedType, compressedLength, err := readShareDataHeader(p)
	_ = streamID
	if err != nil {
		return err
	}

	if compressedType&packetCompressed != 0 {
		if s.Decompressor == nil {
			s.Recorder.OnDecompressFailure()
			return fmt.Errorf("rdp: received PACKET_COMPRESSED with no Decompressor configured: %w", ErrDecompressFailed)
		}
		compLen := int(compressedLength) - compressedLengthOffset
		if compLen < 0 || p.Position()+compLen > pduEnd {
			return fmt.Errorf("rdp: compressed length %d invalid: %w", compressedLength, ErrFrameMalformed)
		}
		raw := p.Data[p.Position() : p.Position()+compLen]
		offset, n, err := s.Decompressor.Decompress(raw, compressedType)
		if err != nil {
			s.Recorder.OnDecompressFailure()
			return fmt.Errorf("rdp: decompress: %w", ErrDecompressFailed)
		}
		data := s.Decompressor.History()[offset : offset+n]
		p.SetPosition(p.Position() + compLen)
		return s.dispatchDataPDU(pduType2, data)
	}

	data := p.Data[p.Position():pduEnd]
	p.SetPosition(pduEnd)
	return s.dispatchDataPDU(pduType2, data)
}
