package rdp

import (
	"encoding/binary"
	"fmt"
)

// This file implements the SendPipeline (spec.md §4.9): three back-filled
// builders (raw MCS payload, Share Control PDU, Share Data PDU) that reserve
// header space up front and fill it in reverse order once the body is
// known, then the single security+MCS finishing step shared by all three.
// The reservation table and back-fill order are grounded on
// original_source/libfreerdp-core/rdp.c's rdp_send_stream_init /
// rdp_pdu_init / rdp_data_pdu_init / rdp_send / rdp_send_pdu /
// rdp_send_data_pdu.

// fipsPadSlack is extra trailing capacity reserved so a FIPS send can grow
// the body by up to 7 zero-padding bytes without reallocating.
const fipsPadSlack = 7

// BeginRawSend reserves the MCS header and security envelope, leaving the
// packer positioned for the caller to write a raw MCS user-data payload.
// payloadCap is a sizing hint for the underlying transport buffer.
func (s *Session) BeginRawSend(payloadCap int) *BytePacker {
	return s.beginSend(0, payloadCap)
}

// BeginPDUSend additionally reserves the Share Control Header.
func (s *Session) BeginPDUSend(payloadCap int) *BytePacker {
	return s.beginSend(ShareControlHeaderLength, payloadCap)
}

// BeginDataPDUSend additionally reserves the Share Control Header and the
// nested Share Data Header.
func (s *Session) BeginDataPDUSend(payloadCap int) *BytePacker {
	return s.beginSend(ShareControlHeaderLength+ShareDataHeaderLength, payloadCap)
}

func (s *Session) beginSend(headerExtra int, payloadCap int) *BytePacker {
	minCap := FrameHeaderMax + s.pendingSecBytes() + headerExtra + payloadCap + fipsPadSlack
	p := s.Transport.SendStreamInit(minCap)
	p.Seek(FrameHeaderMax)
	s.securityStreamInit(p)
	p.Seek(headerExtra)
	return p
}

// FinishRawSend back-fills the security envelope and MCS header around the
// raw payload the caller wrote after BeginRawSend, then hands the frame to
// the transport.
func (s *Session) FinishRawSend(p *BytePacker, channelID uint16) (int, error) {
	return s.finishSecurityAndMCS(p, p.Position(), channelID)
}

// FinishPDUSend back-fills the Share Control Header, then the security
// envelope and MCS header, around the payload the caller wrote after
// BeginPDUSend.
func (s *Session) FinishPDUSend(p *BytePacker, pduType ShareControlType, channelID uint16) (int, error) {
	bodyEnd := p.Position()
	secBytes := secReservedBytes(s.secFlags, s.Settings.EncryptionMethod)
	shareControlStart := FrameHeaderMax + secBytes

	p.SetPosition(shareControlStart)
	writeShareControlHeader(p, uint16(bodyEnd-shareControlStart), pduType, s.Settings.PDUSource)
	p.SetPosition(bodyEnd)

	return s.finishSecurityAndMCS(p, bodyEnd, channelID)
}

// FinishDataPDUSend back-fills the Share Data Header, the Share Control
// Header (always PDUTypeData), the security envelope, and the MCS header,
// around the payload the caller wrote after BeginDataPDUSend.
func (s *Session) FinishDataPDUSend(p *BytePacker, pduType2 uint8, streamID uint8, channelID uint16) (int, error) {
	bodyEnd := p.Position()
	secBytes := secReservedBytes(s.secFlags, s.Settings.EncryptionMethod)
	shareControlStart := FrameHeaderMax + secBytes
	shareDataStart := shareControlStart + ShareControlHeaderLength

	p.SetPosition(shareDataStart)
	writeShareDataHeader(p, s.Settings.ShareID, streamID, uint16(bodyEnd-shareDataStart), pduType2, 0, 0)

	p.SetPosition(shareControlStart)
	writeShareControlHeader(p, uint16(bodyEnd-shareControlStart), PDUTypeData, s.Settings.PDUSource)
	p.SetPosition(bodyEnd)

	return s.finishSecurityAndMCS(p, bodyEnd, channelID)
}

// finishSecurityAndMCS signs/encrypts the reserved security envelope (if
// any flags are staged) and writes the outermost MCS header, then submits
// the frame to the transport and clears the sticky secFlags bag (spec.md
// §4.3/§9: every successful send consumes it).
func (s *Session) finishSecurityAndMCS(p *BytePacker, bodyEnd int, channelID uint16) (int, error) {
	secFlags := s.secFlags
	finalEnd := bodyEnd

	if secFlags != 0 {
		secBytes := secReservedBytes(secFlags, s.Settings.EncryptionMethod)
		secStart := FrameHeaderMax
		cipherStart := secStart + secBytes

		p.SetPosition(secStart)
		writeSecurityHeader(p, secFlags)

		if secFlags&SecEncrypt != 0 {
			if s.Settings.EncryptionMethod == EncryptionMethodFIPS {
				body := p.Data[cipherStart:bodyEnd]
				sig := s.Security.fipsSign(body)
				pad := (8 - len(body)%8) & 7
				if bodyEnd+pad > len(p.Data) {
					return 0, fmt.Errorf("rdp: fips send: %w", ErrShortRead)
				}
				for i := 0; i < pad; i++ {
					p.Data[bodyEnd+i] = 0
				}
				padded := p.Data[cipherStart : bodyEnd+pad]
				if err := s.Security.fipsEncrypt(padded); err != nil {
					return 0, err
				}
				p.SetPosition(secStart + secHeaderLength)
				p.WriteU16LE(0x10)
				p.WriteU8(1)
				p.WriteU8(uint8(pad))
				p.WriteBytes(sig[:])
				finalEnd = bodyEnd + pad
			} else {
				body := p.Data[cipherStart:bodyEnd]
				mac, err := s.Security.encryptLegacy(body)
				if err != nil {
					return 0, err
				}
				p.SetPosition(secStart + secHeaderLength)
				p.WriteBytes(mac[:])
			}
		}
	}

	p.SetPosition(TPKTHeaderLength)
	s.writeMCSHeader(p, uint16(finalEnd-FrameHeaderMax), channelID)

	p.SetPosition(0)
	writeTPKTX224Header(p, uint16(finalEnd))
	p.SetPosition(finalEnd)

	s.Recorder.OnPDUSent(0, finalEnd)
	n := s.Transport.Write(p)
	s.secFlags = 0
	return n, nil
}

// SendFrameAck emits a Frame Acknowledge Data PDU (spec.md §4.8), gated on
// Settings.FrameAcknowledge matching the original implementation's guard.
func (s *Session) SendFrameAck(frameID uint32) (int, error) {
	if !s.Settings.FrameAcknowledge {
		return 0, nil
	}
	p := s.BeginDataPDUSend(4)
	p.WriteU32LE(frameID)
	return s.FinishDataPDUSend(p, PDUType2FrameAcknowledge, StreamLow, MCSGlobalChannelID)
}

// SendInvalidate emits a Refresh Rect Data PDU naming a single rectangle
// (spec.md §4.8), mirroring the original implementation's rdp_send_invalidate.
func (s *Session) SendInvalidate(left, top, right, bottom uint16) (int, error) {
	p := s.BeginDataPDUSend(9)
	p.WriteU8(1) // numberOfAreas
	p.WriteBytes([]byte{0, 0, 0}) // pad3Octets
	var rect [8]byte
	binary.LittleEndian.PutUint16(rect[0:2], left)
	binary.LittleEndian.PutUint16(rect[2:4], top)
	binary.LittleEndian.PutUint16(rect[4:6], right)
	binary.LittleEndian.PutUint16(rect[6:8], bottom)
	p.WriteBytes(rect[:])
	return s.FinishDataPDUSend(p, PDUType2RefreshRect, StreamLow, MCSGlobalChannelID)
}

// SendChannelData emits a raw MCS Send Data Request carrying data verbatim
// on a static virtual channel (spec.md §4.7/§4.13), mirroring the original
// implementation's rdp_send_channel_data (rdp.c:926). Unlike SendFrameAck
// and SendInvalidate, it targets an arbitrary non-global channelID and
// carries no Share Control/Share Data framing — the channel payload format
// is the channel owner's concern, not this core's.
func (s *Session) SendChannelData(channelID uint16, data []byte) (int, error) {
	p := s.BeginRawSend(len(data))
	p.WriteBytes(data)
	return s.FinishRawSend(p, channelID)
}
