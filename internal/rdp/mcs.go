package rdp

import "fmt"

// This file implements the MCS framer (spec.md §4.2): the outermost
// Domain-MCS-PDU header wrapping every slow-path RDP frame.

// writeMCSHeader encodes the outermost header. length is the MCS user-data
// length (the total frame length minus FrameHeaderMax), already
// computed by the caller from the packer cursor per the back-fill design
// (spec.md §4.9).
func (s *Session) writeMCSHeader(p *BytePacker, length uint16, channelID uint16) {
	pdu := mcsSendDataRequest
	if s.Settings.ServerMode {
		pdu = mcsSendDataIndication
	}
	p.WriteU8(uint8(pdu) << 2)
	perWriteInteger16(p, s.MCS.UserID, MCSBaseChannelID)
	perWriteInteger16(p, channelID, 0)
	p.WriteU8(0x70) // dataPriority + segmentation, fixed per spec.md §4.2.
	perWriteLength(p, length)
}

// readMCSHeader decodes the outermost header. On success it returns the MCS
// user-data length and the channel id. A DisconnectProviderUltimatum sets
// the session's disconnect latch and returns (0, MCSGlobalChannelID, nil)
// without reading any body (spec.md §4.2, §8 scenario 3).
func (s *Session) readMCSHeader(p *BytePacker) (length uint16, channelID uint16, err error) {
	choice, err := p.ReadU8()
	if err != nil {
		return 0, 0, fmt.Errorf("rdp: mcs header: %w", ErrFrameMalformed)
	}
	pdu := mcsPDU(choice >> 2)

	if pdu == mcsDisconnectProviderUltimatum {
		if _, err := perReadEnumerated(p); err != nil {
			return 0, 0, fmt.Errorf("rdp: mcs disconnect reason: %w", ErrFrameMalformed)
		}
		s.Disconnect("disconnect provider ultimatum")
		return 0, MCSGlobalChannelID, nil
	}

	initiator, err := perReadInteger16(p, MCSBaseChannelID)
	if err != nil {
		return 0, 0, fmt.Errorf("rdp: mcs initiator: %w", ErrFrameMalformed)
	}
	_ = initiator // the remote initiator id is not retained by the core.

	channelID, err = perReadInteger16(p, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("rdp: mcs channel id: %w", ErrFrameMalformed)
	}

	p.Seek(1) // dataPriority + segmentation byte, ignored on read.

	length, err = perReadLength(p)
	if err != nil {
		return 0, 0, fmt.Errorf("rdp: mcs user-data length: %w", ErrFrameMalformed)
	}
	if int(length) > p.Remaining() {
		return 0, 0, fmt.Errorf("rdp: mcs user-data length %d exceeds remaining %d: %w",
			length, p.Remaining(), ErrFrameMalformed)
	}

	return length, channelID, nil
}
