package rdp

import "fmt"

// This file implements the ConnectionStateMachine (spec.md §4.10): a
// Phase-keyed handler table, not a bare switch (spec.md §9 design note), so
// each phase's dispatch rule is a named, independently testable function.
// The handshake phases (NEGO through CAPABILITY) negotiate PDU formats that
// are out of scope per spec.md's Non-goals; this core only decodes frames
// once FINALIZATION is reached, where the Share Control/Share Data stream
// it already implements takes over. Earlier phases are routed to an
// optional external Handshake hook so a caller can layer the negotiation
// PDUs back in without this package needing to understand them.

// phaseHandlers maps each Phase to the function that processes one
// received frame while the state machine is in that phase.
var phaseHandlers = map[Phase]func(s *Session, p *BytePacker) error{
	PhaseNego:           dispatchHandshake,
	PhaseMCSConnect:     dispatchHandshake,
	PhaseMCSAttachUser:  dispatchHandshake,
	PhaseMCSChannelJoin: dispatchHandshake,
	PhaseLicense:        dispatchHandshake,
	PhaseCapability:     dispatchHandshake,
	PhaseFinalization:   dispatchActive,
	PhaseActive:         dispatchActive,
}

func dispatchHandshake(s *Session, p *BytePacker) error {
	if s.Handshake == nil {
		return nil
	}
	return s.Handshake(s.phase, p)
}

func dispatchActive(s *Session, p *BytePacker) error {
	return s.ReceiveFrame(p)
}

// Dispatch routes one received frame to the handler registered for the
// session's current phase (spec.md §4.10).
func (s *Session) Dispatch(p *BytePacker) error {
	if s.disconnect {
		return ErrDisconnected
	}
	h, ok := phaseHandlers[s.phase]
	if !ok {
		return fmt.Errorf("rdp: no handler for phase %s: %w", s.phase, ErrPhaseMismatch)
	}
	return h(s, p)
}

// maxFrameLength bounds the receive buffer Run allocates per iteration via
// RecvStreamInit. perWriteLength always forces the long form (a 15-bit
// value per spec.md §4.2), so no MCS user-data length can exceed 0x7FFF;
// adding the TPKT/X.224 and MCS header bytes in front of it covers the
// largest slow-path frame without a special case.
const maxFrameLength = FrameHeaderMax + 0x7FFF

// Run drives one blocking receive loop over the transport: read a frame,
// dispatch it through the connection state machine, repeat until the
// disconnect latch is set or the transport reports a read failure.
// Grounded on the teacher's bfd.Manager/bfd.Session single-goroutine event
// loop (spec.md §4.15, §5): one goroutine owns a Session for its lifetime.
func (s *Session) Run() error {
	for !s.disconnect {
		p := s.Transport.RecvStreamInit(maxFrameLength)
		n := s.Transport.Read(p)
		if n < 0 {
			return fmt.Errorf("rdp: transport read failed: %w", ErrFrameMalformed)
		}
		if n == 0 {
			continue
		}
		p.Data = p.Data[:n]
		p.SetPosition(0)
		if err := s.Dispatch(p); err != nil {
			return err
		}
	}
	return nil
}

// AdvancePhase moves the state machine one step forward through the
// monotonic handshake sequence (spec.md §4.10). It is the caller's
// responsibility to call it once each handshake stage's negotiation
// completes; the last forward transition, FINALIZATION -> ACTIVE, is
// instead data-driven and happens automatically inside dispatchDataPDU's
// maybeActivate once every finalization-sequence PDU has been observed.
func (s *Session) AdvancePhase() error {
	switch s.phase {
	case PhaseNego:
		s.setPhase(PhaseMCSConnect)
	case PhaseMCSConnect:
		s.setPhase(PhaseMCSAttachUser)
	case PhaseMCSAttachUser:
		s.setPhase(PhaseMCSChannelJoin)
	case PhaseMCSChannelJoin:
		s.setPhase(PhaseLicense)
	case PhaseLicense:
		s.setPhase(PhaseCapability)
	case PhaseCapability:
		s.setPhase(PhaseFinalization)
	default:
		return fmt.Errorf("rdp: cannot advance past phase %s: %w", s.phase, ErrPhaseMismatch)
	}
	return nil
}
