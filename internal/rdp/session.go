package rdp

import "crypto/rc4" //nolint:gosec // G405: RC4 required by legacy RDP Standard Security

// Settings holds the read-mostly connection parameters mutated only during
// the handshake (spec.md §3).
type Settings struct {
	// Encryption indicates the standard (non-TLS/CredSSP) RDP security
	// layer is active.
	Encryption bool

	// EncryptionMethod selects the cipher suite in use when Encryption is
	// set.
	EncryptionMethod EncryptionMethod

	// ServerMode flips the MCS Send-Data-Request/Indication direction
	// constants; false means this Session is a client.
	ServerMode bool

	// ShareID is the 32-bit share identifier assigned during capability
	// exchange, echoed back in every outbound Share Data Header.
	ShareID uint32

	// PDUSource is updated from the most recently received Share Control
	// Header's pduSource field.
	PDUSource uint16

	// FrameAcknowledge enables emission of Frame Acknowledge Data PDUs via
	// Session.SendFrameAck.
	FrameAcknowledge bool
}

// MCSContext holds the local MCS attachment state (spec.md §3).
type MCSContext struct {
	// UserID is the local initiator id returned by MCS Attach-User-Confirm.
	UserID uint16
}

// Phase enumerates the connection state machine's states (spec.md §3,
// monotonic forward except FINALIZATION -> ACTIVE which is data-driven).
type Phase uint8

const (
	PhaseNego Phase = iota
	PhaseMCSConnect
	PhaseMCSAttachUser
	PhaseMCSChannelJoin
	PhaseLicense
	PhaseCapability
	PhaseFinalization
	PhaseActive
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNego:
		return "Nego"
	case PhaseMCSConnect:
		return "MCSConnect"
	case PhaseMCSAttachUser:
		return "MCSAttachUser"
	case PhaseMCSChannelJoin:
		return "MCSChannelJoin"
	case PhaseLicense:
		return "License"
	case PhaseCapability:
		return "Capability"
	case PhaseFinalization:
		return "Finalization"
	case PhaseActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// Recorder observes protocol-level events for metrics/diagnostics. The core
// package never imports a metrics library directly (mirrors the teacher's
// PacketSender-style collaborator interfaces); the default is a no-op.
type Recorder interface {
	OnPDUSent(pduType uint8, n int)
	OnPDURecv(pduType uint8, n int)
	OnMACMismatch()
	OnDecryptFailure()
	OnDecompressFailure()
	OnPhaseTransition(from, to Phase)
	OnDisconnect(reason string)
}

type noopRecorder struct{}

func (noopRecorder) OnPDUSent(uint8, int)          {}
func (noopRecorder) OnPDURecv(uint8, int)          {}
func (noopRecorder) OnMACMismatch()                {}
func (noopRecorder) OnDecryptFailure()             {}
func (noopRecorder) OnDecompressFailure()          {}
func (noopRecorder) OnPhaseTransition(_, _ Phase)  {}
func (noopRecorder) OnDisconnect(_ string)         {}

// RedirectionHandler receives Server Redirection frames (spec.md §4.7 step
// 3, §4.12). Server redirection parsing is out of scope (Non-goals); this
// is a routing hook only.
type RedirectionHandler interface {
	HandleRedirection(buf []byte) error
}

// ChannelRouter receives channel payloads for channel ids other than
// MCSGlobalChannelID (spec.md §4.7 step 4, §4.13). Channel payload
// semantics are out of scope (Non-goals); this is a routing hook only.
type ChannelRouter interface {
	HandleChannelData(channelID uint16, payload []byte) error
}

// Transport is the external collaborator contract from spec.md §6: a
// reliable byte stream with pooled send/receive buffers and a polling hook
// for non-blocking integration.
type Transport interface {
	// SendStreamInit returns a packer with at least minCap bytes of
	// writable capacity, positioned at offset 0.
	SendStreamInit(minCap int) *BytePacker

	// RecvStreamInit returns a packer sized to receive at least minCap
	// bytes, positioned at offset 0.
	RecvStreamInit(minCap int) *BytePacker

	// Write sends the bytes in p.Bytes()[:p.Position()]. Returns a
	// negative value on failure (spec.md §6).
	Write(p *BytePacker) int

	// Read fills p with one transport-level read and returns the byte
	// count, or a negative value on failure.
	Read(p *BytePacker) int

	// SetBlockingMode toggles blocking vs poll-driven I/O.
	SetBlockingMode(blocking bool)

	// CheckFDs drains one pending non-blocking read, invoking the
	// registered receive callback if a frame was read.
	CheckFDs() int

	// SetRecvCallback registers the function invoked with a freshly
	// filled receive packer, once per received transport frame.
	SetRecvCallback(cb func(buf *BytePacker))
}

// SecurityContext holds the keys, counters, and mode selection for both
// traffic directions (spec.md §3). Its lifetime matches the Session's: it
// is created at handshake completion and never reused across sessions.
type SecurityContext struct {
	// EncryptKey/DecryptKey/MACKey are negotiated during the handshake.
	// Their lengths depend on EncryptionMethod (5/8/16 bytes for legacy
	// RC4 variants; for FIPS, EncryptKey and DecryptKey are each a 24-byte
	// 3DES key and MACKey is the separate HMAC-SHA1 key).
	EncryptKey []byte
	DecryptKey []byte
	MACKey     []byte

	// SecureChecksum selects the salted MAC variant for legacy mode
	// (spec.md §4.3); mirrors the sticky SEC_SECURE_CHECKSUM flag.
	SecureChecksum bool

	// FIPSIVEncrypt/FIPSIVDecrypt hold the running 3DES-CBC
	// initialization vector for each direction.
	FIPSIVEncrypt [8]byte
	FIPSIVDecrypt [8]byte

	// AllowInsecureLegacyMAC gates the spec.md §9 "non-fatal MAC mismatch"
	// behavior. Off by default; new code must opt in explicitly.
	AllowInsecureLegacyMAC bool

	// encryptCipher/decryptCipher hold the persistent RC4 keystream state
	// for legacy mode, installed by InitLegacyCiphers. Unused in FIPS mode.
	encryptCipher *rc4.Cipher
	decryptCipher *rc4.Cipher

	// encryptCount/decryptCount are the per-direction frame counters mixed
	// into the salted ("secure checksum") legacy MAC variant.
	encryptCount uint32
	decryptCount uint32
}

// Session is the root aggregate (spec.md §3): it owns Settings, the
// transport handle, connection phase, sticky security flags staged for the
// next outbound frame, a disconnect latch, an error-info code, and
// non-owning references to subsystems it dispatches to.
//
// Session is single-threaded cooperative (spec.md §5): one goroutine owns a
// Session at a time; there is no internal locking.
type Session struct {
	Settings Settings
	MCS      MCSContext
	Security SecurityContext

	Transport Transport
	Recorder  Recorder

	Redirect RedirectionHandler
	Channels ChannelRouter

	// Handshake processes frames received during the pre-FINALIZATION
	// phases (NEGO through CAPABILITY), whose PDU formats are out of scope
	// for this core (spec.md Non-goals). Left nil, those frames are
	// accepted and silently dropped.
	Handshake func(phase Phase, p *BytePacker) error

	Data ShareDataHandlers

	phase Phase

	// secFlags is the sticky staging bag described in spec.md §4.3/§9.
	// StageSecurityFlags and securityStreamInit OR flags into it, and every
	// outbound frame consumes and clears it. The send builders take no
	// per-call flags argument; this field is the only staging path.
	secFlags uint16

	disconnect bool
	errorInfo  uint32

	finalizeSCPDUs uint8

	// Decompressor handles PACKET_COMPRESSED Share Data PDU bodies (spec.md
	// §4.6). Left nil by NewSession: no default implementation ships with
	// this core (see decompress.go), so a caller connecting to a server
	// that negotiates MPPC must supply a real decoder before any compressed
	// PDU arrives. A compressed PDU received with Decompressor nil fails
	// with ErrDecompressFailed rather than silently misinterpreting the
	// payload.
	Decompressor Decompressor
}

// NewSession constructs a Session bound to the given transport with default
// (unencrypted, client-mode) settings. Callers typically mutate Settings
// and Security once the handshake has negotiated them, and must set
// Decompressor themselves if the negotiated capabilities allow compression.
func NewSession(t Transport) *Session {
	s := &Session{
		Transport: t,
		Recorder:  noopRecorder{},
		phase:     PhaseNego,
	}
	return s
}

// Phase returns the current connection phase.
func (s *Session) Phase() Phase { return s.phase }

// setPhase transitions to the given phase, notifying the Recorder.
func (s *Session) setPhase(p Phase) {
	if p == s.phase {
		return
	}
	old := s.phase
	s.phase = p
	s.Recorder.OnPhaseTransition(old, p)
}

// Disconnected reports whether the disconnect latch has been set, by a
// DisconnectProviderUltimatum or external tear-down (spec.md §5).
func (s *Session) Disconnected() bool { return s.disconnect }

// Disconnect sets the disconnect latch, observed at the top of each receive
// iteration (spec.md §5).
func (s *Session) Disconnect(reason string) {
	if !s.disconnect {
		s.disconnect = true
		s.Recorder.OnDisconnect(reason)
	}
}

// ErrorInfo returns the last error-info code recorded from a Set-Error-Info
// Data PDU (spec.md §4.8, §7 kind 7), or 0 if none has been received.
func (s *Session) ErrorInfo() uint32 { return s.errorInfo }

// StageSecurityFlags ORs flags into the sticky outbound staging field.
// FinishRawSend/FinishPDUSend/FinishDataPDUSend consume and clear it on
// every send.
func (s *Session) StageSecurityFlags(flags uint16) {
	s.secFlags |= flags
}
