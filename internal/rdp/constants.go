package rdp

// MCS constants (ITU-T T.125), bit-exact per spec.md §6.
const (
	// MCSBaseChannelID is the offset subtracted from/added to the MCS
	// initiator (user id) field when it is PER-encoded.
	MCSBaseChannelID = 1001

	// MCSGlobalChannelID is the well-known MCS channel carrying the RDP
	// Share Control/Share Data stream.
	MCSGlobalChannelID = 1003
)

// Domain-MCS-PDU choices used by the MCS framer (ITU-T T.125 §7, as consumed
// by RDP). Only the three variants the framer needs to distinguish are named.
type mcsPDU uint8

const (
	mcsSendDataRequest             mcsPDU = 25
	mcsSendDataIndication          mcsPDU = 26
	mcsDisconnectProviderUltimatum mcsPDU = 8
)

// EncryptionMethod selects the cipher suite negotiated during the handshake.
type EncryptionMethod uint8

// Encryption methods, per spec.md §3 Settings.
const (
	EncryptionMethodNone EncryptionMethod = iota
	EncryptionMethod40Bit
	EncryptionMethod56Bit
	EncryptionMethod128Bit
	EncryptionMethodFIPS
)

// Security flags (Basic Security Header bit field), spec.md §3.
const (
	SecExchangePKT    uint16 = 0x0001
	SecEncrypt        uint16 = 0x0008
	SecSecureChecksum uint16 = 0x0100
	SecRedirectionPKT uint16 = 0x0400
	SecLicensePKT     uint16 = 0x0080
	SecInfoPKT        uint16 = 0x0040
)

// Share Control pduType values. Only the low 4 bits of the wire field are
// semantic; bit 4 (0x10) is always set on the wire and stripped on read.
type ShareControlType uint16

const (
	PDUTypeDemandActive      ShareControlType = 1
	PDUTypeConfirmActive     ShareControlType = 3
	PDUTypeDeactivateAll     ShareControlType = 6
	PDUTypeData              ShareControlType = 7
	PDUTypeServerRedirection ShareControlType = 10
)

// shareControlTypeMask extracts the semantic low nibble from the wire value.
const shareControlTypeMask = 0x0F

// shareControlWireBit is OR'd into the wire pduType on emission (spec.md §4.4).
const shareControlWireBit = 0x10

// Share Data pduType2 values (spec.md §3).
const (
	PDUType2Update              uint8 = 0x02
	PDUType2Control             uint8 = 0x14
	PDUType2Pointer             uint8 = 0x1B
	PDUType2Input               uint8 = 0x1C
	PDUType2Synchronize         uint8 = 0x1F
	PDUType2RefreshRect         uint8 = 0x21
	PDUType2PlaySound           uint8 = 0x22
	PDUType2SuppressOutput      uint8 = 0x23
	PDUType2ShutdownRequest     uint8 = 0x24
	PDUType2ShutdownDenied      uint8 = 0x25
	PDUType2SaveSessionInfo     uint8 = 0x26
	PDUType2FontList            uint8 = 0x27
	PDUType2FontMap             uint8 = 0x28
	PDUType2SetErrorInfo        uint8 = 0x2F
	PDUType2MonitorLayout       uint8 = 0x37
	PDUType2FrameAcknowledge    uint8 = 56
)

// Share Data Header streamId values (spec.md §4.4). StreamLow is the
// value most Data PDUs carry; StreamUndefined marks PDUs exempt from the
// auto-reconnect sequence-number bookkeeping a full client would layer on
// top of this core.
const (
	StreamUndefined uint8 = 0
	StreamLow       uint8 = 1
)

// Header sizes, spec.md §4.3/§4.4/§4.9.
const (
	// RDPPacketHeaderMax is the fixed size of the outermost MCS header
	// (choice byte + initiator + channelId + priority/segmentation byte +
	// 2-byte forced-long-form length), reserved before any security space.
	RDPPacketHeaderMax = 8

	// TPKTHeaderLength is the size of the TPKT/X.224 wrapper (spec.md
	// §4.14) that precedes RDPPacketHeaderMax on the wire for every
	// slow-path frame.
	TPKTHeaderLength = 7

	// FrameHeaderMax is the total outer header size reserved ahead of MCS
	// user-data: TPKTHeaderLength + RDPPacketHeaderMax.
	FrameHeaderMax = TPKTHeaderLength + RDPPacketHeaderMax

	// ShareControlHeaderLength is the size of the Share Control Header
	// when present (spec.md §4.4). The short-PDU exception (length <= 4)
	// omits pduSource on read only; it is always written in full.
	ShareControlHeaderLength = 6

	// ShareDataHeaderLength is the fixed size of the Share Data Header.
	ShareDataHeaderLength = 12

	// secMACLength is the legacy 8-byte MAC slot preceding ciphertext.
	secMACLength = 8

	// secHeaderLength is the 4-byte Basic Security Header (flags + flagsHi).
	secHeaderLength = 4

	// fipsHeaderLength is the 4-byte FIPS header (len, version, pad) that
	// precedes the 8-byte signature, which itself precedes ciphertext.
	fipsHeaderLength = 4
	fipsSigLength    = 8
)

// Fast-path action/flags bits, spec.md §4.5.
const (
	fastPathActionMask           = 0x03
	fastPathActionFastPath       = 0x00
	fastPathOutputEncrypted      = 0x80
	fastPathOutputSecureChecksum = 0x40
	fastPathLengthContinuation   = 0x80
)

// PACKET_COMPRESSED bit of compressedType (spec.md §4.6).
const packetCompressed uint8 = 0x20

// compressedLengthOffset is the protocol-mandated offset subtracted from the
// Share Data Header's compressedLength before it is passed to the
// decompressor (spec.md §4.6).
const compressedLengthOffset = 18

// FINALIZE_SC_COMPLETE mask bits (spec.md §4.10), named per the PDU whose
// arrival sets them.
const (
	finalizeSynchronize      = 1 << 0
	finalizeControlCooperate = 1 << 1
	finalizeControlGranted   = 1 << 2
	finalizeFontMap          = 1 << 3

	finalizeSCComplete = finalizeSynchronize | finalizeControlCooperate |
		finalizeControlGranted | finalizeFontMap
)
