package rdp

// This file defines the Decompressor (spec.md §4.6): the interface a real
// MPPC-family (RFC 2118) history-buffer decompressor must satisfy to plug
// into the receive pipeline. The call contract — compressedLengthOffset
// already subtracted by the caller, output addressed as an offset/length
// window into a persistent History() buffer rather than a fresh allocation
// per call, PACKET_FLUSHED resetting the buffer and PACKET_AT_FRONT
// rewinding the write cursor without discarding capacity — is grounded on
// original_source/libfreerdp-core/rdp.c's decompress_rdp and
// rdp->mppc->history_buf usage.
//
// No canonical MPPC bitstream codec ships with this core. The real mppc.c
// is not present anywhere in the retrieved example corpus, spec.md does not
// pin the Huffman literal/offset/length tables, and spec.md §6 requires
// wire compatibility to be bit-exact: a hand-rolled substitute bitstream
// would decode successfully against itself and silently fail against any
// real RDP server, which is worse than refusing to decode at all. Session
// ships with Decompressor left nil (see session.go); a caller connecting to
// a server that negotiates compression must supply a real implementation of
// this interface before any compressed PDU arrives, or receiveDataPDU
// returns ErrDecompressFailed.

// PACKET_COMPR_TYPE values occupy the low bits of compressedType; the flag
// bits occupy the high nibble (spec.md §4.6). Exported for Decompressor
// implementations that need to interpret the compressedType byte passed to
// Decompress.
const (
	PacketComprType8K  uint8 = 0x00
	PacketAtFront      uint8 = 0x10
	PacketFlushed      uint8 = 0x80
	PacketComprTypeMsk uint8 = 0x0F
)

// MPPC history buffer sizes named by the protocol: 8K for the RDP4 flavor,
// 64K for RDP5/RDP6 (spec.md §4.6).
const (
	MPPCHistorySize8K  = 8192
	MPPCHistorySize64K = 65536
)

// Decompressor decompresses Share Data PDU bodies carrying PACKET_COMPRESSED
// in their compressedType (spec.md §4.6). Implementations own a persistent
// history buffer: output from one call may reference bytes written by an
// earlier call, so History() addresses a moving window rather than a
// scratch buffer the caller must retain.
type Decompressor interface {
	// Decompress decompresses data (the wire payload with
	// compressedLengthOffset already subtracted by the caller) and returns
	// the offset and length of the freshly produced bytes within
	// History(). A PACKET_FLUSHED compressedType resets the history buffer
	// first; PACKET_AT_FRONT rewinds the write cursor to offset 0 without
	// discarding buffer capacity.
	Decompress(data []byte, compressedType uint8) (offset int, length int, err error)

	// History returns the decompressor's backing history buffer. Valid
	// only until the next call to Decompress.
	History() []byte
}
