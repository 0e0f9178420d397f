// Package rdp implements the core of a Remote Desktop Protocol client: packet
// framing, the security envelope, and PDU dispatch between a transport and
// higher-level subsystems (input, graphics, licensing, capability exchange,
// channel multiplexing).
//
// The layered pipeline composes/decomposes a TPKT/X.224 wrapper around four
// nested envelopes — MCS/T.125, RDP Security, and Share Control/Share Data —
// drives a connection-phase state machine, and splices a fast-path
// alternative framing and an MPPC-family decompressor onto received Data
// PDUs. Higher-level subsystems (capability parsing, display decoding, input
// translation, channel payload semantics) are external collaborators reached
// through the Recorder, RedirectionHandler, and ChannelRouter interfaces.
package rdp
