// Package transport implements rdp.Transport over a TCP net.Conn: pooled
// frame buffers, TPKT/X.224 and fast-path length-prefixed stream reads,
// socket tuning, and a poll-driven non-blocking receive hook. Grounded on
// the teacher's internal/netio (UDPSender's socket-option pattern, adapted
// from a UDP datagram socket to a TCP stream socket) and internal/bfd's
// PacketPool sync.Pool (buffer reuse for zero-allocation I/O).
package transport
