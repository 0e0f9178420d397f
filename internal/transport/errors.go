package transport

import "errors"

var (
	// ErrUnexpectedConnType is returned when Dial's net.DialTimeout hands
	// back something other than a *net.TCPConn (should not happen for the
	// "tcp" network, but the socket-tuning calls below need the concrete
	// type).
	ErrUnexpectedConnType = errors.New("transport: unexpected connection type")

	// ErrFrameTooLarge is returned when a peer declares a TPKT or fast-path
	// length that does not fit the caller-supplied buffer.
	ErrFrameTooLarge = errors.New("transport: frame too large")
)
