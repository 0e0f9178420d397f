package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/gordp/internal/rdp"
	"github.com/dantte-lp/gordp/internal/transport"
)

// TestReadTPKTFrame verifies that Read assembles a complete TPKT/X.224
// frame from a stream delivering it across multiple underlying writes.
func TestReadTPKTFrame(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	body := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	frame := append([]byte{0x03, 0x00, 0x00, byte(7 + len(body)), 0x02, 0xF0, 0x80}, body...)

	go func() {
		// Drip the frame across several writes to exercise the internal
		// io.ReadFull looping rather than a single passthrough read.
		_, _ = server.Write(frame[:3])
		time.Sleep(time.Millisecond)
		_, _ = server.Write(frame[3:])
	}()

	c := transport.NewConn(client)
	defer c.Close()

	p := c.RecvStreamInit(64)
	n := c.Read(p)
	if n != len(frame) {
		t.Fatalf("Read: got n=%d, want %d", n, len(frame))
	}
	if got := p.Bytes()[:n]; string(got) != string(frame) {
		t.Fatalf("Read: got %x, want %x", got, frame)
	}
}

// TestReadFastPathShortLength verifies the one-byte fast-path length form.
func TestReadFastPathShortLength(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	body := []byte{0xAA, 0xBB}
	frame := []byte{0x00, byte(2 + len(body))} // action=0 fast-path, short length
	frame = append(frame, body...)

	go func() { _, _ = server.Write(frame) }()

	c := transport.NewConn(client)
	defer c.Close()

	p := c.RecvStreamInit(64)
	n := c.Read(p)
	if n != len(frame) {
		t.Fatalf("Read: got n=%d, want %d", n, len(frame))
	}
}

// TestReadFastPathLongLength verifies the two-byte fast-path length form
// (high bit of the first length byte set).
func TestReadFastPathLongLength(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	total := 3 + len(body)
	frame := []byte{0x00, 0x80 | byte(total>>8), byte(total & 0xFF)}
	frame = append(frame, body...)

	go func() { _, _ = server.Write(frame) }()

	c := transport.NewConn(client)
	defer c.Close()

	p := c.RecvStreamInit(512)
	n := c.Read(p)
	if n != total {
		t.Fatalf("Read: got n=%d, want %d", n, total)
	}
	if got := p.Bytes()[3:n]; string(got) != string(body) {
		t.Fatal("Read: fast-path body mismatch")
	}
}

// TestReadFrameTooLarge verifies a declared length exceeding the supplied
// buffer is rejected rather than overrunning it.
func TestReadFrameTooLarge(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	frame := []byte{0x03, 0x00, 0xFF, 0xFF, 0x02, 0xF0, 0x80} // claims 65535 bytes

	go func() { _, _ = server.Write(frame) }()

	c := transport.NewConn(client)
	defer c.Close()

	p := c.RecvStreamInit(16)
	if n := c.Read(p); n >= 0 {
		t.Fatalf("Read: expected failure for oversized frame, got n=%d", n)
	}
}

// TestWrite verifies Write sends exactly the packer's written span.
func TestWrite(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := transport.NewConn(client)
	defer c.Close()

	p := c.SendStreamInit(8)
	p.WriteU8(1)
	p.WriteU8(2)
	p.WriteU8(3)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	if n := c.Write(p); n != 3 {
		t.Fatalf("Write: got n=%d, want 3", n)
	}
	got := <-done
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Write: server saw %v, want [1 2 3]", got)
	}
}

// TestSizedBufferGrows verifies SendStreamInit/RecvStreamInit hand back a
// packer sized to at least minCap even when it exceeds the pooled buffer.
func TestSizedBufferGrows(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := transport.NewConn(client)
	defer c.Close()

	const big = 64 * 1024
	p := c.SendStreamInit(big)
	if p.Len() != big {
		t.Fatalf("SendStreamInit: got len=%d, want %d", p.Len(), big)
	}

	// A subsequent small request should not panic or retain the oversized
	// buffer's stale length.
	p2 := c.RecvStreamInit(32)
	if p2.Len() != 32 {
		t.Fatalf("RecvStreamInit: got len=%d, want 32", p2.Len())
	}
}

var _ rdp.Transport = (*transport.Conn)(nil)
