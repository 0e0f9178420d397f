package rdp_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dantte-lp/gordp/internal/rdp"
)

// -------------------------------------------------------------------------
// mockTransport — an in-memory Transport that records a copy of each
// written frame in sent (Read delivers nothing), so tests can feed sent
// frames back into ReceiveFrame and exercise SendPipeline/ReceivePipeline
// against each other without a real socket.
// -------------------------------------------------------------------------

type mockTransport struct {
	sent [][]byte
}

func (m *mockTransport) SendStreamInit(minCap int) *rdp.BytePacker {
	return rdp.NewBytePacker(make([]byte, minCap))
}

func (m *mockTransport) RecvStreamInit(minCap int) *rdp.BytePacker {
	return rdp.NewBytePacker(make([]byte, minCap))
}

func (m *mockTransport) Write(p *rdp.BytePacker) int {
	buf := make([]byte, p.Position())
	copy(buf, p.Bytes()[:p.Position()])
	m.sent = append(m.sent, buf)
	return len(buf)
}

func (m *mockTransport) Read(*rdp.BytePacker) int        { return 0 }
func (m *mockTransport) SetBlockingMode(bool)            {}
func (m *mockTransport) CheckFDs() int                   { return 0 }
func (m *mockTransport) SetRecvCallback(func(*rdp.BytePacker)) {}

// writeTestTPKTX224Header writes the 7-byte TPKT/X.224 wrapper every
// slow-path frame carries, for tests that build a raw MCS frame by hand
// instead of going through the SendPipeline.
func writeTestTPKTX224Header(p *rdp.BytePacker, totalLength uint16) {
	p.WriteU8(3) // TPKT version
	p.WriteU8(0) // reserved
	p.WriteU16BE(totalLength)
	p.WriteU8(2)    // X.224 length indicator
	p.WriteU8(0xF0) // data TPDU code
	p.WriteU8(0x80) // eot
}

func newActiveSession() (*rdp.Session, *mockTransport) {
	tr := &mockTransport{}
	s := rdp.NewSession(tr)
	s.MCS.UserID = rdp.MCSBaseChannelID + 7
	return s, tr
}

// -------------------------------------------------------------------------
// TestDataPDURoundTrip — spec.md §8 scenario 1: a Data PDU sent through
// FinishDataPDUSend decodes back through ReceiveFrame to the same payload.
// -------------------------------------------------------------------------

func TestDataPDURoundTrip(t *testing.T) {
	t.Parallel()

	s, tr := newActiveSession()

	var got []byte
	s.Data.OnSynchronize = func(data []byte) error {
		got = append([]byte(nil), data...)
		return nil
	}

	p := s.BeginDataPDUSend(4)
	p.WriteU32LE(0x00000001)
	if _, err := s.FinishDataPDUSend(p, rdp.PDUType2Synchronize, 0, rdp.MCSGlobalChannelID); err != nil {
		t.Fatalf("FinishDataPDUSend: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(tr.sent))
	}

	recv := rdp.NewBytePacker(tr.sent[0])
	if err := s.ReceiveFrame(recv); err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if len(got) != 4 || got[0] != 1 {
		t.Fatalf("unexpected synchronize payload: %v", got)
	}
}

// -------------------------------------------------------------------------
// TestShortDeactivateAll — spec.md §8 scenario 2: a 4-byte DEACTIVATE_ALL
// Share Control PDU (no pduSource) is tolerated, matching the Windows XP
// short-PDU exception.
// -------------------------------------------------------------------------

func TestShortDeactivateAll(t *testing.T) {
	t.Parallel()

	s, tr := newActiveSession()
	s.Handshake = func(rdp.Phase, *rdp.BytePacker) error { return nil }

	// Build: MCS header around a 4-byte Share Control Header only.
	p := s.BeginPDUSend(0)
	scStart := p.Position()
	p.SetPosition(scStart)
	if _, err := s.FinishPDUSend(p, rdp.PDUTypeDeactivateAll, rdp.MCSGlobalChannelID); err != nil {
		t.Fatalf("FinishPDUSend: %v", err)
	}

	// Truncate the frame to 4 Share-Control bytes (drop pduSource) and fix
	// up both the Share Control Header's own length field and the outer
	// MCS length to match, simulating the short-PDU peer.
	raw := tr.sent[0]
	shareControlOffset := len(raw) - rdp.ShareControlHeaderLength
	short := append([]byte(nil), raw[:shareControlOffset+4]...)
	binary.LittleEndian.PutUint16(short[shareControlOffset:shareControlOffset+2], 4)
	mcsLengthOffset := rdp.TPKTHeaderLength + 6
	binary.BigEndian.PutUint16(short[mcsLengthOffset:mcsLengthOffset+2], uint16(4)|0x8000)

	recv := rdp.NewBytePacker(short)
	if err := s.ReceiveFrame(recv); err != nil {
		t.Fatalf("ReceiveFrame on short DEACTIVATE_ALL: %v", err)
	}
	if s.Phase() != rdp.PhaseCapability {
		t.Fatalf("expected phase Capability after DEACTIVATE_ALL, got %s", s.Phase())
	}
}

// -------------------------------------------------------------------------
// TestDisconnectProviderUltimatum — spec.md §8 scenario 3.
// -------------------------------------------------------------------------

func TestDisconnectProviderUltimatum(t *testing.T) {
	t.Parallel()

	s, _ := newActiveSession()

	buf := make([]byte, 16)
	p := rdp.NewBytePacker(buf)
	writeTestTPKTX224Header(p, 9) // 7-byte wrapper + 2-byte MCS body below
	p.WriteU8(8 << 2)             // mcsDisconnectProviderUltimatum choice byte
	p.WriteU8(0)                  // PER enumerated reason
	frame := rdp.NewBytePacker(buf[:p.Position()])

	if err := s.ReceiveFrame(frame); err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if !s.Disconnected() {
		t.Fatal("expected session to be disconnected")
	}
}

// -------------------------------------------------------------------------
// TestMultiplePDUsInOneEnvelope — spec.md §8 scenario 4.
// -------------------------------------------------------------------------

func TestMultiplePDUsInOneEnvelope(t *testing.T) {
	t.Parallel()

	s, tr := newActiveSession()

	count := 0
	s.Data.OnFontMap = func([]byte) error { count++; return nil }

	for i := 0; i < 2; i++ {
		p := s.BeginDataPDUSend(0)
		if _, err := s.FinishDataPDUSend(p, rdp.PDUType2FontMap, 0, rdp.MCSGlobalChannelID); err != nil {
			t.Fatalf("FinishDataPDUSend[%d]: %v", i, err)
		}
	}

	// Splice the two independent frames' MCS user-data into a single
	// envelope, as a server coalescing multiple Share Control PDUs would.
	combinedUserData := append([]byte(nil), frameUserData(tr.sent[0])...)
	combinedUserData = append(combinedUserData, frameUserData(tr.sent[1])...)

	envelope := rebuildMCSFrame(s, combinedUserData)
	recv := rdp.NewBytePacker(envelope)
	if err := s.ReceiveFrame(recv); err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 FontMap dispatches, got %d", count)
	}
}

// frameUserData strips the TPKT/X.224 wrapper and MCS header off a sent
// frame, returning the Share Control/Share Data bytes that follow it.
func frameUserData(raw []byte) []byte {
	return raw[rdp.FrameHeaderMax:]
}

// rebuildMCSFrame wraps userData in a fresh MCS header via a one-off send,
// for tests that need to splice multiple PDUs into one envelope.
func rebuildMCSFrame(s *rdp.Session, userData []byte) []byte {
	tr := &mockTransport{}
	tmp := rdp.NewSession(tr)
	tmp.MCS.UserID = s.MCS.UserID
	p := tmp.BeginRawSend(len(userData))
	p.WriteBytes(userData)
	if _, err := tmp.FinishRawSend(p, rdp.MCSGlobalChannelID); err != nil {
		panic(err)
	}
	return tr.sent[0]
}

// -------------------------------------------------------------------------
// TestLegacyMACMismatchNonFatal — spec.md §8 scenario 5 / §9 design note:
// with AllowInsecureLegacyMAC=true, a legacy MAC mismatch is recorded but
// does not fail the receive. Left at its default false, the same mismatch
// is fatal.
// -------------------------------------------------------------------------

func TestLegacyMACMismatchNonFatal(t *testing.T) {
	t.Parallel()

	s, tr := newActiveSession()
	s.Settings.Encryption = true
	s.Settings.EncryptionMethod = rdp.EncryptionMethod128Bit
	s.Security.EncryptKey = []byte("0123456789abcdef")
	s.Security.DecryptKey = []byte("0123456789abcdef")
	s.Security.MACKey = []byte("0123456789abcdef")
	if err := s.Security.InitLegacyCiphers(); err != nil {
		t.Fatalf("InitLegacyCiphers: %v", err)
	}
	s.Security.AllowInsecureLegacyMAC = true

	p := s.BeginDataPDUSend(2)
	p.WriteU16LE(0xABCD)
	if _, err := s.FinishDataPDUSend(p, rdp.PDUType2Update, 0, rdp.MCSGlobalChannelID); err != nil {
		t.Fatalf("FinishDataPDUSend: %v", err)
	}

	corrupted := append([]byte(nil), tr.sent[0]...)
	corrupted[len(corrupted)-1] ^= 0xFF // flip a ciphertext bit after encrypt+sign

	var mismatched bool
	recorder := &recordingRecorder{onMAC: func() { mismatched = true }}
	s.Recorder = recorder

	recv := rdp.NewBytePacker(corrupted)
	if err := s.ReceiveFrame(recv); err != nil {
		t.Fatalf("expected non-fatal mismatch, got error: %v", err)
	}
	if !mismatched {
		t.Fatal("expected OnMACMismatch to fire")
	}
}

// -------------------------------------------------------------------------
// TestFIPSSignatureMismatchFatal — spec.md §8 scenario 6.
// -------------------------------------------------------------------------

func TestFIPSSignatureMismatchFatal(t *testing.T) {
	t.Parallel()

	s, tr := newActiveSession()
	s.Settings.Encryption = true
	s.Settings.EncryptionMethod = rdp.EncryptionMethodFIPS
	s.Security.EncryptKey = make([]byte, 24)
	s.Security.DecryptKey = make([]byte, 24)
	s.Security.MACKey = []byte("0123456789abcdef")

	p := s.BeginDataPDUSend(2)
	p.WriteU16LE(0x1234)
	if _, err := s.FinishDataPDUSend(p, rdp.PDUType2Update, 0, rdp.MCSGlobalChannelID); err != nil {
		t.Fatalf("FinishDataPDUSend: %v", err)
	}

	corrupted := append([]byte(nil), tr.sent[0]...)
	corrupted[len(corrupted)-1] ^= 0xFF

	recv := rdp.NewBytePacker(corrupted)
	err := s.ReceiveFrame(recv)
	if err == nil {
		t.Fatal("expected FIPS signature mismatch to be fatal")
	}
	if !errors.Is(err, rdp.ErrFIPSCrypto) {
		t.Fatalf("expected ErrFIPSCrypto, got %v", err)
	}
}

type recordingRecorder struct {
	onMAC func()
}

func (r *recordingRecorder) OnPDUSent(uint8, int)         {}
func (r *recordingRecorder) OnPDURecv(uint8, int)         {}
func (r *recordingRecorder) OnMACMismatch()               { r.onMAC() }
func (r *recordingRecorder) OnDecryptFailure()            {}
func (r *recordingRecorder) OnDecompressFailure()         {}
func (r *recordingRecorder) OnPhaseTransition(_, _ rdp.Phase) {}
func (r *recordingRecorder) OnDisconnect(_ string)        {}
