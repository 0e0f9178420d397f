package rdp

import (
	"crypto/cipher"
	"crypto/des" //nolint:gosec // G502: 3DES required by RDP FIPS mode, RFC/MS-RDPBCGR mandated
	"crypto/hmac"
	"crypto/md5"  //nolint:gosec // G501: MD5 required by the legacy RDP MAC construction
	"crypto/rc4"  //nolint:gosec // G405: RC4 required by legacy RDP Standard Security
	"crypto/sha1" //nolint:gosec // G505: SHA1 required by legacy MAC and FIPS HMAC
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// This file implements the SecurityEnvelope (spec.md §4.3): the Basic
// Security Header, MAC signing/verification, and symmetric encryption in
// FIPS (3DES-CBC + HMAC-SHA1) and legacy (RC4 + MD5/SHA1 MAC) modes.

// writeSecurityHeader writes the 4-byte Basic Security Header: flags (LE
// u16), flagsHi (LE u16, always zero).
func writeSecurityHeader(p *BytePacker, flags uint16) {
	p.WriteU16LE(flags)
	p.WriteU16LE(0)
}

// readSecurityHeader reads the Basic Security Header, ignoring flagsHi.
func readSecurityHeader(p *BytePacker) (uint16, error) {
	flags, err := p.ReadU16LE()
	if err != nil {
		return 0, fmt.Errorf("rdp: security header: %w", ErrFrameMalformed)
	}
	p.Seek(2) // flagsHi, unused.
	return flags, nil
}

// secReservedBytes computes the exact outbound reservation per spec.md §4.3:
// 12 bytes if ENCRYPT is staged (8-byte MAC + 4-byte Basic Security Header),
// +4 more in FIPS, 4 bytes if any other non-zero flag is staged, 0
// otherwise.
func secReservedBytes(flags uint16, method EncryptionMethod) int {
	switch {
	case flags&SecEncrypt != 0:
		n := secMACLength + secHeaderLength
		if method == EncryptionMethodFIPS {
			n += fipsHeaderLength + fipsSigLength - secMACLength
		}
		return n
	case flags != 0:
		return secHeaderLength
	default:
		return 0
	}
}

// pendingSecBytes computes how many bytes the next send will reserve for
// the security envelope, without mutating any state: secHeaderLength+
// secMACLength if encryption is active (+FIPS extra), secHeaderLength if a
// flag is already staged, 0 otherwise. securityStreamInit and beginSend
// share this so the sizing hint and the actual reservation never drift
// apart.
func (s *Session) pendingSecBytes() int {
	if s.Settings.Encryption && s.Settings.EncryptionMethod != EncryptionMethodNone {
		if s.Settings.EncryptionMethod == EncryptionMethodFIPS {
			return secHeaderLength + fipsHeaderLength + fipsSigLength
		}
		return secHeaderLength + secMACLength
	}
	if s.secFlags != 0 {
		return secHeaderLength
	}
	return 0
}

// securityStreamInit mirrors the C implementation's rdp_security_stream_init:
// if encryption is active, it stages SEC_ENCRYPT (and SEC_SECURE_CHECKSUM if
// configured) and reserves space; otherwise, if any flag is already staged,
// it reserves the bare security header. Returns the number of bytes
// reserved, which the caller has already seeked past.
func (s *Session) securityStreamInit(p *BytePacker) int {
	n := s.pendingSecBytes()
	p.Seek(n)
	if n > secHeaderLength || (s.Settings.Encryption && s.Settings.EncryptionMethod != EncryptionMethodNone) {
		s.secFlags |= SecEncrypt
		if s.Security.SecureChecksum {
			s.secFlags |= SecSecureChecksum
		}
	}
	return n
}

// legacyPad1/legacyPad2 are the fixed padding blocks for the classic
// MS-RDPBCGR 5.3.6.1 MacData construction.
var (
	legacyPad1 = bytesRepeat(0x36, 40)
	legacyPad2 = bytesRepeat(0x5C, 48)
)

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// legacyMAC computes the classic 8-byte legacy MAC over data: MD5(MACKey ||
// pad2 || SHA1(MACKey || pad1 || len(data) LE32 || data [|| salt LE32])).
// salt is the per-frame encryption count, included only when secure is true
// (the "salted" MAC variant, spec.md §4.3).
func legacyMAC(macKey []byte, data []byte, secure bool, salt uint32) [8]byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))

	sh := sha1.New() //nolint:gosec // protocol-mandated
	sh.Write(macKey)
	sh.Write(legacyPad1)
	sh.Write(lenBuf[:])
	sh.Write(data)
	if secure {
		var saltBuf [4]byte
		binary.LittleEndian.PutUint32(saltBuf[:], salt)
		sh.Write(saltBuf[:])
	}
	sha1Digest := sh.Sum(nil)

	md := md5.New() //nolint:gosec // protocol-mandated
	md.Write(macKey)
	md.Write(legacyPad2)
	md.Write(sha1Digest)
	md5Digest := md.Sum(nil)

	var mac [8]byte
	copy(mac[:], md5Digest[:8])
	return mac
}

// encryptLegacy computes the legacy MAC over the plaintext body, then RC4
// encrypts body in place using the session's persistent encrypt cipher
// (RC4 keystream position carries across frames within one Session,
// matching real RDP Standard Security rather than a per-frame reset).
func (sec *SecurityContext) encryptLegacy(body []byte) (mac [8]byte, err error) {
	mac = legacyMAC(sec.MACKey, body, sec.SecureChecksum, sec.encryptCount)
	if sec.SecureChecksum {
		sec.encryptCount++
	}
	if sec.encryptCipher == nil {
		return mac, fmt.Errorf("rdp: legacy encrypt: %w", ErrFrameMalformed)
	}
	sec.encryptCipher.XORKeyStream(body, body)
	return mac, nil
}

// decryptLegacy RC4-decrypts body in place and reports whether the
// recomputed MAC matches the one carried on the wire. A mismatch is never
// returned as an error — per spec.md §4.3/§7 kind 3, the caller decides
// whether to treat it as fatal (the receive paths do so unless
// SecurityContext.AllowInsecureLegacyMAC is set).
func (sec *SecurityContext) decryptLegacy(wireMAC [8]byte, body []byte, secureChecksum bool) (macOK bool, err error) {
	if sec.decryptCipher == nil {
		return false, fmt.Errorf("rdp: legacy decrypt: %w", ErrFrameMalformed)
	}
	sec.decryptCipher.XORKeyStream(body, body)

	expected := legacyMAC(sec.MACKey, body, secureChecksum, sec.decryptCount)
	if secureChecksum {
		sec.decryptCount++
	}
	return subtle.ConstantTimeCompare(wireMAC[:], expected[:]) == 1, nil
}

// fipsSign computes the 8-byte truncated HMAC-SHA1 over the unpadded
// plaintext body (spec.md §4.3: signed before the zero-pad is appended).
func (sec *SecurityContext) fipsSign(body []byte) [8]byte {
	h := hmac.New(sha1.New, sec.MACKey) //nolint:gosec // protocol-mandated
	h.Write(body)
	sum := h.Sum(nil)
	var sig [8]byte
	copy(sig[:], sum[:8])
	return sig
}

// fipsEncrypt 3DES-CBC encrypts body (which must already be a multiple of 8
// bytes, i.e. zero-padded) in place, advancing the running IV.
func (sec *SecurityContext) fipsEncrypt(body []byte) error {
	block, err := des.NewTripleDESCipher(sec.EncryptKey)
	if err != nil {
		return fmt.Errorf("rdp: fips encrypt cipher: %w", err)
	}
	mode := cipher.NewCBCEncrypter(block, sec.FIPSIVEncrypt[:])
	mode.CryptBlocks(body, body)
	copy(sec.FIPSIVEncrypt[:], body[len(body)-8:])
	return nil
}

// fipsDecrypt 3DES-CBC decrypts body in place, advancing the running IV.
func (sec *SecurityContext) fipsDecrypt(body []byte) error {
	block, err := des.NewTripleDESCipher(sec.DecryptKey)
	if err != nil {
		return fmt.Errorf("rdp: fips decrypt cipher: %w", err)
	}
	if len(body)%8 != 0 {
		return fmt.Errorf("rdp: fips decrypt: body length %d not a multiple of 8: %w", len(body), ErrFrameMalformed)
	}
	mode := cipher.NewCBCDecrypter(block, sec.FIPSIVDecrypt[:])
	var nextIV [8]byte
	copy(nextIV[:], body[len(body)-8:])
	mode.CryptBlocks(body, body)
	copy(sec.FIPSIVDecrypt[:], nextIV[:])
	return nil
}

// decryptFIPSBody decodes a FIPS security block (spec.md §4.3: a 4-byte
// header — length, version, pad — followed by an 8-byte HMAC-SHA1
// signature and the 3DES-CBC ciphertext) and returns the verified
// plaintext. A signature mismatch is fatal, unlike the legacy MAC path
// (spec.md §4.3/§7 kind 3 vs §9 design note).
func (s *Session) decryptFIPSBody(body []byte) ([]byte, error) {
	if len(body) < fipsHeaderLength+fipsSigLength {
		return nil, fmt.Errorf("rdp: fips header: %w", ErrShortRead)
	}
	pad := int(body[3])
	var sig [8]byte
	copy(sig[:], body[fipsHeaderLength:fipsHeaderLength+fipsSigLength])
	ciphertext := body[fipsHeaderLength+fipsSigLength:]

	if len(ciphertext) == 0 || len(ciphertext)%8 != 0 || pad > 8 || pad > len(ciphertext) {
		return nil, fmt.Errorf("rdp: fips ciphertext length: %w", ErrFrameMalformed)
	}

	if err := s.Security.fipsDecrypt(ciphertext); err != nil {
		return nil, fmt.Errorf("rdp: fips decrypt: %w", err)
	}

	plain := ciphertext[:len(ciphertext)-pad]
	expected := s.Security.fipsSign(plain)
	if subtle.ConstantTimeCompare(expected[:], sig[:]) != 1 {
		s.Recorder.OnDecryptFailure()
		return nil, fmt.Errorf("rdp: fips signature mismatch: %w", ErrFIPSCrypto)
	}

	return plain, nil
}

// InitLegacyCiphers installs fresh RC4 keystreams for both directions.
// Key derivation itself (from the handshake's random values) is out of
// scope per spec.md Non-goals; callers supply the already-derived keys.
func (sec *SecurityContext) InitLegacyCiphers() error {
	enc, err := rc4.NewCipher(sec.EncryptKey) //nolint:gosec // protocol-mandated
	if err != nil {
		return fmt.Errorf("rdp: init encrypt cipher: %w", err)
	}
	dec, err := rc4.NewCipher(sec.DecryptKey) //nolint:gosec // protocol-mandated
	if err != nil {
		return fmt.Errorf("rdp: init decrypt cipher: %w", err)
	}
	sec.encryptCipher = enc
	sec.decryptCipher = dec
	return nil
}
