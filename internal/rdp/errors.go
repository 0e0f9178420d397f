package rdp

import "errors"

// Sentinel errors for the error kinds enumerated in spec.md §7. Each is
// wrapped with a stage-identifying prefix at the call site (%w), matching
// the teacher's sentinel-error style in bfd/packet.go and bfd/auth.go.
var (
	// ErrFrameMalformed covers any read that exceeds a declared length,
	// fails PER decode, or produces an implausible field (§7 kind 1).
	ErrFrameMalformed = errors.New("rdp: frame malformed")

	// ErrFIPSCrypto covers FIPS decryption or signature verification
	// failure; always fatal (§7 kind 2).
	ErrFIPSCrypto = errors.New("rdp: FIPS crypto failure")

	// ErrLegacyMACMismatch is returned by the slow-path and fast-path
	// receive paths when a legacy MAC does not verify and
	// AllowInsecureLegacyMAC is false (the default); with
	// AllowInsecureLegacyMAC set, the mismatch is only reported to the
	// Recorder (§7 kind 3, §9 Security note).
	ErrLegacyMACMismatch = errors.New("rdp: legacy MAC mismatch")

	// ErrDecompressFailed covers Decompressor failures (§7 kind 4).
	ErrDecompressFailed = errors.New("rdp: decompress failed")

	// ErrPhaseMismatch covers a missing phase handler or handler refusal
	// (§7 kind 5).
	ErrPhaseMismatch = errors.New("rdp: connection phase mismatch")

	// ErrDisconnected is returned by receive operations once the
	// disconnect latch has been set.
	ErrDisconnected = errors.New("rdp: session disconnected")
)
