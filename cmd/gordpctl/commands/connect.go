package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/gordp/internal/config"
	"github.com/dantte-lp/gordp/internal/rdp"
	"github.com/dantte-lp/gordp/internal/transport"
)

// errAddrRequired indicates the connect command was invoked with no target.
var errAddrRequired = errors.New("server address argument is required")

func connectCmd() *cobra.Command {
	var (
		encryptionMethod       string
		connectTimeout         time.Duration
		allowInsecureLegacyMAC bool
		secureChecksum         bool
	)

	cmd := &cobra.Command{
		Use:   "connect <host:port>",
		Short: "Dial an RDP server and drive the connection to Active or failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			addr := args[0]
			if addr == "" {
				return errAddrRequired
			}

			if !config.ValidEncryptionMethods[encryptionMethod] {
				return fmt.Errorf("connect %s: %w %q", addr, config.ErrInvalidEncryptionMethod, encryptionMethod)
			}

			result, err := runConnection(addr, encryptionMethod, connectTimeout, allowInsecureLegacyMAC, secureChecksum)
			if err != nil {
				return fmt.Errorf("connect %s: %w", addr, err)
			}

			out, err := formatConnection(result, outputFormat)
			if err != nil {
				return fmt.Errorf("format result: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&encryptionMethod, "encryption-method", "128bit",
		"cipher suite: none, 40bit, 56bit, 128bit, fips")
	flags.DurationVar(&connectTimeout, "timeout", 10*time.Second, "TCP dial timeout")
	flags.BoolVar(&allowInsecureLegacyMAC, "allow-insecure-legacy-mac", false,
		"tolerate a legacy MAC mismatch instead of treating it as fatal")
	flags.BoolVar(&secureChecksum, "secure-checksum", true,
		"use the salted MAC variant in legacy security mode")

	return cmd
}

// connectionResult summarizes a single connect invocation's outcome for
// the format layer.
type connectionResult struct {
	Addr             string `json:"addr"`
	EncryptionMethod string `json:"encryption_method"`
	FinalPhase       string `json:"final_phase"`
	Disconnected     bool   `json:"disconnected"`
	ErrorInfo        uint32 `json:"error_info"`
	RunError         string `json:"run_error,omitempty"`
}

// runConnection dials addr, drives the Session's receive loop until it
// disconnects or the process receives SIGINT/SIGTERM, and reports the
// outcome. Handshake is left nil (spec.md Non-goals): frames during the
// pre-FINALIZATION phases are accepted and silently dropped, so a real
// server will typically be seen to stall in PhaseNego absent an external
// negotiation layer supplying Session.Handshake.
func runConnection(
	addr, encryptionMethod string,
	timeout time.Duration,
	allowInsecureLegacyMAC, secureChecksum bool,
) (connectionResult, error) {
	tc, err := transport.Dial(addr, timeout)
	if err != nil {
		return connectionResult{}, fmt.Errorf("dial: %w", err)
	}
	defer tc.Close()

	session := rdp.NewSession(tc)
	method := config.EncryptionMethod(encryptionMethod)
	session.Settings.Encryption = method != rdp.EncryptionMethodNone
	session.Settings.EncryptionMethod = method
	session.Security.AllowInsecureLegacyMAC = allowInsecureLegacyMAC
	session.Security.SecureChecksum = secureChecksum

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- session.Run()
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		session.Disconnect("interrupted")
		_ = tc.Close() // unblocks Run's pending transport Read
		runErr = <-done
	}

	result := connectionResult{
		Addr:             addr,
		EncryptionMethod: encryptionMethod,
		FinalPhase:       session.Phase().String(),
		Disconnected:     session.Disconnected(),
		ErrorInfo:        session.ErrorInfo(),
	}
	if runErr != nil {
		result.RunError = runErr.Error()
	}

	return result, nil
}
