package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatConnection renders a connectionResult in the requested format.
func formatConnection(r connectionResult, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatConnectionJSON(r)
	case formatTable:
		return formatConnectionTable(r), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatConnectionTable(r connectionResult) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Address:\t%s\n", r.Addr)
	fmt.Fprintf(w, "Encryption Method:\t%s\n", r.EncryptionMethod)
	fmt.Fprintf(w, "Final Phase:\t%s\n", r.FinalPhase)
	fmt.Fprintf(w, "Disconnected:\t%t\n", r.Disconnected)
	fmt.Fprintf(w, "Error Info:\t%d\n", r.ErrorInfo)
	if r.RunError != "" {
		fmt.Fprintf(w, "Run Error:\t%s\n", r.RunError)
	}

	_ = w.Flush()

	return buf.String()
}

func formatConnectionJSON(r connectionResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal connection result to JSON: %w", err)
	}

	return string(data), nil
}
