package rdp

import "fmt"

// dataPDUTypeNames maps pduType2 values to human-readable names for
// diagnostic logging only — it has no bearing on wire behavior.
//
// original_source/libfreerdp-core/rdp.c carries a DATA_PDU_TYPE_STRINGS
// table with a missing comma after "Monitor Layout" (index 0x37), which
// concatenates it with the following empty string literals and leaves
// indices 0x38-0x40 resolving to the same "Monitor Layout..." string
// (spec.md §9 Open Questions). This table is built correctly instead:
// one name per index, with an explicit "Unknown(N)" fallback.
var dataPDUTypeNames = map[uint8]string{
	PDUType2Update:          "Update",
	PDUType2Control:         "Control",
	PDUType2Pointer:         "Pointer",
	PDUType2Input:           "Input",
	PDUType2Synchronize:     "Synchronize",
	PDUType2RefreshRect:     "Refresh Rect",
	PDUType2PlaySound:       "Play Sound",
	PDUType2SuppressOutput:  "Suppress Output",
	PDUType2ShutdownRequest: "Shutdown Request",
	PDUType2ShutdownDenied:  "Shutdown Denied",
	PDUType2SaveSessionInfo: "Save Session Info",
	PDUType2FontList:        "Font List",
	PDUType2FontMap:         "Font Map",
	PDUType2SetErrorInfo:    "Set Error Info",
	PDUType2MonitorLayout:   "Monitor Layout",
	PDUType2FrameAcknowledge: "Frame Acknowledge",
}

// DataPDUTypeName returns the human-readable name for a Share Data pduType2
// value, or "Unknown(N)" if it is not recognized.
func DataPDUTypeName(t uint8) string {
	if name, ok := dataPDUTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", t)
}

// shareControlTypeNames maps Share Control pduType values (already masked to
// the low nibble) to human-readable names.
var shareControlTypeNames = map[ShareControlType]string{
	PDUTypeDemandActive:      "Demand Active",
	PDUTypeConfirmActive:     "Confirm Active",
	PDUTypeDeactivateAll:     "Deactivate All",
	PDUTypeData:              "Data",
	PDUTypeServerRedirection: "Server Redirection",
}

// ShareControlTypeName returns the human-readable name for a Share Control
// pduType value, or "Unknown(N)" if it is not recognized.
func ShareControlTypeName(t ShareControlType) string {
	if name, ok := shareControlTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", t)
}
