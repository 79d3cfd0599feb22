package model

// Audit scan statuses.
const (
	ScanIdle      = "idle"
	ScanComplete  = "complete"
	ScanSuspended = "suspended"
)

// ScanCursor is the persisted progress marker of a full-catalog audit
// scan. It survives across bounded-time invocations and is deleted on
// completion or explicit reset.
type ScanCursor struct {
	ScrollID string `json:"scroll_id"`
	Total    int    `json:"total"`
	Fetched  int    `json:"fetched"`
}

// ScanResult summarizes one audit scanner invocation.
type ScanResult struct {
	Status    string `json:"status"`
	Pages     int    `json:"pages"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// RecordEntry is one row of a per-topic record table (orders,
// questions, payments, messages, shipments) or of the raw-notification
// table for unrecognized topics.
type RecordEntry struct {
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
	Payload  []byte `json:"payload"`
}

// ErrorEntry is one row of the API errors table.
type ErrorEntry struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	Message  string `json:"message"`
	Detail   string `json:"detail"`
}
