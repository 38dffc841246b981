// Package receipt provides stable evidence artifacts for audit/compliance.
package receipt

// ReceiptSchemaVersion current
const ReceiptSchemaVersion = "1.0"

// Receipt structure
type Receipt struct {
	SchemaVersion string          `json:"schema_version"`
	OpID          string          `json:"op_id"`
	TsStart       string          `json:"ts_start"`
	TsEnd         string          `json:"ts_end"`
	Command       string          `json:"command"`
	Args          []string        `json:"args"`
	ArgsRedacted  bool            `json:"args_redacted,omitempty"` // true if any args were sanitized
	Result        Result          `json:"result"`
	Profile       *ProfileRef     `json:"profile,omitempty"`
	Target        *TargetSummary  `json:"target,omitempty"`
	Audit         *AuditSummary   `json:"audit,omitempty"`
}

// Result status
type Result struct {
	Status string `json:"status"` // "success" or "fail"
	Error  string `json:"error,omitempty"`
}

// ProfileRef identifies the resolved policy document that drove the run.
type ProfileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Level  string `json:"level,omitempty"`
}

// TargetSummary identifies the audited machine.
type TargetSummary struct {
	Host      string `json:"host,omitempty"` // empty for local runs
	Transport string `json:"transport"`      // local|ssh
	OSID      string `json:"os_id,omitempty"`
	OSVersion string `json:"os_version,omitempty"`
}

// AuditSummary condenses the run outcome.
type AuditSummary struct {
	ChecksTotal int            `json:"checks_total"`
	Counts      map[string]int `json:"status_counts,omitempty"`
	Score       float64        `json:"score"`
	Coverage    float64        `json:"coverage"`
	ExitCode    int            `json:"exit_code"`
	EvidenceDir string         `json:"evidence_dir,omitempty"`
}
