package models

// Severity levels for run log entries.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ErrorLogEntry is one published run log entry. The message carries an
// "Error: " or "Warning: " prefix matching its severity.
type ErrorLogEntry struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}
