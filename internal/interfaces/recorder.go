package interfaces

import "github.com/ternarybob/clavis/internal/models"

// RunRecorder collects the ordered error log for one catalog run. Entries
// keep their discovery order, which is part of the published artifact.
type RunRecorder interface {
	// Errorf records an error-severity entry
	Errorf(format string, args ...any)

	// Warningf records a warning-severity entry
	Warningf(format string, args ...any)

	// Entries returns the recorded entries in discovery order
	Entries() []models.ErrorLogEntry

	// Merge appends another recorder's entries onto this one
	Merge(entries []models.ErrorLogEntry)

	// Reset clears the recorder for a new run
	Reset()
}
