// -----------------------------------------------------------------------
// Last Modified: Tuesday, 14th July 2026 9:03:41 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package errorlog

import (
	"fmt"
	"sync"
	"time"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// Recorder collects the ordered error log for a catalog run. Every entry
// is also mirrored to the arbor logger and, when configured, to the
// NDJSON anomaly feed for machine consumption. The entry list itself is
// part of the published catalog, so its order must be stable.
type Recorder struct {
	mu      sync.Mutex
	entries []models.ErrorLogEntry
	logger  arbor.ILogger
	anomaly *plog.Logger
}

// Compile-time assertion
var _ interfaces.RunRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder mirroring to logger and an optional
// anomaly feed.
func NewRecorder(logger arbor.ILogger, anomaly *plog.Logger) *Recorder {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Recorder{
		logger:  logger,
		anomaly: anomaly,
	}
}

// OpenAnomalyLog opens the NDJSON anomaly feed at path. An empty path
// disables the feed.
func OpenAnomalyLog(path string) *plog.Logger {
	if path == "" {
		return nil
	}
	return &plog.Logger{
		Level:      plog.InfoLevel,
		TimeFormat: time.RFC3339,
		Writer: &plog.FileWriter{
			Filename:     path,
			MaxSize:      50 * 1024 * 1024,
			MaxBackups:   2,
			EnsureFolder: true,
			LocalTime:    true,
		},
	}
}

// Errorf records an error-severity entry
func (r *Recorder) Errorf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	r.mu.Lock()
	r.entries = append(r.entries, models.ErrorLogEntry{
		Severity: models.SeverityError,
		Message:  "Error: " + message,
	})
	r.mu.Unlock()

	r.logger.Error().Msg(message)
	if r.anomaly != nil {
		r.anomaly.Error().Str("severity", models.SeverityError).Msg(message)
	}
}

// Warningf records a warning-severity entry
func (r *Recorder) Warningf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	r.mu.Lock()
	r.entries = append(r.entries, models.ErrorLogEntry{
		Severity: models.SeverityWarning,
		Message:  "Warning: " + message,
	})
	r.mu.Unlock()

	r.logger.Warn().Msg(message)
	if r.anomaly != nil {
		r.anomaly.Warn().Str("severity", models.SeverityWarning).Msg(message)
	}
}

// Entries returns the recorded entries in discovery order
func (r *Recorder) Entries() []models.ErrorLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ErrorLogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Merge appends another recorder's entries onto this one
func (r *Recorder) Merge(entries []models.ErrorLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
}

// Reset clears the recorder for a new run
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Counts returns the number of error and warning entries
func (r *Recorder) Counts() (errors int, warnings int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		if entry.Severity == models.SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return errors, warnings
}
