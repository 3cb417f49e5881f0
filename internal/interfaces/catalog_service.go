// -----------------------------------------------------------------------
// Last Modified: Friday, 3rd July 2026 4:18:47 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/clavis/internal/models"
)

// RunReport summarizes one catalog build.
type RunReport struct {
	RunID     string
	GitHash   string
	Keyboards int
	Failed    int
	Errors    int
	Warnings  int
	Duration  time.Duration
}

// CatalogService builds keyboard metadata from the source tree and
// publishes it to the key/value store.
type CatalogService interface {
	// Run rebuilds the complete catalog
	Run(ctx context.Context) (*RunReport, error)

	// BuildOne extracts a single keyboard without publishing aggregates.
	// Used by the debug CLI path.
	BuildOne(ctx context.Context, keyboard string) (*models.KeyboardRecord, error)
}

// SchedulerService manages cron-based catalog rebuilds
type SchedulerService interface {
	// Start begins the cron loop
	Start() error

	// Stop halts the cron loop
	Stop() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// RegisterJob registers a named job with a cron schedule
	RegisterJob(name string, schedule string, handler func() error) error

	// JobStatus returns the status of a registered job
	JobStatus(name string) (*ScheduledJobStatus, error)
}

// ScheduledJobStatus reports one registered job.
type ScheduledJobStatus struct {
	Name      string
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}
