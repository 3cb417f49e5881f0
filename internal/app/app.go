// -----------------------------------------------------------------------
// Last Modified: Wednesday, 12th August 2026 2:41:09 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/firmware"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/services/catalog"
	"github.com/ternarybob/clavis/internal/services/preprocess"
	"github.com/ternarybob/clavis/internal/services/scheduler"
	"github.com/ternarybob/clavis/internal/services/watcher"
	"github.com/ternarybob/clavis/internal/storage"
)

// rebuildJobName identifies the scheduled catalog build
const rebuildJobName = "catalog-rebuild"

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Store     *storage.Store
	Tree      interfaces.SourceTree
	Catalog   interfaces.CatalogService
	Scheduler *scheduler.Service
	Watcher   *watcher.Service

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New initializes the application with all dependencies
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if logger == nil {
		logger = common.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initTree(); err != nil {
		cancel()
		return nil, err
	}

	store, err := storage.NewStore(logger, config)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.Store = store

	if err := app.initServices(); err != nil {
		cancel()
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("Failed to close storage after startup error")
		}
		return nil, err
	}

	return app, nil
}

// initTree prepares the firmware checkout and opens read access to it
func (a *App) initTree() error {
	if a.Config.Tree.CheckoutOnStart {
		checkout := firmware.NewCheckout(a.Logger, &a.Config.Tree)
		if err := checkout.Ensure(a.ctx); err != nil {
			return fmt.Errorf("failed to prepare firmware tree: %w", err)
		}
	}

	tree, err := firmware.NewTree(a.Logger, &a.Config.Tree)
	if err != nil {
		return err
	}
	a.Tree = tree

	a.Logger.Debug().
		Str("path", tree.Root()).
		Str("branch", a.Config.Tree.GitBranch).
		Msg("Firmware tree opened")

	return nil
}

// initServices initializes the build pipeline and the background services
// around it. The watcher and the scheduler only exist when their config
// sections enable them, so single-shot runs stay free of background work.
func (a *App) initServices() error {
	pre := preprocess.NewClang(&a.Config.Extract, a.Logger)
	a.Catalog = catalog.NewBuilder(a.Config, a.Tree, a.Store.Publisher, pre, a.Logger)
	a.Logger.Debug().
		Int("concurrency", a.Config.Extract.Concurrency).
		Bool("extract_keymaps", a.Config.Extract.ExtractKeymaps).
		Msg("Catalog builder initialized")

	a.Scheduler = scheduler.NewService(a.Logger)

	// RunOnStart needs the job registered even when the cron loop stays off.
	if a.Config.Schedule.Enabled || a.Config.Schedule.RunOnStart {
		if err := a.Scheduler.RegisterJob(rebuildJobName, a.Config.Schedule.Cron, a.rebuildJob); err != nil {
			return fmt.Errorf("failed to register the rebuild job: %w", err)
		}
	}

	if a.Config.Schedule.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		a.Logger.Info().
			Str("schedule", a.Config.Schedule.Cron).
			Bool("always", a.Config.Schedule.Always).
			Msg("Catalog rebuild scheduled")
	}

	if a.Config.Watcher.Enabled {
		a.Watcher = watcher.NewService(a.Config.Watcher, a.Store.Publisher, nil, a.Logger)
		if err := a.Watcher.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		a.Logger.Info().
			Str("repository", fmt.Sprintf("%s/%s", a.Config.Watcher.Owner, a.Config.Watcher.Repo)).
			Str("branch", a.Config.Watcher.Branch).
			Msg("Revision watcher started")
	}

	if a.Config.Schedule.RunOnStart {
		if err := a.Scheduler.TriggerJob(rebuildJobName); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to trigger the startup build")
		}
	}

	return nil
}

// rebuildJob runs one catalog build when a build is due. Unless the
// schedule says to always rebuild, the update-needed flag raised by the
// revision watcher decides: an unchanged upstream means no work.
func (a *App) rebuildJob() error {
	if !a.Config.Schedule.Always {
		due, err := a.updateNeeded()
		if err != nil {
			return err
		}
		if !due {
			a.Logger.Info().Msg("Published catalog is current, skipping rebuild")
			return nil
		}
	}

	if _, err := a.Catalog.Run(a.ctx); err != nil {
		return err
	}

	// Each build rewrites the same multi-megabyte values, so compact
	// the value log while the store is quiet.
	if err := a.Store.Maintain(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage maintenance failed")
	}
	return nil
}

// updateNeeded reads the flag the watcher raises. A store that has never
// completed a run has no flag yet, and the first build is always due.
func (a *App) updateNeeded() (bool, error) {
	var needed bool
	err := a.Store.Publisher.GetJSON(a.ctx, storage.KeyUpdateNeeded, &needed)
	switch {
	case err == nil:
		return needed, nil
	case errors.Is(err, interfaces.ErrKeyNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("failed to read the update flag: %w", err)
	}
}

// RunOnce performs a single catalog build in the foreground
func (a *App) RunOnce(ctx context.Context) (*interfaces.RunReport, error) {
	return a.Catalog.Run(ctx)
}

// BuildKeyboard extracts one keyboard without writing to the store
func (a *App) BuildKeyboard(ctx context.Context, keyboard string) (*models.KeyboardRecord, error) {
	return a.Catalog.BuildOne(ctx, keyboard)
}

// Close shuts the application down in dependency order: stop producing
// work, wait for in-flight work, then close storage.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.Watcher != nil {
		a.Watcher.Stop()
		a.Logger.Info().Msg("Revision watcher stopped")
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
