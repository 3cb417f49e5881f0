// -----------------------------------------------------------------------
// Last Modified: Tuesday, 4th August 2026 3:17:52 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/services/classify"
	"github.com/ternarybob/clavis/internal/services/errorlog"
	"github.com/ternarybob/clavis/internal/services/keymap"
	"github.com/ternarybob/clavis/internal/services/layout"
	"github.com/ternarybob/clavis/internal/services/manifest"
	"github.com/ternarybob/clavis/internal/services/readme"
	"github.com/ternarybob/clavis/internal/services/rules"
	"github.com/ternarybob/clavis/internal/services/usb"
	"github.com/ternarybob/clavis/internal/services/workers"
	"github.com/ternarybob/clavis/internal/storage"
)

// Builder walks the firmware tree, runs the extraction pipeline for every
// keyboard and publishes the catalog artifacts. It implements
// interfaces.CatalogService.
//
// Keyboards are processed concurrently but each worker records onto its
// own recorder, and the per-keyboard entries are merged back in sorted
// keyboard order once the pool drains. The published error log therefore
// reads the same no matter how the workers were scheduled.
type Builder struct {
	config    *common.Config
	tree      interfaces.SourceTree
	publisher interfaces.Publisher
	pre       interfaces.Preprocessor
	profiles  classify.Profiles
	rec       *errorlog.Recorder
	anomaly   *plog.Logger
	logger    arbor.ILogger

	mu      sync.Mutex
	running bool
}

var _ interfaces.CatalogService = (*Builder)(nil)

// NewBuilder creates a catalog builder over tree, publishing to publisher
// and expanding keymap sources through pre.
func NewBuilder(config *common.Config, tree interfaces.SourceTree, publisher interfaces.Publisher, pre interfaces.Preprocessor, logger arbor.ILogger) *Builder {
	if logger == nil {
		logger = common.GetLogger()
	}

	profiles, err := classify.LoadProfiles(config.Extract.ProfilesFile)
	if err != nil {
		logger.Warn().Err(err).Msg("Falling back to the built-in processor profiles")
	}

	anomaly := errorlog.OpenAnomalyLog(config.Logging.AnomalyFile)

	return &Builder{
		config:    config,
		tree:      tree,
		publisher: publisher,
		pre:       pre,
		profiles:  profiles,
		rec:       errorlog.NewRecorder(logger, anomaly),
		anomaly:   anomaly,
		logger:    logger,
	}
}

// Run rebuilds the complete catalog. Keyboards that fail are dropped from
// the published artifacts and counted in the report; only infrastructure
// failures abort the run.
func (b *Builder) Run(ctx context.Context) (*interfaces.RunReport, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, fmt.Errorf("a catalog run is already in progress")
	}
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	start := time.Now()
	runID := common.NewRunID()
	b.rec.Reset()

	b.logger.Info().
		Str("run_id", runID).
		Str("tree", b.tree.Root()).
		Msg("Starting catalog run")

	// Lower the flag first so a push landing mid-run still triggers the
	// next scheduled rebuild.
	if err := b.publisher.SetJSON(ctx, storage.KeyUpdateNeeded, false); err != nil {
		return nil, fmt.Errorf("failed to clear the update flag: %w", err)
	}

	keyboards, err := b.tree.Keyboards()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate keyboards: %w", err)
	}

	startedAt := time.Now().Format(models.StampTimeFormat)
	cache := layout.NewHeaderCache()

	results := make([]*keyboardResult, len(keyboards))
	pool := workers.NewPool(ctx, b.config.Extract.Concurrency, b.logger)
	pool.Start()
	for i, keyboard := range keyboards {
		i, keyboard := i, keyboard
		if !pool.Submit(func(ctx context.Context) {
			results[i] = b.processKeyboard(ctx, keyboard, cache, true)
		}) {
			break
		}
	}
	pool.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("catalog run aborted: %w", err)
	}

	catalog := &models.Catalog{
		LastUpdated: startedAt,
		Keyboards:   make(map[string]*models.KeyboardRecord, len(keyboards)),
	}
	registry := make(models.UsbRegistry)
	list := make([]string, 0, len(keyboards))
	failed := 0

	for _, result := range results {
		if result == nil {
			continue
		}
		b.rec.Merge(result.entries)
		if result.record == nil {
			failed++
			continue
		}
		list = append(list, result.keyboard)
		catalog.Keyboards[result.keyboard] = result.record
		registry.Add(result.usb)
	}

	stamp := models.UpdateStamp{
		GitHash:     b.tree.Revision(),
		LastUpdated: time.Now().Format(models.StampTimeFormat),
	}
	if err := b.publishAggregates(ctx, list, catalog, registry, stamp); err != nil {
		return nil, err
	}

	errors, warnings := b.rec.Counts()
	report := &interfaces.RunReport{
		RunID:     runID,
		GitHash:   stamp.GitHash,
		Keyboards: len(list),
		Failed:    failed,
		Errors:    errors,
		Warnings:  warnings,
		Duration:  time.Since(start),
	}

	b.logger.Info().
		Str("run_id", runID).
		Str("git_hash", report.GitHash).
		Int("keyboards", report.Keyboards).
		Int("failed", report.Failed).
		Int("errors", report.Errors).
		Int("warnings", report.Warnings).
		Str("duration", report.Duration.Round(time.Millisecond).String()).
		Msg("Catalog run complete")

	return report, nil
}

// BuildOne extracts a single keyboard and returns its record without
// writing anything to the store, so the debug CLI can run against a live
// database.
func (b *Builder) BuildOne(ctx context.Context, keyboard string) (*models.KeyboardRecord, error) {
	if !b.tree.Exists(b.tree.KeyboardPath(keyboard)) {
		return nil, fmt.Errorf("keyboard %s not found under %s", keyboard, b.tree.Root())
	}

	result := b.processKeyboard(ctx, keyboard, layout.NewHeaderCache(), false)
	if result.record == nil {
		return nil, fmt.Errorf("failed to build keyboard %s", keyboard)
	}
	return result.record, nil
}

// publishAggregates writes the run-level artifacts. The per-keyboard
// records are already in the store by this point, so a consumer that
// picks up the new list finds every keyboard it names.
func (b *Builder) publishAggregates(ctx context.Context, list []string, catalog *models.Catalog, registry models.UsbRegistry, stamp models.UpdateStamp) error {
	for _, publication := range []struct {
		key   string
		value any
	}{
		{storage.KeyKeyboardList, list},
		{storage.KeyCatalog, catalog},
		{storage.KeyUsbRegistry, registry},
		{storage.KeyUpdateStamp, stamp},
		{storage.KeyErrorLog, b.rec.Entries()},
	} {
		if err := b.publisher.SetJSON(ctx, publication.key, publication.value); err != nil {
			return fmt.Errorf("failed to publish %s: %w", publication.key, err)
		}
	}
	return nil
}

// keyboardResult carries one keyboard's artifacts out of a worker. A nil
// record marks a failed keyboard; its log entries still join the run log.
type keyboardResult struct {
	keyboard string
	record   *models.KeyboardRecord
	usb      *models.UsbEntry
	entries  []models.ErrorLogEntry
}

// processKeyboard runs the full pipeline for one keyboard on its own
// recorder, so entries from concurrent keyboards never interleave. All
// failure containment lives here: a panic or a storage error marks the
// keyboard failed and lands in the error log with the Go type standing in
// for the exception class.
func (b *Builder) processKeyboard(ctx context.Context, keyboard string, cache *layout.HeaderCache, publish bool) (result *keyboardResult) {
	rec := errorlog.NewRecorder(b.logger, b.anomaly)
	state := models.NewBuildState(keyboard)
	result = &keyboardResult{keyboard: keyboard}

	defer func() {
		if cause := recover(); cause != nil {
			b.failKeyboard(state, rec, keyboard, cause)
			result.record = nil
			result.usb = nil
		}
		result.entries = rec.Entries()
	}()

	record, entry, err := b.buildRecord(ctx, keyboard, state, rec, cache, publish)
	if err != nil {
		b.failKeyboard(state, rec, keyboard, err)
		return result
	}

	result.record = record
	result.usb = entry
	return result
}

func (b *Builder) buildRecord(ctx context.Context, keyboard string, state *models.BuildState, rec interfaces.RunRecorder, cache *layout.HeaderCache, publish bool) (*models.KeyboardRecord, *models.UsbEntry, error) {
	record := models.NewKeyboardRecord(keyboard)

	resolver := rules.NewResolver(b.tree, rec, b.logger)
	rulesMk, configH := resolver.Resolve(keyboard)
	b.advance(state, models.StageConfigResolved)

	extractor := layout.NewExtractor(b.tree, rec, cache, b.logger)
	for name, found := range extractor.DiscoverAll(keyboard, rulesMk) {
		// kc variants take keycode-prefixed arguments, skip them
		if strings.HasPrefix(name, "LAYOUT_kc") {
			continue
		}
		record.Layouts[name] = found
	}
	b.advance(state, models.StageLayoutsDiscovered)

	manifest.NewMerger(b.tree, rec, b.logger).Apply(keyboard, rulesMk, record)
	b.advance(state, models.StageManifestMerged)

	// The USB identity comes first: classification reads the manufacturer
	// off the record for its bootloader fallback.
	entry := usb.NewBuilder(b.logger).BuildEntry(record, configH)
	classify.NewClassifier(&b.profiles, rec, b.logger).Classify(record, rulesMk)
	record.Identifier = usb.Identifier(record)
	b.advance(state, models.StageClassified)

	readmes := readme.NewService(b.tree, rec, b.logger)
	if err := b.storeReadme(ctx, readmes, rec, record, publish); err != nil {
		return nil, nil, err
	}

	if b.config.Extract.ExtractKeymaps {
		if err := b.storeKeymaps(ctx, keyboard, record, readmes, rec, publish); err != nil {
			return nil, nil, err
		}
	}
	b.advance(state, models.StageKeymapsEnumerated)

	if publish {
		if err := b.publisher.SetJSON(ctx, storage.KeyboardKey(keyboard), record); err != nil {
			return nil, nil, err
		}
	}
	b.advance(state, models.StagePublished)

	return record, entry, nil
}

// storeReadme looks up the keyboard's readme, walking from the top-level
// folder down so a revision without its own file inherits its parent's.
func (b *Builder) storeReadme(ctx context.Context, readmes *readme.Service, rec interfaces.RunRecorder, record *models.KeyboardRecord, publish bool) error {
	text, ok := readmes.ForKeyboard(record.Folder)
	if !ok {
		return nil
	}
	record.Readme = true

	if !publish {
		return nil
	}
	if err := b.publisher.Set(ctx, storage.ReadmeKey(record.Folder), text); err != nil {
		return err
	}
	if b.config.Extract.RenderReadmeHTML {
		html, err := readmes.RenderHTML(text)
		if err != nil {
			rec.Warningf("%s: Could not render readme: %v", record.Folder, err)
			return nil
		}
		return b.publisher.Set(ctx, storage.ReadmeHTMLKey(record.Folder), html)
	}
	return nil
}

// storeKeymaps extracts every keymap under the keyboard. A keymap that
// fails to extract is logged and skipped; the keyboard itself survives.
func (b *Builder) storeKeymaps(ctx context.Context, keyboard string, record *models.KeyboardRecord, readmes *readme.Service, rec interfaces.RunRecorder, publish bool) error {
	extractor := keymap.NewExtractor(b.tree, b.pre, rec, b.logger)

	for _, name := range b.tree.Keymaps(keyboard) {
		found, err := extractor.Extract(ctx, keyboard, name)
		if err != nil {
			rec.Errorf("%s: Could not extract keymap %s: %v", keyboard, name, err)
			continue
		}
		record.Keymaps = append(record.Keymaps, name)

		if !publish {
			continue
		}
		if err := b.publisher.SetJSON(ctx, storage.KeymapKey(keyboard, name), found); err != nil {
			return err
		}

		text, ok := readmes.ForKeymap(keyboard, name)
		if !ok {
			continue
		}
		if err := b.publisher.Set(ctx, storage.KeymapReadmeKey(keyboard, name), text); err != nil {
			return err
		}
		if b.config.Extract.RenderReadmeHTML {
			html, err := readmes.RenderHTML(text)
			if err != nil {
				rec.Warningf("%s: Could not render keymap %s readme: %v", keyboard, name, err)
				continue
			}
			if err := b.publisher.Set(ctx, storage.KeymapReadmeHTMLKey(keyboard, name), html); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *Builder) failKeyboard(state *models.BuildState, rec interfaces.RunRecorder, keyboard string, cause any) {
	category, message := describeFailure(cause)
	rec.Errorf("Uncaught exception while processing keyboard %s! %s: %s", keyboard, category, message)
	b.logger.Error().
		Str("keyboard", keyboard).
		Str("stage", state.Stage.String()).
		Msg("Keyboard processing failed")
	state.Fail()
}

// advance moves the stage machine. Transitions here are statically in
// order, so a refusal is a programming error worth a log line.
func (b *Builder) advance(state *models.BuildState, next models.BuildStage) {
	if err := state.Advance(next); err != nil {
		b.logger.Warn().Err(err).Msg("Stage transition refused")
	}
}

// describeFailure renders a failure cause as an exception-style class
// name and message for the error log.
func describeFailure(cause any) (category string, message string) {
	if err, ok := cause.(error); ok {
		return strings.TrimPrefix(fmt.Sprintf("%T", err), "*"), err.Error()
	}
	return "panic", fmt.Sprint(cause)
}
