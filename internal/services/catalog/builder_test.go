package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/firmware"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/storage"
)

// memPublisher is a map-backed store for tests. setHooks lets a test
// inject a failure or a panic on a specific key.
type memPublisher struct {
	mu       sync.Mutex
	values   map[string]string
	setHooks map[string]func() error
}

func newMemPublisher() *memPublisher {
	return &memPublisher{
		values:   make(map[string]string),
		setHooks: make(map[string]func() error),
	}
}

func (p *memPublisher) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (p *memPublisher) GetJSON(ctx context.Context, key string, out any) error {
	value, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), out)
}

func (p *memPublisher) Set(ctx context.Context, key string, value string) error {
	if hook, ok := p.setHooks[key]; ok {
		if err := hook(); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *memPublisher) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.Set(ctx, key, string(data))
}

func (p *memPublisher) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(p.values, key)
	return nil
}

func (p *memPublisher) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return p.ListByPrefix(ctx, "")
}

func (p *memPublisher) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pairs := make([]interfaces.KeyValuePair, 0, len(p.values))
	for key, value := range p.values {
		if strings.HasPrefix(key, prefix) {
			pairs = append(pairs, interfaces.KeyValuePair{Key: key, Value: value})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, nil
}

func (p *memPublisher) DeleteAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = make(map[string]string)
	return nil
}

func (p *memPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

// fakePreprocessor hands back canned flattened text instead of shelling
// out to clang.
type fakePreprocessor struct {
	text string
	err  error
}

func (f *fakePreprocessor) Flatten(ctx context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

const flattenedKeymap = "constuint16_tPROGMEMkeymaps[][2][2]={[0]=LAYOUT(KC_A,KC_B)};"

func writeTreeFile(t *testing.T, root string, rel string, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func testConfig() *common.Config {
	config := common.NewDefaultConfig()
	config.Extract.Concurrency = 4
	config.Logging.AnomalyFile = ""
	return config
}

func newTestBuilder(t *testing.T, config *common.Config, pre interfaces.Preprocessor) (*Builder, *memPublisher, string) {
	t.Helper()
	root := t.TempDir()
	tree, err := firmware.NewTree(nil, &common.TreeConfig{Path: root})
	require.NoError(t, err)
	pub := newMemPublisher()
	return NewBuilder(config, tree, pub, pre, nil), pub, root
}

// seedTree writes two keyboards: a fully populated clueboard/66 and a
// bare folder that triggers the fallback and readme warnings.
func seedTree(t *testing.T, root string) {
	t.Helper()
	writeTreeFile(t, root, "keyboards/clueboard/66/rules.mk", "MCU = atmega32u4\n")
	writeTreeFile(t, root, "keyboards/clueboard/66/config.h", strings.Join([]string{
		"#define VENDOR_ID 0xC1ED",
		"#define PRODUCT_ID 0x2370",
		"#define DEVICE_VER 0x0001",
		"#define MANUFACTURER Clueboard",
	}, "\n")+"\n")
	writeTreeFile(t, root, "keyboards/clueboard/66/66.h", "#define LAYOUT(k00,k01) {k00,k01}\n")
	writeTreeFile(t, root, "keyboards/clueboard/66/info.json",
		`{"keyboard_name":"Clueboard 66%","url":"https://clueboard.co"}`)
	writeTreeFile(t, root, "keyboards/clueboard/66/readme.md", "# Clueboard 66\n")
	writeTreeFile(t, root, "keyboards/clueboard/66/keymaps/default/keymap.c", "// expanded by the preprocessor\n")
	writeTreeFile(t, root, "keyboards/clueboard/66/keymaps/default/readme.md", "The default keymap.\n")

	writeTreeFile(t, root, "keyboards/bare/rules.mk", "MCU = atmega32u4\n")
}

func TestBuilder_Run(t *testing.T) {
	builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{text: flattenedKeymap})
	seedTree(t, root)
	ctx := context.Background()

	require.NoError(t, pub.SetJSON(ctx, storage.KeyUpdateNeeded, true))

	report, err := builder.Run(ctx)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(report.RunID, "run_"))
	assert.Equal(t, "unknown", report.GitHash)
	assert.Equal(t, 2, report.Keyboards)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 2, report.Warnings)

	var list []string
	require.NoError(t, pub.GetJSON(ctx, storage.KeyKeyboardList, &list))
	assert.Equal(t, []string{"bare", "clueboard/66"}, list)

	var catalog models.Catalog
	require.NoError(t, pub.GetJSON(ctx, storage.KeyCatalog, &catalog))
	assert.NotEmpty(t, catalog.LastUpdated)
	require.Contains(t, catalog.Keyboards, "clueboard/66")
	require.Contains(t, catalog.Keyboards, "bare")

	record := catalog.Keyboards["clueboard/66"]
	assert.Equal(t, "Clueboard 66%", record.Name)
	assert.Equal(t, "clueboard/66", record.Folder)
	assert.Equal(t, "https://clueboard.co", record.URL)
	assert.Equal(t, "Clueboard", record.Manufacturer)
	assert.Equal(t, "0xC1ED:0x2370:0x0001", record.Identifier)
	assert.Equal(t, "atmega32u4", record.Processor)
	assert.Equal(t, "avr", record.ProcessorType)
	assert.Equal(t, "atmel-dfu", record.Bootloader)
	assert.Equal(t, "LUFA", record.Protocol)
	assert.Equal(t, []string{"default"}, record.Keymaps)
	assert.True(t, record.Readme)
	require.Contains(t, record.Layouts, "LAYOUT")
	assert.Equal(t, 2, record.Layouts["LAYOUT"].KeyCount)

	var registry models.UsbRegistry
	require.NoError(t, pub.GetJSON(ctx, storage.KeyUsbRegistry, &registry))
	require.Contains(t, registry, "0xC1ED")
	assert.Equal(t, "clueboard/66", registry["0xC1ED"]["0x2370"]["clueboard/66"].Keyboard)
	require.Contains(t, registry, "0xFEED")
	assert.Contains(t, registry["0xFEED"]["0x0000"], "bare")

	var stamp models.UpdateStamp
	require.NoError(t, pub.GetJSON(ctx, storage.KeyUpdateStamp, &stamp))
	assert.Equal(t, "unknown", stamp.GitHash)
	assert.NotEmpty(t, stamp.LastUpdated)

	var flag bool
	require.NoError(t, pub.GetJSON(ctx, storage.KeyUpdateNeeded, &flag))
	assert.False(t, flag, "the update flag must be lowered by a run")

	var entries []models.ErrorLogEntry
	require.NoError(t, pub.GetJSON(ctx, storage.KeyErrorLog, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Warning: bare: Falling back to searching for KEYMAP/LAYOUT macros.", entries[0].Message)
	assert.Equal(t, "Warning: bare does not have a readme.md.", entries[1].Message)

	var published models.KeyboardRecord
	require.NoError(t, pub.GetJSON(ctx, storage.KeyboardKey("clueboard/66"), &published))
	assert.Equal(t, "Clueboard 66%", published.Name)
	require.NoError(t, pub.GetJSON(ctx, storage.KeyboardKey("bare"), &published))
	assert.Equal(t, "bare", published.Name)

	var km models.KeymapRecord
	require.NoError(t, pub.GetJSON(ctx, storage.KeymapKey("clueboard/66", "default"), &km))
	assert.Equal(t, "LAYOUT", km.LayoutMacro)
	assert.Equal(t, [][]string{{"KC_A", "KC_B"}}, km.Layers)

	text, err := pub.Get(ctx, storage.ReadmeKey("clueboard/66"))
	require.NoError(t, err)
	assert.Equal(t, "# Clueboard 66\n", text)
	html, err := pub.Get(ctx, storage.ReadmeHTMLKey("clueboard/66"))
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	_, err = pub.Get(ctx, storage.KeymapReadmeKey("clueboard/66", "default"))
	assert.NoError(t, err)
	_, err = pub.Get(ctx, storage.KeymapReadmeHTMLKey("clueboard/66", "default"))
	assert.NoError(t, err)

	// A second run must reset the log instead of appending to it.
	report, err = builder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Warnings)
	require.NoError(t, pub.GetJSON(ctx, storage.KeyErrorLog, &entries))
	assert.Len(t, entries, 2)
}

// publishedContent captures every stored value, masking the timestamps:
// the stamp keeps only its git_hash and the catalog only its keyboards.
func publishedContent(t *testing.T, pub *memPublisher) map[string]string {
	t.Helper()

	pairs, err := pub.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	content := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		content[pair.Key] = pair.Value
	}

	var catalog map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(content[storage.KeyCatalog]), &catalog))
	require.Contains(t, catalog, "last_updated")
	content[storage.KeyCatalog] = string(catalog["keyboards"])

	var stamp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(content[storage.KeyUpdateStamp]), &stamp))
	content[storage.KeyUpdateStamp] = string(stamp["git_hash"])

	return content
}

// Rebuilding an unchanged tree must republish identical bytes under
// every key; only the timestamps move.
func TestBuilder_RunRepublishesIdenticalContent(t *testing.T) {
	builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{text: flattenedKeymap})
	seedTree(t, root)
	ctx := context.Background()

	_, err := builder.Run(ctx)
	require.NoError(t, err)
	first := publishedContent(t, pub)

	_, err = builder.Run(ctx)
	require.NoError(t, err)
	second := publishedContent(t, pub)

	require.Contains(t, second, storage.KeyUsbRegistry)
	require.Contains(t, second, storage.KeyboardKey("clueboard/66"))
	require.Contains(t, second, storage.KeymapKey("clueboard/66", "default"))
	assert.Equal(t, first, second)
}

func TestBuilder_RunFailures(t *testing.T) {
	t.Run("Panicking keyboard is dropped and logged", func(t *testing.T) {
		builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{text: flattenedKeymap})
		seedTree(t, root)
		pub.setHooks[storage.KeyboardKey("bare")] = func() error { panic("store exploded") }

		report, err := builder.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.Keyboards)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 1, report.Errors)

		var list []string
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyKeyboardList, &list))
		assert.Equal(t, []string{"clueboard/66"}, list)

		var catalog models.Catalog
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyCatalog, &catalog))
		assert.NotContains(t, catalog.Keyboards, "bare")

		var entries []models.ErrorLogEntry
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyErrorLog, &entries))
		require.NotEmpty(t, entries)
		last := entries[len(entries)-1]
		assert.Equal(t, models.SeverityError, last.Severity)
		assert.Contains(t, last.Message, "Uncaught exception while processing keyboard bare! panic: store exploded")
	})

	t.Run("Storage error on one keyboard spares the rest", func(t *testing.T) {
		builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{text: flattenedKeymap})
		seedTree(t, root)
		pub.setHooks[storage.KeyboardKey("bare")] = func() error { return errors.New("store offline") }

		report, err := builder.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, report.Keyboards)
		assert.Equal(t, 1, report.Failed)

		var entries []models.ErrorLogEntry
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyErrorLog, &entries))
		require.NotEmpty(t, entries)
		last := entries[len(entries)-1]
		assert.Contains(t, last.Message, "Uncaught exception while processing keyboard bare!")
		assert.Contains(t, last.Message, "store offline")
	})

	t.Run("Broken keymap spares the keyboard", func(t *testing.T) {
		builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{err: errors.New("clang exited 1")})
		seedTree(t, root)

		report, err := builder.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, report.Keyboards)
		assert.Equal(t, 0, report.Failed)
		assert.Equal(t, 1, report.Errors)

		var catalog models.Catalog
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyCatalog, &catalog))
		require.Contains(t, catalog.Keyboards, "clueboard/66")
		assert.Empty(t, catalog.Keyboards["clueboard/66"].Keymaps)

		var entries []models.ErrorLogEntry
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyErrorLog, &entries))
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Message, "clueboard/66: Could not extract keymap default: clang exited 1") {
				found = true
			}
		}
		assert.True(t, found, "keymap failure missing from the log: %v", entries)

		_, err = pub.Get(context.Background(), storage.KeymapKey("clueboard/66", "default"))
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})

	t.Run("Keymap extraction can be disabled", func(t *testing.T) {
		config := testConfig()
		config.Extract.ExtractKeymaps = false
		builder, pub, root := newTestBuilder(t, config, &fakePreprocessor{err: errors.New("must not be called")})
		seedTree(t, root)

		report, err := builder.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Errors)

		var catalog models.Catalog
		require.NoError(t, pub.GetJSON(context.Background(), storage.KeyCatalog, &catalog))
		assert.Empty(t, catalog.Keyboards["clueboard/66"].Keymaps)
	})
}

func TestBuilder_BuildOne(t *testing.T) {
	builder, pub, root := newTestBuilder(t, testConfig(), &fakePreprocessor{text: flattenedKeymap})
	seedTree(t, root)

	record, err := builder.BuildOne(context.Background(), "clueboard/66")
	require.NoError(t, err)

	assert.Equal(t, "Clueboard 66%", record.Name)
	assert.Equal(t, "0xC1ED:0x2370:0x0001", record.Identifier)
	assert.Equal(t, []string{"default"}, record.Keymaps)
	assert.Equal(t, 0, pub.len(), "debug builds must not write to the store")

	_, err = builder.BuildOne(context.Background(), "no/such/keyboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDescribeFailure(t *testing.T) {
	category, message := describeFailure(errors.New("store offline"))
	assert.Equal(t, "errors.errorString", category)
	assert.Equal(t, "store offline", message)

	category, message = describeFailure("boom")
	assert.Equal(t, "panic", category)
	assert.Equal(t, "boom", message)
}
