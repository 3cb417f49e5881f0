package layout

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

var bodyCleaner = strings.NewReplacer("\\", "", " ", "", "\t", "", "#define", "")

// Extractor discovers LAYOUT/KEYMAP function macros in header files and
// turns them into coordinate-tagged key lists. Parsing is textual: macro
// bodies are reconstructed across continuation lines without running a
// preprocessor, which is enough for the layout conventions the firmware
// tree follows.
type Extractor struct {
	tree   interfaces.SourceTree
	rec    interfaces.RunRecorder
	cache  *HeaderCache
	logger arbor.ILogger
}

// NewExtractor creates an extractor over tree, memoizing parsed headers
// in cache.
func NewExtractor(tree interfaces.SourceTree, rec interfaces.RunRecorder, cache *HeaderCache, logger arbor.ILogger) *Extractor {
	if cache == nil {
		cache = NewHeaderCache()
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Extractor{
		tree:   tree,
		rec:    rec,
		cache:  cache,
		logger: logger,
	}
}

// ParseHeader scans header text for layout macros. A line carrying
// "#define", an opening parenthesis and LAYOUT or KEYMAP starts a macro
// body; the body runs until a line containing a closing parenthesis.
// Plain "#define NAME TEXT" lines are collected as alias candidates and
// bound afterwards to any discovered macro whose name matches their
// replacement text exactly, sharing the record rather than copying it.
func ParseHeader(text string) models.LayoutMap {
	layouts := make(models.LayoutMap)
	aliases := models.NewConfigMap()

	var bodies []string
	var current []string
	inMacro := false

	for _, raw := range strings.Split(text, "\n") {
		if !inMacro {
			if strings.Contains(raw, "#define") && strings.Contains(raw, "(") &&
				(strings.Contains(raw, "LAYOUT") || strings.Contains(raw, "KEYMAP")) {
				inMacro = true
			} else if strings.Contains(raw, "#define") {
				parts := strings.SplitN(strings.TrimSpace(raw), " ", 3)
				if len(parts) == 3 {
					aliases.Set(parts[1], parts[2])
				}
			}
		}

		if inMacro {
			current = append(current, strings.TrimSpace(raw)+"\n")
			if strings.Contains(raw, ")") {
				inMacro = false
				bodies = append(bodies, strings.Join(current, ""))
				current = nil
			}
		}
	}

	for _, body := range bodies {
		clean := bodyCleaner.Replace(body)

		name, args, ok := strings.Cut(clean, "(")
		if !ok {
			continue
		}
		if i := strings.IndexByte(args, ')'); i >= 0 {
			args = args[:i]
		}

		if !strings.HasPrefix(name, "KEYMAP") && !strings.HasPrefix(name, "LAYOUT") {
			continue
		}

		record := &models.LayoutRecord{}
		for y, row := range strings.Split(strings.TrimSpace(args), ",\n") {
			for x, token := range strings.Split(row, ",") {
				record.Layout = append(record.Layout, models.KeyDescriptor{
					X:     float64(x),
					Y:     float64(y),
					W:     1,
					Label: token,
				})
			}
		}
		record.KeyCount = len(record.Layout)
		layouts[name] = record
	}

	for _, alias := range aliases.Keys() {
		replacement, _ := aliases.Get(alias)
		if record, ok := layouts[replacement]; ok {
			layouts[alias] = record
		}
	}

	return layouts
}

// FindLayouts parses one header file, memoized on its absolute path. A
// missing file yields an empty map.
func (e *Extractor) FindLayouts(rel string) models.LayoutMap {
	abs := filepath.Join(e.tree.Root(), filepath.FromSlash(rel))
	if cached, ok := e.cache.Get(abs); ok {
		return cached
	}

	layouts := make(models.LayoutMap)
	if text, ok := e.tree.ReadText(rel); ok {
		layouts = ParseHeader(text)
	}

	e.cache.Put(abs, layouts)
	return layouts
}

// DiscoverAll collects every layout macro for a keyboard. The folder
// convention is walked first: for each path segment of the keyboard (or
// its DEFAULT_FOLDER), the header named after that segment is parsed,
// deeper files overriding shallower ones on a name clash. When the walk
// finds nothing, every header in the keyboard folder is searched as a
// fallback and a warning is recorded to nudge the tree back toward the
// convention. A LAYOUTS declaration in rules.mk is then checked for
// macros that never materialized.
//
// The returned records are cloned from the header cache, so manifest
// overrides applied to one keyboard cannot leak into another keyboard
// that inherits the same header.
func (e *Extractor) DiscoverAll(keyboard string, rulesMk *models.ConfigMap) models.LayoutMap {
	layouts := make(models.LayoutMap)
	folder := rulesMk.GetDefault("DEFAULT_FOLDER", keyboard)

	current := ""
	for _, segment := range strings.Split(folder, "/") {
		current = path.Join(current, segment)
		rel := e.tree.KeyboardPath(current, segment+".h")
		if e.tree.Exists(rel) {
			for name, record := range e.FindLayouts(rel) {
				layouts[name] = record
			}
		}
	}

	if len(layouts) == 0 {
		e.rec.Warningf("%s: Falling back to searching for KEYMAP/LAYOUT macros.", keyboard)
		for _, rel := range e.tree.Headers(e.tree.KeyboardPath(keyboard)) {
			for name, record := range e.FindLayouts(rel) {
				layouts[name] = record
			}
		}
	}

	e.checkDeclaredLayouts(keyboard, rulesMk, layouts)

	return layouts.Clone()
}

// checkDeclaredLayouts records an error for every name in the LAYOUTS
// rules.mk key that has no matching LAYOUT_<name> macro.
func (e *Extractor) checkDeclaredLayouts(keyboard string, rulesMk *models.ConfigMap, layouts models.LayoutMap) {
	declared, ok := rulesMk.Get("LAYOUTS")
	if !ok {
		return
	}

	supported := strings.Fields(declared)

	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		short, found := strings.CutPrefix(name, "LAYOUT_")
		if !found {
			continue
		}
		for i, want := range supported {
			if want == short {
				supported = append(supported[:i], supported[i+1:]...)
				break
			}
		}
	}

	if len(supported) > 0 {
		quoted := make([]string, len(supported))
		for i, name := range supported {
			quoted[i] = "'" + name + "'"
		}
		e.rec.Errorf("%s: Missing layout pp macro for [%s]", keyboard, strings.Join(quoted, ", "))
	}
}
