package manifest

import (
	"encoding/json"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// Manifests may sit up to this many folders above the keyboard.
const maxAncestorDepth = 4

// identityKeys are the manifest fields copied straight onto the record,
// in the order they are applied.
var identityKeys = []string{
	"keyboard_name",
	"manufacturer",
	"identifier",
	"url",
	"maintainer",
	"processor",
	"bootloader",
	"width",
	"height",
}

// Merger folds info.json manifests into keyboard records. Manifest data
// is human-curated and wins over derived data for the identity fields;
// for layouts it may replace key positions but never the key topology.
type Merger struct {
	tree   interfaces.SourceTree
	rec    interfaces.RunRecorder
	logger arbor.ILogger
}

// NewMerger creates a merger reading from tree and recording merge
// anomalies on rec.
func NewMerger(tree interfaces.SourceTree, rec interfaces.RunRecorder, logger arbor.ILogger) *Merger {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Merger{
		tree:   tree,
		rec:    rec,
		logger: logger,
	}
}

// Candidates returns the manifest paths that exist for a keyboard, in
// merge order: highest ancestor folder first, the keyboard's own folder
// last, then the DEFAULT_FOLDER manifest when the rules point one out.
func (m *Merger) Candidates(keyboard string, rulesMk *models.ConfigMap) []string {
	parts := strings.Split(keyboard, "/")

	lo := len(parts) - maxAncestorDepth - 1
	if lo < 0 {
		lo = 0
	}

	rels := make([]string, 0, len(parts)+1)
	for i := lo; i < len(parts); i++ {
		rels = append(rels, m.tree.KeyboardPath(path.Join(parts[:i+1]...), "info.json"))
	}

	if folder := rulesMk.GetDefault("DEFAULT_FOLDER", ""); folder != "" {
		rel := m.tree.KeyboardPath(folder, "info.json")
		if rels[len(rels)-1] != rel {
			rels = append(rels, rel)
		}
	}

	return m.tree.AllExisting(rels)
}

// Apply merges every manifest that applies to the keyboard onto its
// record, nearest manifest last so it wins.
func (m *Merger) Apply(keyboard string, rulesMk *models.ConfigMap, record *models.KeyboardRecord) {
	for _, rel := range m.Candidates(keyboard, rulesMk) {
		text, ok := m.tree.ReadText(rel)
		if !ok {
			continue
		}

		m.logger.Debug().Str("keyboard", keyboard).Str("manifest", rel).Msg("Merging manifest")
		m.Merge(rel, []byte(text), record)
	}
}

// Merge folds one manifest document onto the record. A document that is
// not a JSON object is reported and leaves the record unchanged; inside
// a valid document every salvageable field is applied even when others
// are broken.
func (m *Merger) Merge(name string, data []byte, record *models.KeyboardRecord) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		if json.Valid(data) {
			m.rec.Errorf("%s is invalid! Should be a JSON dict object.", name)
		} else {
			m.rec.Errorf("Could not parse %s as JSON: %v", name, err)
		}
		return
	}
	if raw == nil {
		// "null" decodes into a nil map without an error
		m.rec.Errorf("%s is invalid! Should be a JSON dict object.", name)
		return
	}

	m.checkSchema(name, data)

	for _, key := range identityKeys {
		rawValue, ok := raw[key]
		if !ok {
			continue
		}

		var value any
		if err := json.Unmarshal(rawValue, &value); err != nil {
			continue
		}
		m.applyIdentity(record, key, value)
	}

	for key, rawValue := range raw {
		if key == "layouts" || isIdentityKey(key) {
			continue
		}
		var value any
		if err := json.Unmarshal(rawValue, &value); err != nil {
			continue
		}
		record.SetExtra(key, value)
	}

	if rawLayouts, ok := raw["layouts"]; ok {
		m.mergeLayouts(name, rawLayouts, record)
	}
}

// applyIdentity copies one allow-listed manifest field onto the record.
// A value of an unexpected type is kept in the extra bag instead of
// being coerced.
func (m *Merger) applyIdentity(record *models.KeyboardRecord, key string, value any) {
	switch key {
	case "width":
		if f, ok := value.(float64); ok {
			record.Width = f
			return
		}
	case "height":
		if f, ok := value.(float64); ok {
			record.Height = f
			return
		}
	default:
		if s, ok := value.(string); ok {
			switch key {
			case "keyboard_name":
				record.Name = s
			case "manufacturer":
				record.Manufacturer = s
			case "identifier":
				record.Identifier = s
			case "url":
				record.URL = s
			case "maintainer":
				record.Maintainer = s
			case "processor":
				record.Processor = s
			case "bootloader":
				record.Bootloader = s
			}
			return
		}
	}
	record.SetExtra(key, value)
}

func (m *Merger) mergeLayouts(name string, rawLayouts json.RawMessage, record *models.KeyboardRecord) {
	sections := make(map[string]json.RawMessage)
	if err := json.Unmarshal(rawLayouts, &sections); err != nil || sections == nil {
		m.rec.Errorf("%s is invalid! Layouts should be a JSON dict object.", name)
		return
	}

	names := make([]string, 0, len(sections))
	for layoutName := range sections {
		names = append(names, layoutName)
	}
	sort.Strings(names)

	for _, layoutName := range names {
		// only keep layouts we have a macro for
		existing, ok := record.Layouts[layoutName]
		if !ok {
			continue
		}

		var override ManifestLayout
		if err := json.Unmarshal(sections[layoutName], &override); err != nil {
			m.rec.Errorf("%s: %s: Could not parse layout in info.json: %v", record.Folder, layoutName, err)
			continue
		}
		if override.Layout == nil {
			m.rec.Errorf("%s: %s: No layout list in info.json!", record.Folder, layoutName)
			continue
		}

		if len(override.Layout) != len(existing.Layout) {
			m.rec.Errorf("%s: %s: Number of elements in info.json does not match! info.json:%d != %s:%d",
				record.Folder, layoutName, len(override.Layout), layoutName, len(existing.Layout))
			continue
		}

		existing.Layout = override.Layout
	}
}

// checkSchema downgrades schema violations to warnings so a sloppy
// manifest still merges.
func (m *Merger) checkSchema(name string, data []byte) {
	var schema ManifestSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		m.rec.Warningf("%s does not fit the manifest schema: %v", name, err)
		return
	}

	err := schema.Validate()
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			m.rec.Warningf("%s: Manifest field %s failed %s validation.", name, fe.Field(), fe.Tag())
		}
		return
	}
	m.rec.Warningf("%s: Manifest validation failed: %v", name, err)
}

func isIdentityKey(key string) bool {
	for _, k := range identityKeys {
		if k == key {
			return true
		}
	}
	return false
}
