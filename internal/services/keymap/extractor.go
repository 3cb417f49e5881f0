// -----------------------------------------------------------------------
// Last Modified: Wednesday, 15th July 2026 2:21:09 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package keymap

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// The patterns run against preprocessed text with every space and newline
// removed, which is why they look dense. keymapRe isolates the keymaps
// array declaration up to its semicolon, layersRe finds each bracketed
// layer assignment, and the macro patterns pull the layout macro name out
// of the first layer assignment that uses one.
var (
	enumRe        = regexp.MustCompile(`enum[^{]*{[^}]*`)
	keymapRe      = regexp.MustCompile(`constuint[0-9]*_t[PROGMEM]*keymaps[^;]*`)
	layersRe      = regexp.MustCompile(`\[[^\]]*]=[0-9A-Z_]*\([^[]*\)`)
	layoutMacroRe = regexp.MustCompile(`]=(LAYOUT[0-9a-z_]*)\(`)
	keymapMacroRe = regexp.MustCompile(`]=(KEYMAP[0-9a-z_]*)\(`)
)

// Extractor recovers keymap layer content from keymap.c files. The heavy
// lifting happens in the preprocessor: it strips comments and expands
// every textual macro except the layout macro itself, leaving a flat
// string this extractor walks with patterns. Enum-valued layer indices
// are resolved to integers before the layers are reconstructed.
type Extractor struct {
	tree   interfaces.SourceTree
	pre    interfaces.Preprocessor
	rec    interfaces.RunRecorder
	logger arbor.ILogger
}

// NewExtractor creates an extractor reading keymap sources from tree and
// expanding them through pre.
func NewExtractor(tree interfaces.SourceTree, pre interfaces.Preprocessor, rec interfaces.RunRecorder, logger arbor.ILogger) *Extractor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Extractor{
		tree:   tree,
		pre:    pre,
		rec:    rec,
		logger: logger,
	}
}

// Extract preprocesses one keymap source and returns its layout macro
// name and dense layer list. A source with no recognizable keymaps array
// yields an empty record and a warning; a preprocessor failure is
// returned to the caller, who decides how far the damage spreads.
func (e *Extractor) Extract(ctx context.Context, keyboard, name string) (*models.KeymapRecord, error) {
	rel := e.tree.KeyboardPath(keyboard, "keymaps", name, "keymap.c")
	abs := filepath.Join(e.tree.Root(), filepath.FromSlash(rel))

	text, err := e.pre.Flatten(ctx, abs)
	if err != nil {
		return nil, err
	}

	record := &models.KeymapRecord{
		Keyboard: keyboard,
		Name:     name,
		Layers:   [][]string{},
	}

	body := keymapRe.FindString(text)
	if body == "" {
		e.rec.Warningf("Could not find any layers in %s!", rel)
		return record, nil
	}

	record.LayoutMacro = findLayoutMacro(text)
	body = substituteEnums(text, body)
	record.Layers = reconstructLayers(body)

	return record, nil
}

// findLayoutMacro pulls the layout macro name from the first layer
// assignment, preferring LAYOUT-prefixed names over KEYMAP-prefixed ones.
func findLayoutMacro(text string) string {
	if m := layoutMacroRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := keymapMacroRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// substituteEnums collects enum member values from the full preprocessed
// text and substitutes them into the keymap body. Members are numbered
// left to right from 0, an explicit "=N" restarts the counter, and "=X"
// referring to an earlier member reuses its value. A SAFE_RANGE member,
// bare or as a value, ends its block: everything after it is convention
// keycode noise that must not leak numbers into the keymap. Substitution
// runs in first-appearance order with later duplicate definitions
// winning, so the outcome does not depend on map iteration.
func substituteEnums(text, body string) string {
	var order []string
	values := make(map[string]int)

	for _, block := range enumRe.FindAllString(text, -1) {
		_, members, ok := strings.Cut(block, "{")
		if !ok {
			continue
		}

		index := 0
		for _, member := range strings.Split(members, ",") {
			name := member

			if strings.Contains(member, "=") {
				left, right, _ := strings.Cut(member, "=")
				if right == "SAFE_RANGE" {
					break
				}
				name = left
				if isDigits(right) {
					index, _ = strconv.Atoi(right)
				} else if known, ok := values[right]; ok {
					index = known
				}
			}

			if name == "SAFE_RANGE" {
				break
			}
			if name == "" {
				continue
			}

			if _, seen := values[name]; !seen {
				order = append(order, name)
			}
			values[name] = index
			index++
		}
	}

	for _, name := range order {
		body = strings.ReplaceAll(body, name, strconv.Itoa(values[name]))
	}

	return body
}

// reconstructLayers parses bracket-indexed layer assignments out of the
// keymap body and materializes a dense list. Explicit numeric indices are
// used directly; empty or unresolved ones take the next sequential slot.
// Gaps stay nil so consumers indexing by layer number line up.
func reconstructLayers(body string) [][]string {
	nextSequential := 0
	layers := make(map[int][]string)
	maxIndex := -1

	for _, match := range layersRe.FindAllString(body, -1) {
		indexPart, rest, _ := strings.Cut(match, "=")
		_, args, _ := strings.Cut(rest, "(")
		if i := strings.LastIndexByte(args, ')'); i >= 0 {
			args = args[:i]
		}

		num := strings.NewReplacer("[", "", "]", "").Replace(indexPart)

		var index int
		if isDigits(num) {
			index, _ = strconv.Atoi(num)
		} else {
			index = nextSequential
			nextSequential++
		}

		layers[index] = strings.Split(args, ",")
		if index > maxIndex {
			maxIndex = index
		}
	}

	out := make([][]string, maxIndex+1)
	for i := 0; i <= maxIndex; i++ {
		out[i] = layers[i]
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
