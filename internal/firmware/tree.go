// -----------------------------------------------------------------------
// Last Modified: Tuesday, 30th June 2026 3:27:55 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package firmware

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
)

// Tree provides read access to a firmware source checkout. All relative
// paths use forward slashes regardless of platform, matching the keyboard
// names derived from them.
type Tree struct {
	root         string
	keyboardsDir string
	logger       arbor.ILogger
}

// Compile-time assertion
var _ interfaces.SourceTree = (*Tree)(nil)

// NewTree creates a Tree rooted at the configured checkout path
func NewTree(logger arbor.ILogger, config *common.TreeConfig) (*Tree, error) {
	abs, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tree path %s: %w", config.Path, err)
	}

	keyboardsDir := config.KeyboardsDir
	if keyboardsDir == "" {
		keyboardsDir = "keyboards"
	}

	if logger == nil {
		logger = common.GetLogger()
	}

	return &Tree{
		root:         abs,
		keyboardsDir: keyboardsDir,
		logger:       logger,
	}, nil
}

// Root returns the absolute path of the tree root
func (t *Tree) Root() string {
	return t.root
}

// KeyboardPath joins path parts under the keyboards directory, returning
// a tree-relative path
func (t *Tree) KeyboardPath(parts ...string) string {
	return path.Join(append([]string{t.keyboardsDir}, parts...)...)
}

// Exists reports whether the relative path exists
func (t *Tree) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(t.root, filepath.FromSlash(rel)))
	return err == nil
}

// FirstExisting returns the first candidate path that exists
func (t *Tree) FirstExisting(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		if t.Exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// AllExisting returns the candidates that exist, preserving order
func (t *Tree) AllExisting(candidates []string) []string {
	existing := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if t.Exists(candidate) {
			existing = append(existing, candidate)
		}
	}
	return existing
}

// ReadText reads a file with lenient text decoding. A missing or
// unreadable file is a soft miss rather than an error.
func (t *Tree) ReadText(rel string) (string, bool) {
	raw, err := os.ReadFile(filepath.Join(t.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}

	text, clean := DecodeText(raw)
	if !clean {
		t.logger.Warn().Str("file", rel).Msg("File is not valid UTF-8, decoded leniently")
	}
	return text, true
}

// Keyboards returns every keyboard folder, sorted. A keyboard folder is
// any directory under the keyboards root holding a rules.mk, except
// those inside a keymaps subtree.
func (t *Tree) Keyboards() ([]string, error) {
	base := filepath.Join(t.root, t.keyboardsDir)
	if _, err := os.Stat(base); err != nil {
		return nil, fmt.Errorf("keyboards directory %s not found: %w", base, err)
	}

	var keyboards []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if d.IsDir() {
			if d.Name() == "keymaps" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "rules.mk" {
			return nil
		}
		rel, err := filepath.Rel(base, filepath.Dir(p))
		if err != nil || rel == "." {
			return nil
		}
		keyboards = append(keyboards, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk keyboards directory: %w", err)
	}

	sort.Strings(keyboards)
	return keyboards, nil
}

// Keymaps returns the keymap names under a keyboard folder, sorted. Only
// directories containing a keymap.c count.
func (t *Tree) Keymaps(keyboard string) []string {
	dir := filepath.Join(t.root, t.keyboardsDir, filepath.FromSlash(keyboard), "keymaps")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), "keymap.c")); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Headers returns the .h files directly inside a tree-relative directory,
// sorted, as tree-relative paths.
func (t *Tree) Headers(dir string) []string {
	entries, err := os.ReadDir(filepath.Join(t.root, filepath.FromSlash(dir)))
	if err != nil {
		return nil
	}

	var headers []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".h") {
			continue
		}
		headers = append(headers, path.Join(dir, entry.Name()))
	}
	sort.Strings(headers)
	return headers
}

// FindReadme locates readme.md in a tree-relative directory without
// caring about case.
func (t *Tree) FindReadme(dir string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(t.root, filepath.FromSlash(dir)))
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), "readme.md") {
			return path.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

// Revision returns the tree's git revision. Falls back to the version.txt
// written at checkout, then to "unknown" for plain exported trees.
func (t *Tree) Revision() string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", t.root, "rev-parse", "HEAD")
	if out, err := cmd.Output(); err == nil {
		if hash := strings.TrimSpace(string(out)); hash != "" {
			return hash
		}
	}

	if data, err := os.ReadFile(filepath.Join(t.root, "version.txt")); err == nil {
		if hash := strings.TrimSpace(string(data)); hash != "" {
			return hash
		}
	}

	return "unknown"
}
