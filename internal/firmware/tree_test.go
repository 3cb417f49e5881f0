package firmware

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/clavis/internal/common"
)

func writeFile(t *testing.T, root string, rel string, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func newTestTree(t *testing.T) (*Tree, string) {
	t.Helper()
	root := t.TempDir()
	tree, err := NewTree(arbor.NewLogger(), &common.TreeConfig{Path: root})
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	return tree, root
}

func TestTree_Keyboards(t *testing.T) {
	tree, root := newTestTree(t)

	writeFile(t, root, "keyboards/planck/rules.mk", "MCU = atmega32u4\n")
	writeFile(t, root, "keyboards/clueboard/66/rev1/rules.mk", "")
	writeFile(t, root, "keyboards/clueboard/66/rules.mk", "")
	// rules.mk inside a keymaps subtree must not count as a keyboard
	writeFile(t, root, "keyboards/planck/keymaps/default/rules.mk", "")
	writeFile(t, root, "keyboards/planck/keymaps/default/keymap.c", "")
	// A directory without rules.mk is not a keyboard
	writeFile(t, root, "keyboards/empty/readme.md", "")

	keyboards, err := tree.Keyboards()
	if err != nil {
		t.Fatalf("Keyboards failed: %v", err)
	}

	expected := []string{"clueboard/66", "clueboard/66/rev1", "planck"}
	if !reflect.DeepEqual(keyboards, expected) {
		t.Errorf("got %v, expected %v", keyboards, expected)
	}
}

func TestTree_KeyboardsMissingRoot(t *testing.T) {
	tree, _ := newTestTree(t)
	if _, err := tree.Keyboards(); err == nil {
		t.Error("missing keyboards directory should error")
	}
}

func TestTree_Keymaps(t *testing.T) {
	tree, root := newTestTree(t)

	writeFile(t, root, "keyboards/planck/keymaps/default/keymap.c", "")
	writeFile(t, root, "keyboards/planck/keymaps/via/keymap.c", "")
	// A keymap dir without keymap.c is skipped
	writeFile(t, root, "keyboards/planck/keymaps/broken/readme.md", "")

	names := tree.Keymaps("planck")
	expected := []string{"default", "via"}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("got %v, expected %v", names, expected)
	}

	if names := tree.Keymaps("missing"); names != nil {
		t.Errorf("missing keyboard should yield nil, got %v", names)
	}
}

func TestTree_CandidateResolution(t *testing.T) {
	tree, root := newTestTree(t)
	writeFile(t, root, "keyboards/a/info.json", "{}")
	writeFile(t, root, "keyboards/a/b/info.json", "{}")

	candidates := []string{
		"keyboards/nope/info.json",
		"keyboards/a/info.json",
		"keyboards/a/b/info.json",
	}

	first, ok := tree.FirstExisting(candidates)
	if !ok || first != "keyboards/a/info.json" {
		t.Errorf("got (%q, %v), expected first existing candidate", first, ok)
	}

	all := tree.AllExisting(candidates)
	expected := []string{"keyboards/a/info.json", "keyboards/a/b/info.json"}
	if !reflect.DeepEqual(all, expected) {
		t.Errorf("got %v, expected %v", all, expected)
	}

	if _, ok := tree.FirstExisting([]string{"keyboards/x", "keyboards/y"}); ok {
		t.Error("no candidate exists, expected not found")
	}
}

func TestTree_ReadTextSoftMiss(t *testing.T) {
	tree, root := newTestTree(t)
	writeFile(t, root, "keyboards/kb/config.h", "#define VENDOR_ID 0xFEED\n")

	text, ok := tree.ReadText("keyboards/kb/config.h")
	if !ok || text == "" {
		t.Fatalf("expected content, got (%q, %v)", text, ok)
	}

	if _, ok := tree.ReadText("keyboards/kb/missing.h"); ok {
		t.Error("missing file must be a soft miss")
	}
}

func TestTree_Headers(t *testing.T) {
	tree, root := newTestTree(t)
	writeFile(t, root, "keyboards/kb/kb.h", "")
	writeFile(t, root, "keyboards/kb/rev2.h", "")
	writeFile(t, root, "keyboards/kb/config.h", "")
	writeFile(t, root, "keyboards/kb/keymap.c", "")
	writeFile(t, root, "keyboards/kb/sub/inner.h", "")

	got := tree.Headers("keyboards/kb")
	want := []string{"keyboards/kb/config.h", "keyboards/kb/kb.h", "keyboards/kb/rev2.h"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Headers = %v, want %v", got, want)
	}

	if tree.Headers("keyboards/none") != nil {
		t.Error("missing directory should yield nil")
	}
}

func TestTree_FindReadme(t *testing.T) {
	tree, root := newTestTree(t)
	writeFile(t, root, "keyboards/kb/README.md", "# KB\n")

	rel, ok := tree.FindReadme("keyboards/kb")
	if !ok || rel != "keyboards/kb/README.md" {
		t.Errorf("got (%q, %v), expected case-insensitive hit", rel, ok)
	}

	if _, ok := tree.FindReadme("keyboards/none"); ok {
		t.Error("missing directory should report not found")
	}
}

func TestTree_RevisionFallbacks(t *testing.T) {
	tree, root := newTestTree(t)

	// No git metadata and no version file
	if rev := tree.Revision(); rev != "unknown" {
		t.Errorf("got %q, expected unknown", rev)
	}

	writeFile(t, root, "version.txt", "abc123def\n")
	if rev := tree.Revision(); rev != "abc123def" {
		t.Errorf("got %q, expected version.txt contents", rev)
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		expected string
		clean    bool
	}{
		{
			name:     "plain utf8",
			raw:      []byte("#define LAYOUT(k00) {k00}\n"),
			expected: "#define LAYOUT(k00) {k00}\n",
			clean:    true,
		},
		{
			name:     "utf8 bom stripped",
			raw:      append([]byte{0xEF, 0xBB, 0xBF}, []byte("MCU = atmega32u4")...),
			expected: "MCU = atmega32u4",
			clean:    true,
		},
		{
			name:     "windows-1252 fallback",
			raw:      []byte{'c', 'a', 'f', 0xE9}, // café in latin-1
			expected: "café",
			clean:    false,
		},
		{
			name:     "utf16 little endian",
			raw:      []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00},
			expected: "hi",
			clean:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clean := DecodeText(tt.raw)
			if got != tt.expected {
				t.Errorf("got %q, expected %q", got, tt.expected)
			}
			if clean != tt.clean {
				t.Errorf("got clean=%v, expected %v", clean, tt.clean)
			}
		})
	}
}
