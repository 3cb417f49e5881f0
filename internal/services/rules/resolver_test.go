package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/firmware"
	"github.com/ternarybob/clavis/internal/services/errorlog"
)

func writeTreeFile(t *testing.T, root string, rel string, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func newTestResolver(t *testing.T) (*Resolver, *errorlog.Recorder, string) {
	t.Helper()
	root := t.TempDir()
	tree, err := firmware.NewTree(nil, &common.TreeConfig{Path: root})
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}
	rec := errorlog.NewRecorder(nil, nil)
	return NewResolver(tree, rec, nil), rec, root
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("Keyboard without default folder", func(t *testing.T) {
		resolver, rec, root := newTestResolver(t)
		writeTreeFile(t, root, "keyboards/planck/rules.mk", "MCU = atmega32u4\nBOOTLOADER = qmk-dfu\n")
		writeTreeFile(t, root, "keyboards/planck/config.h", "#define VENDOR_ID 0x03A8\n#define NKRO_ENABLE\n")

		rulesMk, configH := resolver.Resolve("planck")

		if got, _ := rulesMk.Get("MCU"); got != "atmega32u4" {
			t.Errorf("MCU = %q, want atmega32u4", got)
		}
		if got, _ := configH.Value("VENDOR_ID"); got != "0x03A8" {
			t.Errorf("VENDOR_ID = %q, want 0x03A8", got)
		}
		if !configH.Enabled("NKRO_ENABLE") {
			t.Error("NKRO_ENABLE flag missing")
		}
		if len(rec.Entries()) != 0 {
			t.Errorf("expected clean parse, got %v", rec.Entries())
		}
	})

	t.Run("Missing files yield empty maps", func(t *testing.T) {
		resolver, rec, _ := newTestResolver(t)

		rulesMk, configH := resolver.Resolve("ghost")

		if rulesMk.Len() != 0 {
			t.Errorf("expected empty rules, got %v", rulesMk.Keys())
		}
		if len(configH) != 0 {
			t.Errorf("expected empty defines, got %v", configH)
		}
		if len(rec.Entries()) != 0 {
			t.Errorf("missing files must not record entries, got %v", rec.Entries())
		}
	})

	// The redirected file is parsed into the same map, so its keys
	// overwrite keyboard-specific ones. Long-standing behavior, kept.
	t.Run("Default folder values overwrite keyboard values", func(t *testing.T) {
		resolver, _, root := newTestResolver(t)
		writeTreeFile(t, root, "keyboards/clueboard/66/rules.mk",
			"DEFAULT_FOLDER = clueboard/66/rev3\nMCU = atmega32u4\nLAYOUTS = 66_ansi\n")
		writeTreeFile(t, root, "keyboards/clueboard/66/rev3/rules.mk",
			"MCU = atmega32u2\nBOOTLOADER = atmel-dfu\n")

		rulesMk := resolver.Rules("clueboard/66")

		if got, _ := rulesMk.Get("MCU"); got != "atmega32u2" {
			t.Errorf("redirected file should win: MCU = %q", got)
		}
		if got, _ := rulesMk.Get("LAYOUTS"); got != "66_ansi" {
			t.Errorf("LAYOUTS = %q, want 66_ansi", got)
		}
		if got, _ := rulesMk.Get("BOOTLOADER"); got != "atmel-dfu" {
			t.Errorf("BOOTLOADER = %q, want atmel-dfu", got)
		}
	})

	t.Run("Default folder config.h merges last", func(t *testing.T) {
		resolver, _, root := newTestResolver(t)
		writeTreeFile(t, root, "keyboards/clueboard/66/rules.mk", "DEFAULT_FOLDER = clueboard/66/rev3\n")
		writeTreeFile(t, root, "keyboards/clueboard/66/config.h",
			"#define PRODUCT_ID 0x2301\n#define MANUFACTURER Clueboard\n")
		writeTreeFile(t, root, "keyboards/clueboard/66/rev3/config.h",
			"#define PRODUCT_ID 0x2370\n#define DEVICE_VER 0x0001\n")

		_, configH := resolver.Resolve("clueboard/66")

		if got, _ := configH.Value("PRODUCT_ID"); got != "0x2370" {
			t.Errorf("PRODUCT_ID = %q, want the redirected value 0x2370", got)
		}
		if got, _ := configH.Value("MANUFACTURER"); got != "Clueboard" {
			t.Errorf("MANUFACTURER = %q, want Clueboard", got)
		}
		if got, _ := configH.Value("DEVICE_VER"); got != "0x0001" {
			t.Errorf("DEVICE_VER = %q, want 0x0001", got)
		}
	})

	// Config resolution reads DEFAULT_FOLDER after the rules merge, so a
	// redirected rules.mk that reassigns it points config.h elsewhere.
	t.Run("Redirected rules may repoint the config folder", func(t *testing.T) {
		resolver, _, root := newTestResolver(t)
		writeTreeFile(t, root, "keyboards/kb/rules.mk", "DEFAULT_FOLDER = kb/a\n")
		writeTreeFile(t, root, "keyboards/kb/a/rules.mk", "DEFAULT_FOLDER = kb/b\n")
		writeTreeFile(t, root, "keyboards/kb/b/config.h", "#define MARKER from_b\n")

		rulesMk, configH := resolver.Resolve("kb")

		if got, _ := rulesMk.Get("DEFAULT_FOLDER"); got != "kb/b" {
			t.Errorf("DEFAULT_FOLDER = %q, want kb/b after merge", got)
		}
		if got, _ := configH.Value("MARKER"); got != "from_b" {
			t.Errorf("MARKER = %q, want from_b", got)
		}
	})
}
