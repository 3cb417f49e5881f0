package storage

// Key names for the published catalog artifacts. Consumers of the store
// address everything through these, so renaming one is a breaking change
// for every reader of the catalog.
const (
	// KeyKeyboardList holds the sorted list of keyboard names that
	// survived the last run.
	KeyKeyboardList = "keyboard_list"

	// KeyCatalog holds the full catalog document, one record per
	// keyboard plus the run timestamp.
	KeyCatalog = "keyboard_catalog"

	// KeyUsbRegistry holds the vendor/product/keyboard USB tree.
	KeyUsbRegistry = "usb_registry"

	// KeyUpdateStamp holds the git hash and wall-clock time of the last
	// completed publish.
	KeyUpdateStamp = "catalog_updated"

	// KeyErrorLog holds the ordered error log of the last run.
	KeyErrorLog = "catalog_error_log"

	// KeyUpdateNeeded is the flag the watcher raises when the firmware
	// tree has moved past the published git hash.
	KeyUpdateNeeded = "catalog_update_needed"
)

// keyboardPrefix namespaces all per-keyboard keys. Keyboard names keep
// their slashes, so "clueboard/66" publishes under "kb_clueboard/66".
const keyboardPrefix = "kb_"

// KeyboardKey returns the key a keyboard's record is published under.
func KeyboardKey(keyboard string) string {
	return keyboardPrefix + keyboard
}

// KeymapKey returns the key one keymap of a keyboard is published under.
func KeymapKey(keyboard, keymap string) string {
	return keyboardPrefix + keyboard + "_keymap_" + keymap
}

// ReadmeKey returns the key for a keyboard's raw readme text.
func ReadmeKey(keyboard string) string {
	return keyboardPrefix + keyboard + "_readme"
}

// ReadmeHTMLKey returns the key for a keyboard's rendered readme.
func ReadmeHTMLKey(keyboard string) string {
	return ReadmeKey(keyboard) + "_html"
}

// KeymapReadmeKey returns the key for one keymap's raw readme text.
func KeymapReadmeKey(keyboard, keymap string) string {
	return KeymapKey(keyboard, keymap) + "_readme"
}

// KeymapReadmeHTMLKey returns the key for one keymap's rendered readme.
func KeymapReadmeHTMLKey(keyboard, keymap string) string {
	return KeymapReadmeKey(keyboard, keymap) + "_html"
}
