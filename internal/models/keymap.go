package models

// KeymapRecord is one extracted keymap: the layout macro it targets and
// the keycode text of each layer. A nil layer marks an index the keymap
// never assigned and serializes as JSON null.
type KeymapRecord struct {
	Keyboard    string     `json:"keyboard"`
	Name        string     `json:"name"`
	LayoutMacro string     `json:"layout_macro"`
	Layers      [][]string `json:"layers"`
}
