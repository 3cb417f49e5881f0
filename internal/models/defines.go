package models

import "encoding/json"

// DefineKind discriminates the states a preprocessor key can hold once it
// has appeared in a header file.
type DefineKind int

const (
	// DefineFlag is a bare "#define KEY" with no value.
	DefineFlag DefineKind = iota
	// DefineValued is "#define KEY VALUE..." with the value text joined.
	DefineValued
	// DefineDisabled is the tombstone left by "#undef KEY" on a flag key.
	// It keeps an explicitly disabled key distinguishable from one that
	// was never defined at all.
	DefineDisabled
)

// Define is a single resolved preprocessor entry.
type Define struct {
	Kind DefineKind
	Text string // value text, only set for DefineValued
}

// MarshalJSON renders flags as true, tombstones as false and valued
// entries as their text.
func (d Define) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DefineValued:
		return json.Marshal(d.Text)
	case DefineDisabled:
		return []byte("false"), nil
	default:
		return []byte("true"), nil
	}
}

// DefineMap holds the resolved #define state of a header chain. Keys that
// never appeared are absent from the map entirely.
type DefineMap map[string]Define

// SetFlag records a bare #define.
func (m DefineMap) SetFlag(key string) {
	m[key] = Define{Kind: DefineFlag}
}

// SetValue records a valued #define.
func (m DefineMap) SetValue(key, text string) {
	m[key] = Define{Kind: DefineValued, Text: text}
}

// Undef applies #undef semantics: a valued key is removed, a flag key is
// replaced with an explicit-false tombstone and an absent key is left
// untouched.
func (m DefineMap) Undef(key string) {
	d, ok := m[key]
	if !ok {
		return
	}
	if d.Kind == DefineValued {
		delete(m, key)
		return
	}
	m[key] = Define{Kind: DefineDisabled}
}

// Value returns the text of a valued key.
func (m DefineMap) Value(key string) (string, bool) {
	d, ok := m[key]
	if !ok || d.Kind != DefineValued {
		return "", false
	}
	return d.Text, true
}

// Enabled reports whether key is a flag that has not been undefined.
func (m DefineMap) Enabled(key string) bool {
	d, ok := m[key]
	return ok && d.Kind == DefineFlag
}
