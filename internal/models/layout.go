package models

import "encoding/json"

// KeyDescriptor is one key position in a physical layout. Macro-derived
// layouts fill x/y/w and carry the macro argument as the label. Layouts
// supplied by an info.json manifest may add arbitrary fields, which are
// preserved in Extra and flattened back into the JSON object.
type KeyDescriptor struct {
	X     float64
	Y     float64
	W     float64
	H     float64
	Label string
	Extra map[string]any
}

// MarshalJSON flattens Extra into the object. Fixed fields win on a name
// collision. h and label are omitted when unset.
func (k KeyDescriptor) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(k.Extra)+5)
	for name, v := range k.Extra {
		out[name] = v
	}
	out["x"] = k.X
	out["y"] = k.Y
	out["w"] = k.W
	if k.H != 0 {
		out["h"] = k.H
	}
	if k.Label != "" {
		out["label"] = k.Label
	}
	return json.Marshal(out)
}

// UnmarshalJSON captures unknown fields into Extra. A missing width
// defaults to 1, the conventional key unit.
func (k *KeyDescriptor) UnmarshalJSON(data []byte) error {
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*k = KeyDescriptor{W: 1}
	for name, v := range raw {
		switch name {
		case "x":
			k.X = jsonNumber(v)
		case "y":
			k.Y = jsonNumber(v)
		case "w":
			k.W = jsonNumber(v)
		case "h":
			k.H = jsonNumber(v)
		case "label":
			k.Label, _ = v.(string)
		default:
			if k.Extra == nil {
				k.Extra = make(map[string]any)
			}
			k.Extra[name] = v
		}
	}
	return nil
}

func jsonNumber(v any) float64 {
	f, _ := v.(float64)
	return f
}

// LayoutRecord is one physical layout. Alias names point at the same
// record, so a change made through one name is visible through all.
type LayoutRecord struct {
	KeyCount int             `json:"key_count"`
	Layout   []KeyDescriptor `json:"layout"`
}

// LayoutMap maps macro and alias names to their shared layout records.
type LayoutMap map[string]*LayoutRecord

// Clone copies the map with fresh records, preserving alias identity:
// names that shared a record still share one in the clone. The key
// lists themselves are reused, they are never edited in place.
func (m LayoutMap) Clone() LayoutMap {
	out := make(LayoutMap, len(m))
	seen := make(map[*LayoutRecord]*LayoutRecord, len(m))
	for name, record := range m {
		copied, ok := seen[record]
		if !ok {
			copied = &LayoutRecord{KeyCount: record.KeyCount, Layout: record.Layout}
			seen[record] = copied
		}
		out[name] = copied
	}
	return out
}
