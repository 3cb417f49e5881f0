package models

import "encoding/json"

// KeyboardRecord is the published metadata for one keyboard folder. The
// fixed fields cover everything the extraction pipeline produces itself;
// unrecognized top-level manifest keys are carried in Extra and flattened
// into the JSON object on marshal, with fixed fields winning a collision.
type KeyboardRecord struct {
	Name          string
	Folder        string
	Maintainer    string
	Manufacturer  string
	Description   string
	URL           string
	Width         float64
	Height        float64
	Identifier    string
	Processor     string
	ProcessorType string
	Platform      string
	Bootloader    string
	Protocol      string
	VendorID      string
	ProductID     string
	DeviceVer     string
	Layouts       LayoutMap
	Keymaps       []string
	Readme        bool
	Extra         map[string]any
}

// NewKeyboardRecord returns a record with the defaults every keyboard
// starts from before any file has been read.
func NewKeyboardRecord(keyboard string) *KeyboardRecord {
	return &KeyboardRecord{
		Name:       keyboard,
		Folder:     keyboard,
		Maintainer: "qmk",
		Layouts:    make(LayoutMap),
		Keymaps:    []string{},
	}
}

// MarshalJSON emits the record as a flat JSON object. Optional fields
// that were never discovered stay absent, matching a record built from
// the same tree on any run.
func (r KeyboardRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+20)
	for name, v := range r.Extra {
		out[name] = v
	}
	out["keyboard_name"] = r.Name
	out["keyboard_folder"] = r.Folder
	out["maintainer"] = r.Maintainer
	out["identifier"] = r.Identifier
	out["processor"] = r.Processor
	out["processor_type"] = r.ProcessorType
	out["platform"] = r.Platform
	out["bootloader"] = r.Bootloader
	out["protocol"] = r.Protocol
	out["readme"] = r.Readme
	if r.Layouts == nil {
		out["layouts"] = LayoutMap{}
	} else {
		out["layouts"] = r.Layouts
	}
	if r.Keymaps == nil {
		out["keymaps"] = []string{}
	} else {
		out["keymaps"] = r.Keymaps
	}
	if r.Manufacturer != "" {
		out["manufacturer"] = r.Manufacturer
	}
	if r.Description != "" {
		out["description"] = r.Description
	}
	if r.URL != "" {
		out["url"] = r.URL
	}
	if r.Width != 0 {
		out["width"] = r.Width
	}
	if r.Height != 0 {
		out["height"] = r.Height
	}
	if r.VendorID != "" {
		out["vendor_id"] = r.VendorID
	}
	if r.ProductID != "" {
		out["product_id"] = r.ProductID
	}
	if r.DeviceVer != "" {
		out["device_ver"] = r.DeviceVer
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a record, routing unknown fields back to Extra.
func (r *KeyboardRecord) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = KeyboardRecord{}
	for name, v := range raw {
		var err error
		switch name {
		case "keyboard_name":
			err = json.Unmarshal(v, &r.Name)
		case "keyboard_folder":
			err = json.Unmarshal(v, &r.Folder)
		case "maintainer":
			err = json.Unmarshal(v, &r.Maintainer)
		case "manufacturer":
			err = json.Unmarshal(v, &r.Manufacturer)
		case "description":
			err = json.Unmarshal(v, &r.Description)
		case "url":
			err = json.Unmarshal(v, &r.URL)
		case "width":
			err = json.Unmarshal(v, &r.Width)
		case "height":
			err = json.Unmarshal(v, &r.Height)
		case "identifier":
			err = json.Unmarshal(v, &r.Identifier)
		case "processor":
			err = json.Unmarshal(v, &r.Processor)
		case "processor_type":
			err = json.Unmarshal(v, &r.ProcessorType)
		case "platform":
			err = json.Unmarshal(v, &r.Platform)
		case "bootloader":
			err = json.Unmarshal(v, &r.Bootloader)
		case "protocol":
			err = json.Unmarshal(v, &r.Protocol)
		case "vendor_id":
			err = json.Unmarshal(v, &r.VendorID)
		case "product_id":
			err = json.Unmarshal(v, &r.ProductID)
		case "device_ver":
			err = json.Unmarshal(v, &r.DeviceVer)
		case "layouts":
			err = json.Unmarshal(v, &r.Layouts)
		case "keymaps":
			err = json.Unmarshal(v, &r.Keymaps)
		case "readme":
			err = json.Unmarshal(v, &r.Readme)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]any)
			}
			var val any
			err = json.Unmarshal(v, &val)
			r.Extra[name] = val
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SetExtra stores an unrecognized manifest field.
func (r *KeyboardRecord) SetExtra(key string, value any) {
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = value
}

// Catalog is the full published keyboard set for one run.
type Catalog struct {
	LastUpdated string                     `json:"last_updated"`
	Keyboards   map[string]*KeyboardRecord `json:"keyboards"`
}

// UpdateStamp records when the catalog was last rebuilt and from which
// tree revision.
type UpdateStamp struct {
	GitHash     string `json:"git_hash"`
	LastUpdated string `json:"last_updated"`
}

// StampTimeFormat is the layout of UpdateStamp.LastUpdated and
// Catalog.LastUpdated values.
const StampTimeFormat = "2006-01-02 15:04:05 MST"
