package usb

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/models"
)

// usbKeys are the config.h defines that feed the USB identity, in the
// order they are applied. The first three are hex IDs and get normalized;
// the rest are copied as-is.
var usbKeys = []string{"VENDOR_ID", "PRODUCT_ID", "DEVICE_VER", "MANUFACTURER", "DESCRIPTION"}

// Builder derives the USB identity of a keyboard from its resolved
// defines.
type Builder struct {
	logger arbor.ILogger
}

// NewBuilder creates a USB identity builder.
func NewBuilder(logger arbor.ILogger) *Builder {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Builder{logger: logger}
}

// BuildEntry normalizes the USB defines, writes them back into the
// define map and onto the record, and returns the registry entry. The
// entry carries the conventional fallback IDs for keyboards that declare
// none; the record keeps absent fields absent.
func (b *Builder) BuildEntry(record *models.KeyboardRecord, configH models.DefineMap) *models.UsbEntry {
	entry := &models.UsbEntry{Keyboard: record.Folder}

	for _, key := range usbKeys {
		value, ok := configH.Value(key)
		if !ok {
			if configH.Enabled(key) {
				// a bare flag carries no usable identity text
				b.logger.Debug().Str("keyboard", record.Folder).Str("define", key).Msg("Ignoring valueless USB define")
			}
			continue
		}

		switch key {
		case "VENDOR_ID", "PRODUCT_ID", "DEVICE_VER":
			value = "0x" + strings.ReplaceAll(strings.ToUpper(value), "0X", "")
			configH.SetValue(key, value)
		}

		switch key {
		case "VENDOR_ID":
			record.VendorID = value
			entry.VendorID = value
		case "PRODUCT_ID":
			record.ProductID = value
			entry.ProductID = value
		case "DEVICE_VER":
			record.DeviceVer = value
			entry.DeviceVer = value
		case "MANUFACTURER":
			record.Manufacturer = value
			entry.Manufacturer = value
		case "DESCRIPTION":
			record.Description = value
			entry.Description = value
		}
	}

	if entry.VendorID == "" {
		entry.VendorID = "0xFEED"
	}
	if entry.ProductID == "" {
		entry.ProductID = "0x0000"
	}

	return entry
}

// Identifier returns the vendor:product:device identity string published
// on the record. Parts the keyboard never declared read "unknown"; the
// registry fallback IDs do not leak into it.
func Identifier(record *models.KeyboardRecord) string {
	return strings.Join([]string{
		orUnknown(record.VendorID),
		orUnknown(record.ProductID),
		orUnknown(record.DeviceVer),
	}, ":")
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
