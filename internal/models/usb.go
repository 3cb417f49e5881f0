package models

// UsbEntry identifies one keyboard in the USB registry. IDs are stored in
// canonical 0x-prefixed uppercase hex form.
type UsbEntry struct {
	Keyboard     string `json:"keyboard"`
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	DeviceVer    string `json:"device_ver,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Description  string `json:"description,omitempty"`
}

// UsbRegistry nests entries by vendor id, product id and keyboard folder.
type UsbRegistry map[string]map[string]map[string]*UsbEntry

// Add files an entry under its vendor and product, creating the nested
// maps as needed.
func (r UsbRegistry) Add(entry *UsbEntry) {
	vendor, ok := r[entry.VendorID]
	if !ok {
		vendor = make(map[string]map[string]*UsbEntry)
		r[entry.VendorID] = vendor
	}
	product, ok := vendor[entry.ProductID]
	if !ok {
		product = make(map[string]*UsbEntry)
		vendor[entry.ProductID] = product
	}
	product[entry.Keyboard] = entry
}
