package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profiles holds the processor family allow-lists. ChibiOS entries match
// by prefix, the AVR lists by exact name.
type Profiles struct {
	ChibiOS []string `yaml:"chibios"`
	LUFA    []string `yaml:"lufa"`
	VUSB    []string `yaml:"vusb"`
}

// DefaultProfiles returns the built-in family lists.
func DefaultProfiles() Profiles {
	return Profiles{
		ChibiOS: []string{
			"cortex-m0",
			"cortex-m0plus",
			"cortex-m3",
			"cortex-m4",
			"MKL26Z64",
			"MK20DX128",
			"MK20DX256",
			"STM32F042",
			"STM32F072",
			"STM32F103",
			"STM32F303",
		},
		LUFA: []string{
			"at90usb646",
			"at90usb647",
			"at90usb1286",
			"at90usb1287",
			"atmega16u2",
			"atmega32u2",
			"atmega16u4",
			"atmega32u4",
		},
		VUSB: []string{
			"atmega32a",
			"atmega328p",
			"atmega328",
			"attiny85",
		},
	}
}

// LoadProfiles reads a YAML overlay file. A list present in the file
// replaces the built-in one; an absent list keeps its default. An empty
// path returns the defaults unchanged.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return profiles, fmt.Errorf("failed to read processor profiles %s: %w", path, err)
	}

	var overlay Profiles
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return profiles, fmt.Errorf("failed to parse processor profiles %s: %w", path, err)
	}

	if overlay.ChibiOS != nil {
		profiles.ChibiOS = overlay.ChibiOS
	}
	if overlay.LUFA != nil {
		profiles.LUFA = overlay.LUFA
	}
	if overlay.VUSB != nil {
		profiles.VUSB = overlay.VUSB
	}
	return profiles, nil
}
