// -----------------------------------------------------------------------
// Last Modified: Monday, 20th July 2026 11:42:17 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package classify

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// Classifier fills the processor fields on a keyboard record from its
// merged rules. An MCU outside every family list is reported once and
// classified unknown, never fatal.
type Classifier struct {
	profiles Profiles
	rec      interfaces.RunRecorder
	logger   arbor.ILogger
}

// NewClassifier creates a classifier. A nil profiles pointer selects the
// built-in family lists.
func NewClassifier(profiles *Profiles, rec interfaces.RunRecorder, logger arbor.ILogger) *Classifier {
	if logger == nil {
		logger = common.GetLogger()
	}

	resolved := DefaultProfiles()
	if profiles != nil {
		resolved = *profiles
	}

	return &Classifier{
		profiles: resolved,
		rec:      rec,
		logger:   logger,
	}
}

// Classify sets processor, processor_type, platform, bootloader and
// protocol on the record. A keyboard without an MCU assignment counts as
// an AVR board with an unknown processor, the convention the build
// system itself applies.
func (c *Classifier) Classify(record *models.KeyboardRecord, rulesMk *models.ConfigMap) {
	mcu, hasMCU := rulesMk.Get("MCU")

	switch {
	case c.isChibiOS(mcu):
		c.applyARM(record, rulesMk)
	case !hasMCU || inList(c.profiles.LUFA, mcu) || inList(c.profiles.VUSB, mcu):
		c.applyAVR(record, rulesMk)
	default:
		c.rec.Warningf("%s: Unknown MCU: %s", record.Folder, mcu)
		c.applyUnknown(record)
	}
}

func (c *Classifier) applyARM(record *models.KeyboardRecord, rulesMk *models.ConfigMap) {
	record.ProcessorType = "arm"
	record.Bootloader = rulesMk.GetDefault("BOOTLOADER", "unknown")
	record.Processor = rulesMk.GetDefault("MCU", "unknown")

	if record.Bootloader == "unknown" {
		if strings.Contains(record.Processor, "STM32") {
			record.Bootloader = "stm32-dfu"
		} else if record.Manufacturer == "Input Club" {
			record.Bootloader = "kiibohd-dfu"
		}
	}

	record.Protocol = "ChibiOS"
	switch {
	case strings.Contains(record.Processor, "STM32"):
		record.Platform = "STM32"
	case rulesMk.Has("MCU_SERIES"):
		record.Platform = rulesMk.GetDefault("MCU_SERIES", "")
	case rulesMk.Has("ARM_ATSAM"):
		record.Platform = "ARM_ATSAM"
		record.Protocol = "ATSAM"
	}
}

func (c *Classifier) applyAVR(record *models.KeyboardRecord, rulesMk *models.ConfigMap) {
	record.ProcessorType = "avr"
	record.Bootloader = rulesMk.GetDefault("BOOTLOADER", "atmel-dfu")
	record.Platform = rulesMk.GetDefault("ARCH", "unknown")
	record.Processor = rulesMk.GetDefault("MCU", "unknown")

	// TODO: read PROTOCOL from the rules once mcu_selection.mk
	// inheritance is resolved during config parsing
	if inList(c.profiles.VUSB, rulesMk.GetDefault("MCU", "")) {
		record.Protocol = "V-USB"
	} else {
		record.Protocol = "LUFA"
	}
}

func (c *Classifier) applyUnknown(record *models.KeyboardRecord) {
	record.Bootloader = "unknown"
	record.Platform = "unknown"
	record.Processor = "unknown"
	record.ProcessorType = "unknown"
	record.Protocol = "unknown"
}

func (c *Classifier) isChibiOS(mcu string) bool {
	if mcu == "" {
		return false
	}
	for _, prefix := range c.profiles.ChibiOS {
		if strings.HasPrefix(mcu, prefix) {
			return true
		}
	}
	return false
}

func inList(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}
