package rules

import (
	"strings"

	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
)

// ParseRules reads make-style assignment text into rules, allocating a new
// map when rules is nil. Each line is trimmed and cut at the first '#'
// before the assignment scan. "+=" grows an existing value by a single
// space plus the new text, plain "=" overwrites. Lines carrying no
// assignment (make directives, includes) are ignored. The name is only
// used in recorded messages.
func ParseRules(name, text string, rules *models.ConfigMap, rec interfaces.RunRecorder) *models.ConfigMap {
	if rules == nil {
		rules = models.NewConfigMap()
	}

	for num, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line == "" {
			continue
		}

		if !strings.Contains(line, "=") {
			continue
		}

		if strings.Contains(line, "+=") {
			key, value, _ := strings.Cut(line, "+=")
			key = strings.TrimSpace(key)
			if key == "" {
				rec.Errorf("%s: Malformed assignment! On or around line %d", name, num)
				continue
			}
			rules.Append(key, strings.TrimSpace(value))
			continue
		}

		key, value, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			rec.Errorf("%s: Malformed assignment! On or around line %d", name, num)
			continue
		}
		rules.Set(key, strings.TrimSpace(value))
	}

	return rules
}

// ParseDefines reads #define/#undef directives into defs, allocating a new
// map when defs is nil. Trailing "//" comments are cut before the
// directive is split on whitespace. A #define with no identifier and a
// #undef with anything other than exactly one identifier are recorded as
// errors and skipped.
func ParseDefines(name, text string, defs models.DefineMap, rec interfaces.RunRecorder) models.DefineMap {
	if defs == nil {
		defs = make(models.DefineMap)
	}

	for num, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)

		switch fields[0] {
		case "#define":
			switch {
			case len(fields) == 1:
				rec.Errorf("%s: Incomplete #define! On or around line %d", name, num)
			case len(fields) == 2:
				defs.SetFlag(fields[1])
			default:
				defs.SetValue(fields[1], strings.Join(fields[2:], " "))
			}

		case "#undef":
			if len(fields) == 2 {
				defs.Undef(fields[1])
			} else {
				rec.Errorf("%s: Incomplete #undef! On or around line %d", name, num)
			}
		}
	}

	return defs
}
