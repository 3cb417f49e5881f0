package models

import (
	"bytes"
	"encoding/json"
)

// ConfigMap holds make-style key/value settings in the order they were
// first assigned. Later assignments replace the value but keep the key's
// original position, matching how the firmware build files are read.
type ConfigMap struct {
	keys   []string
	values map[string]string
}

// NewConfigMap returns an empty, ready-to-use ConfigMap.
func NewConfigMap() *ConfigMap {
	return &ConfigMap{values: make(map[string]string)}
}

// Set assigns key to value, replacing any previous value.
func (c *ConfigMap) Set(key, value string) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Append implements the "+=" operator: an existing value grows by a single
// space plus the new text, an absent key behaves like a plain assignment.
func (c *ConfigMap) Append(key, value string) {
	if existing, ok := c.values[key]; ok {
		c.values[key] = existing + " " + value
		return
	}
	c.Set(key, value)
}

// Get returns the value for key and whether it is set. Reads on a nil
// map behave as reads on an empty one.
func (c *ConfigMap) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// GetDefault returns the value for key, or fallback when unset.
func (c *ConfigMap) GetDefault(key, fallback string) string {
	if v, ok := c.Get(key); ok {
		return v
	}
	return fallback
}

// Has reports whether key is set.
func (c *ConfigMap) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Len returns the number of keys.
func (c *ConfigMap) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the key names in first-assignment order.
func (c *ConfigMap) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// MarshalJSON emits a JSON object with keys in first-assignment order.
func (c *ConfigMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
