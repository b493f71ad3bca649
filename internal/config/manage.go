package config

import (
	"fmt"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey validates value for key and writes it to the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

// UnsetKey removes key from the platform backend so its default applies.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), key)
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	// Reject values that would make every later Load fail.
	candidate := defaults()
	s.apply(&candidate, v)
	if err := candidate.validate(); err != nil {
		return err
	}
	// Floats and durations keep their text form so "1.5" and "30s" read back
	// exactly as written.
	if s.typ == kInt {
		return b.SetInt(key, v.(int))
	}
	return b.SetString(key, value)
}

func unsetKeyWith(b ConfigBackend, key string) error {
	if _, ok := lookupSpec(key); !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	return b.Delete(key)
}

// ValidKeys returns the list of config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
