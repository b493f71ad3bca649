//go:build !darwin

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "prowler")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "prowler-data"
	}
	return filepath.Join(home, ".local", "share", "prowler")
}

func configFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "prowler", "config.json")
}

// fileBackend keeps settings in a flat JSON object, e.g.
//
//	{"boundary.area": "Wales", "server.port": 4200}
type fileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

// newFileBackend reads path once. A missing or unreadable file yields an
// empty backend so defaults apply.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("could not read config file, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			slog.Warn("could not parse config file, using defaults", "path", path, "error", err)
			b.values = map[string]json.RawMessage{}
		}
	}
	return b
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Hand-edited files may hold bare numbers for string keys.
		return string(bytes.TrimSpace(raw)), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return 0, false, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, true, fmt.Errorf("value %s for %s is not an integer", raw, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	return b.set(key, val)
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.set(key, val)
}

func (b *fileBackend) Delete(key string) error {
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	return b.save()
}

func (b *fileBackend) set(key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b.values[key] = raw
	return b.save()
}

// save replaces the file through a rename so readers never see a partial
// write.
func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
