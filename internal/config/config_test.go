package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
	err     error
}

func newMemBackend() *memBackend {
	return &memBackend{strings: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error {
	m.strings[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.ints[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func mustLoad(t *testing.T, b ConfigBackend) Config {
	t.Helper()
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	return cfg
}

// TestDefaults verifies every default applies when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg := mustLoad(t, newMemBackend())

	if cfg.Lookup.RelayURL != "https://cf-cors-air.pathway-group.workers.dev/api/" {
		t.Errorf("Lookup.RelayURL = %q", cfg.Lookup.RelayURL)
	}
	if cfg.Lookup.UpstreamURL != "https://pathwaygroup.co.uk/dev/hubhook/hspics/src/postcodes/v2/api/asf" {
		t.Errorf("Lookup.UpstreamURL = %q", cfg.Lookup.UpstreamURL)
	}
	if cfg.Lookup.Timeout != 15*time.Second {
		t.Errorf("Lookup.Timeout = %v, want 15s", cfg.Lookup.Timeout)
	}
	if cfg.Boundary.URL != "https://overpass-api.de/api/interpreter" {
		t.Errorf("Boundary.URL = %q", cfg.Boundary.URL)
	}
	if cfg.Boundary.Area != "England" {
		t.Errorf("Boundary.Area = %q, want England", cfg.Boundary.Area)
	}
	if cfg.Boundary.AdminLevel != 8 {
		t.Errorf("Boundary.AdminLevel = %d, want 8", cfg.Boundary.AdminLevel)
	}
	if cfg.Boundary.MaxAttempts != 3 {
		t.Errorf("Boundary.MaxAttempts = %d, want 3", cfg.Boundary.MaxAttempts)
	}
	if cfg.Boundary.RequestsPerSecond != 1.0 {
		t.Errorf("Boundary.RequestsPerSecond = %v, want 1", cfg.Boundary.RequestsPerSecond)
	}
	if cfg.History.MaxEntries != 20 {
		t.Errorf("History.MaxEntries = %d, want 20", cfg.History.MaxEntries)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.strings["boundary.area"] = "Wales"
	b.strings["lookup.timeout"] = "5s"
	b.strings["boundary.requests_per_second"] = "0.5"
	b.strings["storage.data_dir"] = "/tmp/prowler-test"
	b.ints["history.max_entries"] = 5
	b.ints["server.port"] = 9000

	cfg := mustLoad(t, b)

	if cfg.Boundary.Area != "Wales" {
		t.Errorf("Boundary.Area = %q, want Wales", cfg.Boundary.Area)
	}
	if cfg.Lookup.Timeout != 5*time.Second {
		t.Errorf("Lookup.Timeout = %v, want 5s", cfg.Lookup.Timeout)
	}
	if cfg.Boundary.RequestsPerSecond != 0.5 {
		t.Errorf("Boundary.RequestsPerSecond = %v, want 0.5", cfg.Boundary.RequestsPerSecond)
	}
	if cfg.Storage.DataDir != "/tmp/prowler-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.History.MaxEntries != 5 {
		t.Errorf("History.MaxEntries = %d, want 5", cfg.History.MaxEntries)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
}

func TestBackendUnparseableValueKeepsDefault(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.strings["lookup.timeout"] = "soon"

	if cfg := mustLoad(t, b); cfg.Lookup.Timeout != 15*time.Second {
		t.Errorf("Lookup.Timeout = %v, want default 15s", cfg.Lookup.Timeout)
	}
}

func TestBackendError(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.err = fmt.Errorf("defaults unavailable")

	_, err := loadWith(b)
	if err == nil || !strings.Contains(err.Error(), "defaults unavailable") {
		t.Errorf("loadWith error = %v, want backend error", err)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROWLER_BOUNDARY_URL", "http://localhost:12345/api/interpreter")
	t.Setenv("PROWLER_BOUNDARY_MAX_ATTEMPTS", "1")
	t.Setenv("PROWLER_LOOKUP_TIMEOUT", "2s")
	t.Setenv("PROWLER_LOG_LEVEL", "debug")

	b := newMemBackend()
	b.strings["boundary.url"] = "http://file.example"
	b.ints["boundary.max_attempts"] = 2

	cfg := mustLoad(t, b)

	if cfg.Boundary.URL != "http://localhost:12345/api/interpreter" {
		t.Errorf("Boundary.URL = %q, want env value", cfg.Boundary.URL)
	}
	if cfg.Boundary.MaxAttempts != 1 {
		t.Errorf("Boundary.MaxAttempts = %d, want env value 1", cfg.Boundary.MaxAttempts)
	}
	if cfg.Lookup.Timeout != 2*time.Second {
		t.Errorf("Lookup.Timeout = %v, want 2s", cfg.Lookup.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestEnvOverride_InvalidValueIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROWLER_SERVER_PORT", "not-a-port")

	if cfg := mustLoad(t, newMemBackend()); cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"admin level", func(c *Config) { c.Boundary.AdminLevel = 0 }, true},
		{"no attempts", func(c *Config) { c.Boundary.MaxAttempts = 0 }, true},
		{"attempts at cap", func(c *Config) { c.Boundary.MaxAttempts = MaxBoundaryAttempts }, false},
		{"attempts over cap", func(c *Config) { c.Boundary.MaxAttempts = MaxBoundaryAttempts + 1 }, true},
		{"rps", func(c *Config) { c.Boundary.RequestsPerSecond = -1 }, true},
		{"no entries", func(c *Config) { c.History.MaxEntries = 0 }, true},
		{"entries at cap", func(c *Config) { c.History.MaxEntries = MaxHistoryEntries }, false},
		{"entries over cap", func(c *Config) { c.History.MaxEntries = 100 }, true},
		{"timeout", func(c *Config) { c.Lookup.Timeout = 0 }, true},
		{"port too big", func(c *Config) { c.Server.Port = 70000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RejectsValuesOverCap(t *testing.T) {
	clearEnv(t)

	b := newMemBackend()
	b.ints["history.max_entries"] = 100
	if _, err := loadWith(b); err == nil {
		t.Error("history.max_entries = 100: expected error")
	}

	b = newMemBackend()
	t.Setenv("PROWLER_BOUNDARY_MAX_ATTEMPTS", "10")
	if _, err := loadWith(b); err == nil {
		t.Error("PROWLER_BOUNDARY_MAX_ATTEMPTS=10: expected error")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend()

	for _, kv := range [][2]string{
		{"boundary.area", "Scotland"},
		{"history.max_entries", "10"},
		{"lookup.timeout", "30s"},
		{"boundary.requests_per_second", "2"},
	} {
		if err := setKeyWith(b, kv[0], kv[1]); err != nil {
			t.Fatalf("setKeyWith(%s, %s): %v", kv[0], kv[1], err)
		}
	}

	if b.strings["boundary.area"] != "Scotland" {
		t.Errorf("boundary.area = %q", b.strings["boundary.area"])
	}
	if b.ints["history.max_entries"] != 10 {
		t.Errorf("history.max_entries = %d, want 10", b.ints["history.max_entries"])
	}
	if b.strings["lookup.timeout"] != "30s" {
		t.Errorf("lookup.timeout = %q, want 30s", b.strings["lookup.timeout"])
	}
	if b.strings["boundary.requests_per_second"] != "2" {
		t.Errorf("boundary.requests_per_second = %q, want 2", b.strings["boundary.requests_per_second"])
	}

	invalid := []struct{ key, value string }{
		{"history.max_entries", "ten"},
		{"history.max_entries", "21"},
		{"boundary.max_attempts", "10"},
		{"lookup.timeout", "forever"},
		{"boundary.requests_per_second", "fast"},
	}
	for _, tt := range invalid {
		if err := setKeyWith(b, tt.key, tt.value); err == nil {
			t.Errorf("setKeyWith(%s, %s): expected error", tt.key, tt.value)
		}
	}
	if b.ints["history.max_entries"] != 10 {
		t.Errorf("rejected value was written: history.max_entries = %d", b.ints["history.max_entries"])
	}
	if _, ok := b.ints["boundary.max_attempts"]; ok {
		t.Error("rejected boundary.max_attempts was written")
	}

	if err := setKeyWith(b, "no.such.key", "x"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unknown key error = %v", err)
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	if err := setKeyWith(b, "server.port", "9000"); err != nil {
		t.Fatalf("setKeyWith: %v", err)
	}
	if err := unsetKeyWith(b, "server.port"); err != nil {
		t.Fatalf("unsetKeyWith: %v", err)
	}

	if cfg := mustLoad(t, b); cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}

	if err := unsetKeyWith(b, "no.such.key"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unknown key error = %v", err)
	}
}

func TestShowAllAndValidKeys(t *testing.T) {
	infos := ShowAll(defaults())
	keys := ValidKeys()
	if len(infos) != len(specs) || len(keys) != len(specs) {
		t.Fatalf("got %d infos and %d keys, want %d", len(infos), len(keys), len(specs))
	}

	byKey := map[string]KeyInfo{}
	for _, i := range infos {
		byKey[i.Key] = i
	}
	if v := byKey["lookup.timeout"].Value; v != "15s" {
		t.Errorf("lookup.timeout shown as %q, want 15s", v)
	}
	if env := byKey["server.port"].EnvVar; env != "PROWLER_SERVER_PORT" {
		t.Errorf("server.port env = %q", env)
	}
	if !slices.Contains(keys, "history.max_entries") {
		t.Errorf("ValidKeys missing history.max_entries: %v", keys)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	os.Unsetenv("PROWLER_BOUNDARY_AREA")

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("PROWLER_BOUNDARY_AREA=Cornwall\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("PROWLER_BOUNDARY_AREA") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Boundary.Area != "Cornwall" {
		t.Errorf("Boundary.Area = %q, want Cornwall from .env", cfg.Boundary.Area)
	}
}
