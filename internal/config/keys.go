package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "lookup.relay_url", typ: kString, env: "PROWLER_LOOKUP_RELAY_URL",
		apply:   func(cfg *Config, v any) { cfg.Lookup.RelayURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Lookup.RelayURL },
	},
	{
		key: "lookup.upstream_url", typ: kString, env: "PROWLER_LOOKUP_UPSTREAM_URL",
		apply:   func(cfg *Config, v any) { cfg.Lookup.UpstreamURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Lookup.UpstreamURL },
	},
	{
		key: "lookup.timeout", typ: kDuration, env: "PROWLER_LOOKUP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Lookup.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Lookup.Timeout },
	},
	{
		key: "boundary.url", typ: kString, env: "PROWLER_BOUNDARY_URL",
		apply:   func(cfg *Config, v any) { cfg.Boundary.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Boundary.URL },
	},
	{
		key: "boundary.area", typ: kString, env: "PROWLER_BOUNDARY_AREA",
		apply:   func(cfg *Config, v any) { cfg.Boundary.Area = v.(string) },
		extract: func(cfg Config) any { return cfg.Boundary.Area },
	},
	{
		key: "boundary.admin_level", typ: kInt, env: "PROWLER_BOUNDARY_ADMIN_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Boundary.AdminLevel = v.(int) },
		extract: func(cfg Config) any { return cfg.Boundary.AdminLevel },
	},
	{
		key: "boundary.max_attempts", typ: kInt, env: "PROWLER_BOUNDARY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Boundary.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Boundary.MaxAttempts },
	},
	{
		key: "boundary.requests_per_second", typ: kFloat, env: "PROWLER_BOUNDARY_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Boundary.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Boundary.RequestsPerSecond },
	},
	{
		key: "history.max_entries", typ: kInt, env: "PROWLER_HISTORY_MAX_ENTRIES",
		apply:   func(cfg *Config, v any) { cfg.History.MaxEntries = v.(int) },
		extract: func(cfg Config) any { return cfg.History.MaxEntries },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROWLER_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "PROWLER_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "PROWLER_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := parseValue(s.typ, v)
			if err != nil {
				slog.Warn("could not parse config key, using default", "key", s.key, "value", v, "error", err)
				continue
			}
			s.apply(cfg, parsed)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
