package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Lookup   LookupConfig
	Boundary BoundaryConfig
	History  HistoryConfig
	Storage  StorageConfig
	Server   ServerConfig
	Log      LogConfig
}

type LookupConfig struct {
	RelayURL    string
	UpstreamURL string
	Timeout     time.Duration
}

type BoundaryConfig struct {
	URL               string
	Area              string
	AdminLevel        int
	MaxAttempts       int
	RequestsPerSecond float64
}

type HistoryConfig struct {
	MaxEntries int
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

// Upper bounds for settings whose limits are part of the lookup contract.
const (
	MaxHistoryEntries   = 20
	MaxBoundaryAttempts = 3
)

// DotEnvFile is read from the working directory before environment
// overrides are applied. Variables already set in the environment win.
const DotEnvFile = ".env"

func defaults() Config {
	return Config{
		Lookup: LookupConfig{
			RelayURL:    "https://cf-cors-air.pathway-group.workers.dev/api/",
			UpstreamURL: "https://pathwaygroup.co.uk/dev/hubhook/hspics/src/postcodes/v2/api/asf",
			Timeout:     15 * time.Second,
		},
		Boundary: BoundaryConfig{
			URL:               "https://overpass-api.de/api/interpreter",
			Area:              "England",
			AdminLevel:        8,
			MaxAttempts:       MaxBoundaryAttempts,
			RequestsPerSecond: 1,
		},
		History: HistoryConfig{
			MaxEntries: MaxHistoryEntries,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file
// and environment variables.
//
// On macOS the backend is UserDefaults (domain: com.prowler.app).
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/prowler/config.json.
//
// Environment variables (PROWLER_*) override backend values on all platforms.
func Load() (Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", DotEnvFile, err)
	}
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Boundary.AdminLevel < 1:
		return fmt.Errorf("invalid config: boundary.admin_level must be positive, got %d", c.Boundary.AdminLevel)
	case c.Boundary.MaxAttempts < 1 || c.Boundary.MaxAttempts > MaxBoundaryAttempts:
		return fmt.Errorf("invalid config: boundary.max_attempts must be between 1 and %d, got %d", MaxBoundaryAttempts, c.Boundary.MaxAttempts)
	case c.Boundary.RequestsPerSecond < 0:
		return fmt.Errorf("invalid config: boundary.requests_per_second must not be negative")
	case c.History.MaxEntries < 1 || c.History.MaxEntries > MaxHistoryEntries:
		return fmt.Errorf("invalid config: history.max_entries must be between 1 and %d, got %d", MaxHistoryEntries, c.History.MaxEntries)
	case c.Lookup.Timeout <= 0:
		return fmt.Errorf("invalid config: lookup.timeout must be positive")
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	return nil
}
