package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kalambet/prowler/internal/boundary"
	"github.com/kalambet/prowler/internal/config"
	"github.com/kalambet/prowler/internal/history"
	"github.com/kalambet/prowler/internal/lookup"
	"github.com/kalambet/prowler/internal/metrics"
	"github.com/kalambet/prowler/internal/postcode"
	"github.com/kalambet/prowler/internal/preferences"
	"github.com/kalambet/prowler/internal/storage"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

// app is the wired set of components shared by every command.
type app struct {
	cfg     config.Config
	store   *storage.Store
	history *history.Store
	prefs   *preferences.Preferences
	metrics *metrics.Metrics
	orch    *lookup.Orchestrator
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	logger := slog.Default()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	m := metrics.New()
	hist := history.NewStore(store,
		history.WithMaxEntries(cfg.History.MaxEntries),
		history.WithRecorder(m),
		history.WithLogger(logger),
	)
	lookupClient := postcode.NewClient(cfg.Lookup.RelayURL, cfg.Lookup.UpstreamURL, cfg.Lookup.Timeout)
	boundaryClient := boundary.NewClient(boundary.Options{
		URL:               cfg.Boundary.URL,
		Area:              cfg.Boundary.Area,
		AdminLevel:        cfg.Boundary.AdminLevel,
		MaxAttempts:       cfg.Boundary.MaxAttempts,
		RequestsPerSecond: cfg.Boundary.RequestsPerSecond,
		Recorder:          m,
		Logger:            logger,
	})

	return &app{
		cfg:     cfg,
		store:   store,
		history: hist,
		prefs:   preferences.New(store),
		metrics: m,
		orch: lookup.New(lookupClient, boundaryClient, hist,
			lookup.WithRecorder(m),
			lookup.WithLogger(logger),
		),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
