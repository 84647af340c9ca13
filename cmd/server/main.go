package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/api"
	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/engine"
	"github.com/knowledge-engine/corpus/internal/fetcher"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/politeness"
	"github.com/knowledge-engine/corpus/internal/storage"
)

func main() {
	// Setup Logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logger.WithField("service", "corpus-api")

	// 1. Config
	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		entry.Warnf("Unknown log level %q, keeping info", cfg.LogLevel)
	}
	if cfg.Corpora.File != "" {
		themes, err := config.LoadCorporaFile(cfg.Corpora.File, cfg.Corpora.DefaultSize)
		if err != nil {
			entry.Fatalf("Failed to load corpora: %v", err)
		}
		cfg.Corpora.Themes = themes
	}

	entry.WithField("corpora", len(cfg.Corpora.Themes)).Info("Starting Corpus API Service")

	// 2. Snapshot storage
	store, err := storage.NewCSVStore(cfg.Storage.DataDir, cfg.Storage.Separator)
	if err != nil {
		entry.Fatalf("Failed to initialize storage: %v", err)
	}

	// 3. Sources
	rec := metrics.NewRecorder()
	pm := politeness.NewManager(cfg.Politeness, entry.WithField("component", "politeness"), nil)
	sources := fetcher.NewFromConfig(cfg, pm, rec, entry.WithField("component", "fetcher"))

	// 4. Engine
	eng, err := engine.NewEngine(cfg, entry.WithField("component", "engine"), sources, store, rec)
	if err != nil {
		entry.Fatalf("Failed to initialize engine: %v", err)
	}
	if cfg.Corpora.Preload {
		go func() {
			if err := eng.Preload(context.Background()); err != nil {
				entry.WithError(err).Warn("Some corpora failed to preload, they load on first use")
			}
		}()
	}

	// 5. API Server
	server := api.NewServer(eng, pm, entry)
	if err := server.Start(cfg.Server.Addr); err != nil {
		entry.Fatal(err)
	}
}
