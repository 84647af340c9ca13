// Package cli implements the corpusctl command line.
package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/engine"
	"github.com/knowledge-engine/corpus/internal/fetcher"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/politeness"
	"github.com/knowledge-engine/corpus/internal/storage"
)

var (
	dataDir  string
	logLevel string
	docCount int
)

// EngineFactory builds an engine serving the given corpora. Tests replace
// it to avoid network access.
type EngineFactory func(cfg *config.Config, logger *logrus.Entry) (*engine.Engine, error)

var newEngine EngineFactory = buildEngine

var rootCmd = &cobra.Command{
	Use:   "corpusctl",
	Short: "Build and query theme corpora",
	Long: `corpusctl loads a corpus of forum posts and paper abstracts for a theme,
keeps a snapshot of it on disk and answers keyword, context and
vocabulary queries against it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "snapshot directory (default $STORAGE_DATA_DIR or ./data)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().IntVarP(&docCount, "count", "c", 0, "corpus size (default $CORPORA_DEFAULT_SIZE)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func buildEngine(cfg *config.Config, logger *logrus.Entry) (*engine.Engine, error) {
	store, err := storage.NewCSVStore(cfg.Storage.DataDir, cfg.Storage.Separator)
	if err != nil {
		return nil, err
	}
	rec := metrics.NewRecorder()
	pm := politeness.NewManager(cfg.Politeness, logger.WithField("component", "politeness"), nil)
	sources := fetcher.NewFromConfig(cfg, pm, rec, logger.WithField("component", "fetcher"))
	return engine.NewEngine(cfg, logger, sources, store, rec)
}

// openCorpus builds an engine serving only the given themes, each sized
// by --count
func openCorpus(cmd *cobra.Command, themes ...string) (*engine.Engine, error) {
	cfg := config.Load()
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	size := docCount
	if size <= 0 {
		size = cfg.Corpora.DefaultSize
	}
	cfg.Corpora.Themes = nil
	for _, theme := range themes {
		cfg.Corpora.Themes = append(cfg.Corpora.Themes, config.CorpusSpec{Name: theme, Size: size})
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	return newEngine(cfg, logger.WithField("component", "corpusctl"))
}

func parseDay(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
