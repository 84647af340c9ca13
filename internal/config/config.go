package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the configuration for the corpus service
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Forum      SourceConfig
	Feed       SourceConfig
	Politeness PolitenessConfig
	Resilience ResilienceConfig
	Corpora    CorporaConfig
	LogLevel   string
}

type ServerConfig struct {
	Addr string
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	DataDir   string
	Separator string
}

// SourceConfig configures one of the two document sources
type SourceConfig struct {
	BaseURL       string
	MinTextLength int
	PageSize      int
}

// PolitenessConfig holds request pacing configuration
type PolitenessConfig struct {
	MinDelay            time.Duration
	Burst               int
	RequestTimeout      time.Duration
	RobotsCacheDuration time.Duration
	EnableRobotsCheck   bool
	UserAgent           string
}

// ResilienceConfig holds retry and circuit breaker settings for source calls
type ResilienceConfig struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// CorporaConfig lists the corpora served by the engine
type CorporaConfig struct {
	File               string
	DefaultSize        int
	Preload            bool
	PreloadConcurrency int
	Themes             []CorpusSpec
}

// CorpusSpec names one corpus and its target size
type CorpusSpec struct {
	Name string `toml:"name"`
	Size int    `toml:"size"`
}

// DefaultThemes are served when no corpora file is configured
var DefaultThemes = []string{"football", "basketball", "chess", "computer", "python"}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr: GetStringEnv("SERVER_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			DataDir:   GetStringEnv("STORAGE_DATA_DIR", "./data"),
			Separator: GetStringEnv("STORAGE_CSV_SEPARATOR", "\t"),
		},
		Forum: SourceConfig{
			BaseURL:       GetStringEnv("FORUM_BASE_URL", "https://www.reddit.com"),
			MinTextLength: GetIntEnv("FORUM_MIN_TEXT_LENGTH", 100),
			PageSize:      GetIntEnv("FORUM_PAGE_SIZE", 100),
		},
		Feed: SourceConfig{
			BaseURL:       GetStringEnv("FEED_BASE_URL", "http://export.arxiv.org"),
			MinTextLength: GetIntEnv("FEED_MIN_TEXT_LENGTH", 100),
			PageSize:      GetIntEnv("FEED_PAGE_SIZE", 100),
		},
		Politeness: PolitenessConfig{
			MinDelay:            GetDurationEnv("POLITENESS_MIN_DELAY", 3*time.Second),
			Burst:               GetIntEnv("POLITENESS_BURST", 1),
			RequestTimeout:      GetDurationEnv("POLITENESS_REQUEST_TIMEOUT", 30*time.Second),
			RobotsCacheDuration: GetDurationEnv("POLITENESS_ROBOTS_CACHE_DURATION", 24*time.Hour),
			EnableRobotsCheck:   GetBoolEnv("POLITENESS_ENABLE_ROBOTS_CHECK", false),
			UserAgent:           GetStringEnv("POLITENESS_USER_AGENT", "corpus-explorer/1.0"),
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:    GetIntEnv("RETRY_MAX_ATTEMPTS", 3),
			RetryInitialBackoff: GetDurationEnv("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
			RetryMaxBackoff:     GetDurationEnv("RETRY_MAX_BACKOFF", 10*time.Second),
			BreakerMinRequests:  GetIntEnv("BREAKER_MIN_REQUESTS", 5),
			BreakerFailureRatio: GetFloatEnv("BREAKER_FAILURE_RATIO", 0.6),
			BreakerOpenTimeout:  GetDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Corpora: CorporaConfig{
			File:               GetStringEnv("CORPORA_FILE", ""),
			DefaultSize:        GetIntEnv("CORPORA_DEFAULT_SIZE", 200),
			Preload:            GetBoolEnv("CORPORA_PRELOAD", true),
			PreloadConcurrency: GetIntEnv("CORPORA_PRELOAD_CONCURRENCY", 2),
		},
		LogLevel: GetStringEnv("LOG_LEVEL", "info"),
	}

	for _, name := range DefaultThemes {
		cfg.Corpora.Themes = append(cfg.Corpora.Themes, CorpusSpec{Name: name, Size: cfg.Corpora.DefaultSize})
	}
	return cfg
}

type corporaFile struct {
	Corpora []CorpusSpec `toml:"corpora"`
}

// LoadCorporaFile reads the corpus list from a TOML file:
//
//	[[corpora]]
//	name = "football"
//	size = 200
//
// Entries without a size get defaultSize.
func LoadCorporaFile(path string, defaultSize int) ([]CorpusSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpora file: %w", err)
	}

	var file corporaFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse corpora file: %w", err)
	}

	seen := make(map[string]bool)
	specs := make([]CorpusSpec, 0, len(file.Corpora))
	for _, spec := range file.Corpora {
		if spec.Name == "" {
			return nil, fmt.Errorf("corpora file %s: entry without a name", path)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("corpora file %s: duplicate corpus %q", path, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Size <= 0 {
			spec.Size = defaultSize
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
