package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"github.com/knowledge-engine/corpus/internal/config"
)

// ErrDisallowed is returned when robots.txt forbids a URL
var ErrDisallowed = errors.New("URL blocked by robots.txt")

// Manager paces requests per host and optionally honors robots.txt.
// It is safe for concurrent use.
type Manager struct {
	config      config.PolitenessConfig
	logger      *logrus.Entry
	client      *http.Client
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*RobotsEntry
	mu          sync.Mutex

	stats Statistics
}

// RobotsEntry caches robots.txt data
type RobotsEntry struct {
	robots    *robotstxt.RobotsData
	fetchTime time.Time
}

// Statistics holds politeness manager statistics
type Statistics struct {
	TotalRequests    int64            `json:"total_requests"`
	RejectedRequests int64            `json:"rejected_requests"`
	HostRequests     map[string]int64 `json:"host_requests"`
	StartTime        time.Time        `json:"start_time"`
}

// NewManager creates a politeness manager. A nil client gets one with
// the configured request timeout.
func NewManager(cfg config.PolitenessConfig, logger *logrus.Entry, client *http.Client) *Manager {
	if logger == nil {
		logger = logrus.WithField("component", "politeness")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &Manager{
		config:      cfg,
		logger:      logger,
		client:      client,
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*RobotsEntry),
		stats: Statistics{
			HostRequests: make(map[string]int64),
			StartTime:    time.Now(),
		},
	}
}

// Wait blocks until a request to rawURL may be sent.
// It fails for malformed or non-HTTP URLs, for URLs robots.txt forbids,
// and when ctx ends first.
func (m *Manager) Wait(ctx context.Context, rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only HTTP/HTTPS URLs are supported")
	}

	allowed, err := m.IsURLAllowed(ctx, rawURL)
	if err != nil {
		return err
	}
	if !allowed {
		m.updateStats(func(stats *Statistics) {
			stats.RejectedRequests++
		})
		m.logger.WithField("url", rawURL).Debug("URL blocked by robots.txt")
		return ErrDisallowed
	}

	limiter := m.limiter(parsedURL.Host)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	m.updateStats(func(stats *Statistics) {
		stats.TotalRequests++
		stats.HostRequests[parsedURL.Host]++
	})
	return nil
}

// IsURLAllowed checks if URL is allowed according to robots.txt
func (m *Manager) IsURLAllowed(ctx context.Context, rawURL string) (bool, error) {
	if !m.config.EnableRobotsCheck {
		return true, nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	robotsData, err := m.getRobotsData(ctx, parsedURL.Scheme, parsedURL.Host)
	if err != nil {
		m.logger.WithError(err).WithField("host", parsedURL.Host).Warn("Failed to get robots.txt, allowing request")
		return true, nil
	}
	if robotsData == nil {
		return true, nil
	}

	group := robotsData.FindGroup(m.config.UserAgent)
	if group == nil {
		return true, nil
	}
	return group.Test(parsedURL.Path), nil
}

// GetStatistics returns a copy of the current statistics
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.HostRequests = make(map[string]int64, len(m.stats.HostRequests))
	for host, n := range m.stats.HostRequests {
		stats.HostRequests[host] = n
	}
	return stats
}

func (m *Manager) limiter(host string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[host]; ok {
		return l
	}
	every := rate.Inf
	if m.config.MinDelay > 0 {
		every = rate.Every(m.config.MinDelay)
	}
	l := rate.NewLimiter(every, m.config.Burst)
	m.limiters[host] = l
	m.logger.WithField("host", host).Debug("Created new host limiter")
	return l
}

// getRobotsData fetches and caches robots.txt data. A missing robots.txt
// is cached as nil.
func (m *Manager) getRobotsData(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	m.mu.Lock()
	entry, exists := m.robotsCache[host]
	m.mu.Unlock()

	if exists && time.Since(entry.fetchTime) < m.config.RobotsCacheDuration {
		return entry.robots, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", m.config.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	var robotsData *robotstxt.RobotsData
	if resp.StatusCode == http.StatusOK {
		robotsData, err = robotstxt.FromResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
		}
	}

	m.mu.Lock()
	m.robotsCache[host] = &RobotsEntry{
		robots:    robotsData,
		fetchTime: time.Now(),
	}
	m.mu.Unlock()

	return robotsData, nil
}

func (m *Manager) updateStats(updateFn func(*Statistics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updateFn(&m.stats)
}
