package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/politeness"
)

const maxBodySize = 16 << 20

// StatusError reports a non-200 answer from a source
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-200 status code %d from %s", e.StatusCode, e.URL)
}

// Client performs paced GET requests against the document sources.
// Each source gets its own circuit breaker; transient failures are retried
// with exponential backoff inside the breaker.
type Client struct {
	httpClient *http.Client
	politeness *politeness.Manager
	resilience config.ResilienceConfig
	userAgent  string
	logger     *logrus.Entry
	metrics    *metrics.Recorder

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a client from the politeness and resilience settings.
// pm and rec may be nil.
func NewClient(cfg *config.Config, pm *politeness.Manager, rec *metrics.Recorder, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.WithField("component", "fetcher")
	}
	if pm == nil {
		pm = politeness.NewManager(cfg.Politeness, logger, nil)
	}
	res := cfg.Resilience
	if res.RetryMaxAttempts < 1 {
		res.RetryMaxAttempts = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Politeness.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		politeness: pm,
		resilience: res,
		userAgent:  cfg.Politeness.UserAgent,
		logger:     logger,
		metrics:    rec,
		breakers:   make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Get downloads rawURL on behalf of source and returns the response body
func (c *Client) Get(ctx context.Context, source, rawURL string) ([]byte, error) {
	body, err := c.breaker(source).Execute(func() ([]byte, error) {
		return c.getWithRetry(ctx, source, rawURL)
	})
	c.metrics.ObserveRequest(source, err)
	return body, err
}

func (c *Client) getWithRetry(ctx context.Context, source, rawURL string) ([]byte, error) {
	backoff := c.resilience.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) || attempt >= c.resilience.RetryMaxAttempts {
			return nil, err
		}

		wait := min(backoff, c.resilience.RetryMaxBackoff)
		c.logger.WithFields(logrus.Fields{
			"source":       source,
			"attempt":      attempt,
			"max_attempts": c.resilience.RetryMaxAttempts,
			"backoff":      wait,
		}).WithError(err).Warn("Retrying source request")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		backoff *= 2
	}
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.politeness.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func (c *Client) breaker(source string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[source]; ok {
		return cb
	}

	minRequests := uint32(max(c.resilience.BreakerMinRequests, 1))
	settings := gobreaker.Settings{
		Name:    source,
		Timeout: c.resilience.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= c.resilience.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !recordFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](settings)
	c.breakers[source] = cb
	return cb
}

// IsCircuitOpen reports whether err came from an open breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, politeness.ErrDisallowed) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

// recordFailure decides whether err counts against the source's health.
// Cancellations, robots.txt refusals and 4xx answers other than 429 do not.
func recordFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, politeness.ErrDisallowed) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}
