// Package omdb is the metadata gateway: it resolves (title, year) pairs
// against the OMDb HTTP API using a shared pool of rate-limited credentials.
package omdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"log/slog"

	"github.com/goccy/go-json"
	"github.com/quelan/filmlens/lib/metrics"
	"github.com/quelan/filmlens/models"
	"golang.org/x/time/rate"
)

// rateLimitError is the exact provider payload that triggers credential
// rotation. Any other Error payload is terminal for that title.
const rateLimitError = "Request limit reached!"

var (
	// ErrOutage signals a provider-side failure (5xx). Callers abort the
	// whole batch rather than recording it per title.
	ErrOutage = errors.New("metadata provider unavailable")

	// ErrKeyPoolExhausted is raised when every credential in the pool has
	// hit its request limit. This is a fatal configuration condition.
	ErrKeyPoolExhausted = errors.New("all API keys have been used up")
)

// NotFoundError carries the provider's terminal error payload for a single
// title. Callers branch on it to record the failure and continue.
type NotFoundError struct {
	Title   string
	Year    string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("movie not found: %s (%s): %s", e.Title, e.Year, e.Message)
}

type Client struct {
	baseURL    string
	keys       []string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// mu guards keyIndex; one Client is shared by every request the
	// server handles.
	mu       sync.Mutex
	keyIndex int
}

// Options configures a Client. Timeout bounds every provider request so a
// stalled provider cannot hang the synchronous pipeline.
type Options struct {
	BaseURL        string
	Keys           []string
	Timeout        time.Duration
	RequestsPerSec float64
}

func NewClient(opts Options, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	if len(opts.Keys) == 0 {
		return nil, fmt.Errorf("omdb: credential pool is empty")
	}
	return &Client{
		baseURL:    opts.BaseURL,
		keys:       opts.Keys,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		logger:     logger,
		metrics:    m,
	}, nil
}

// payload is the provider response: either flat film attributes or an
// Error string.
type payload struct {
	models.Film
	Error string `json:"Error"`
}

// Resolve looks up a film by title and year. On the provider's rate-limit
// payload it advances to the next credential and retries the same lookup;
// the loop is bounded by the pool size, and running off its end returns
// ErrKeyPoolExhausted. A 5xx response returns ErrOutage, a terminal
// provider error returns *NotFoundError.
func (c *Client) Resolve(ctx context.Context, title, year string) (*models.Film, error) {
	// One lookup at a time: concurrent uploads share the credential pool,
	// and the limiter paces requests anyway.
	c.mu.Lock()
	defer c.mu.Unlock()

	// The cursor is not reset between lookups: once a key is burned for
	// the day there is no point retrying it this run.
	for ; c.keyIndex < len(c.keys); c.keyIndex++ {
		p, err := c.fetch(ctx, c.keys[c.keyIndex], title, year)
		if err != nil {
			return nil, err
		}

		if p.Error == rateLimitError {
			c.metrics.KeyRotations.Inc()
			c.logger.Warn("API key exhausted, rotating",
				slog.Int("key_index", c.keyIndex),
				slog.Int("pool_size", len(c.keys)))
			continue
		}
		if p.Error != "" {
			c.metrics.Lookups.WithLabelValues("not_found").Inc()
			return nil, &NotFoundError{Title: title, Year: year, Message: p.Error}
		}

		c.metrics.Lookups.WithLabelValues("ok").Inc()
		film := p.Film
		return &film, nil
	}

	return nil, ErrKeyPoolExhausted
}

func (c *Client) fetch(ctx context.Context, key, title, year string) (*payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("apikey", key)
	q.Set("t", title)
	q.Set("y", year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Lookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", slog.Any("error", err))
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.metrics.Lookups.WithLabelValues("outage").Inc()
		return nil, fmt.Errorf("%w: status %d", ErrOutage, resp.StatusCode)
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		c.metrics.Lookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &p, nil
}
