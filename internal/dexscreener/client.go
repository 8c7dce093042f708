package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-round-selector/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.dexscreener.com"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = rate.Limit(5)
	DefaultBurst     = 10

	// MaxBatchSize is the largest address list accepted by the pair lookup.
	MaxBatchSize = 30

	// DefaultMaxResponseBytes caps a response body.
	DefaultMaxResponseBytes int64 = 8 << 20
)

var (
	// ErrBatchTooLarge is returned when more than MaxBatchSize mints are requested at once.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrResponseTooLarge is returned when a body exceeds the configured cap.
	ErrResponseTooLarge = errors.New("response body too large")
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// Client talks to the market index over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	logger   *zap.Logger
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMaxResponseBytes caps response bodies. Non-positive values keep the default.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a market index client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		http:     &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		maxBytes: DefaultMaxResponseBytes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("dexscreener")
	return c
}

// LatestProfileMints returns up to limit distinct mints on chain from the
// newest token profiles feed, newest first.
func (c *Client) LatestProfileMints(ctx context.Context, chain string, limit int) ([]string, error) {
	return c.feedMints(ctx, "profiles", "/token-profiles/latest/v1", chain, limit)
}

// LatestBoostMints returns up to limit distinct mints on chain from the boosted tokens feed.
func (c *Client) LatestBoostMints(ctx context.Context, chain string, limit int) ([]string, error) {
	return c.feedMints(ctx, "boosts", "/token-boosts/latest/v1", chain, limit)
}

func (c *Client) feedMints(ctx context.Context, endpoint, path, chain string, limit int) ([]string, error) {
	body, err := c.get(ctx, endpoint, path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid json", endpoint)
	}

	query := fmt.Sprintf(`#(chainId==%q)#.tokenAddress`, chain)
	seen := make(map[string]struct{})
	mints := make([]string, 0, limit)
	for _, v := range gjson.GetBytes(body, query).Array() {
		mint := v.String()
		if mint == "" {
			continue
		}
		if _, dup := seen[mint]; dup {
			continue
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
		if limit > 0 && len(mints) >= limit {
			break
		}
	}
	return mints, nil
}

// TokenPairs returns every pair on chain that trades one of the given mints.
func (c *Client) TokenPairs(ctx context.Context, chain string, mints []string) ([]Pair, error) {
	if len(mints) == 0 {
		return nil, nil
	}
	if len(mints) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(mints), MaxBatchSize)
	}

	path := fmt.Sprintf("/tokens/v1/%s/%s", url.PathEscape(chain), strings.Join(mints, ","))
	body, err := c.get(ctx, "tokens", path)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("tokens: decode: %w", err)
	}
	return pairs, nil
}

// Search runs a free-text pair search.
func (c *Client) Search(ctx context.Context, query string) ([]Pair, error) {
	body, err := c.get(ctx, "search", "/latest/dex/search?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	return resp.Pairs, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordHTTPLatency(endpoint, time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", endpoint, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%s: %w: over %d bytes", endpoint, ErrResponseTooLarge, c.maxBytes)
	}
	c.logger.Debug("fetched", zap.String("endpoint", endpoint), zap.Int("bytes", len(body)))
	return body, nil
}
