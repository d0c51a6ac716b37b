package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	marketChartPathFmt      = "/coins/%s/market_chart"
	demoAPIKeyHeader        = "x-cg-demo-api-key"
)

// CoinGeckoOptions parameterise the CoinGecko fetcher.
type CoinGeckoOptions struct {
	BaseURL         string
	CoinID          string
	VsCurrency      string
	Days            string
	APIKey          string
	UserAgent       string
	Timeout         time.Duration
	RequestsPerSec  float64
	MaxRetries      int
	MaxRetryElapsed time.Duration
	InitialBackoff  time.Duration
}

// CoinGecko fetches market charts from the public CoinGecko API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewCoinGecko constructs a CoinGecko fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}

	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		baseURL: baseURL,
	}
}

// FetchMarketChart retrieves prices and total volumes for the configured coin.
func (c *CoinGecko) FetchMarketChart(ctx context.Context) (MarketChart, error) {
	if c.opts.CoinID == "" {
		return MarketChart{}, errors.New("coin id not configured")
	}
	if c.opts.VsCurrency == "" || c.opts.Days == "" {
		return MarketChart{}, errors.New("vs_currency and days required")
	}

	endpoint := c.baseURL + fmt.Sprintf(marketChartPathFmt, url.PathEscape(c.opts.CoinID))
	query := url.Values{}
	query.Set("vs_currency", c.opts.VsCurrency)
	query.Set("days", c.opts.Days)
	endpoint += "?" + query.Encode()

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		payload, err := c.get(ctx, endpoint)
		if err != nil {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("market chart request failed")
			return err
		}
		body = payload
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return MarketChart{}, fmt.Errorf("fetch market chart: %w", err)
	}

	chart, err := decodeMarketChart(c.opts.CoinID, body)
	if err != nil {
		return MarketChart{}, err
	}

	c.logger.Debug().
		Str("coin", c.opts.CoinID).
		Int("prices", len(chart.Prices)).
		Int("volumes", len(chart.Volumes)).
		Int("attempts", attempt).
		Msg("market chart fetched")
	return chart, nil
}

func (c *CoinGecko) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if c.opts.InitialBackoff > 0 {
		exp.InitialInterval = c.opts.InitialBackoff
	}
	exp.MaxElapsedTime = 30 * time.Second
	if c.opts.MaxRetryElapsed > 0 {
		exp.MaxElapsedTime = c.opts.MaxRetryElapsed
	}

	var b backoff.BackOff = exp
	if c.opts.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

func (c *CoinGecko) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "anomalywatch/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set(demoAPIKeyHeader, c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	return payload, nil
}

// HTTPStatusError represents a non-200 response from the provider.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("coingecko api error (%d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("coingecko api error (%d)", e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var _ MarketChartFetcher = (*CoinGecko)(nil)
