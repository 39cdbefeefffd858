// Package alphavantage provides a client for the Alpha Vantage time-series
// API.
package alphavantage

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketlab/stockpipe/internal/model"
)

const defaultBaseURL = "https://www.alphavantage.co"

// FunctionDaily is the daily time-series API function.
const FunctionDaily = "TIME_SERIES_DAILY"

// Client defines the Alpha Vantage operations used by the fetch stage.
type Client interface {
	// Daily fetches the daily price series for a symbol, sorted by date
	// ascending.
	Daily(ctx context.Context, symbol string, opts ...DailyOption) ([]model.Bar, error)
}

// DailyOption configures a daily series request.
type DailyOption func(*dailyOpts)

type dailyOpts struct {
	function   string
	outputSize string
}

// WithFunction overrides the API function (default TIME_SERIES_DAILY).
func WithFunction(fn string) DailyOption {
	return func(o *dailyOpts) {
		o.function = fn
	}
}

// WithOutputSize sets the API output size: "compact" (100 days) or "full".
func WithOutputSize(size string) DailyOption {
	return func(o *dailyOpts) {
		o.outputSize = size
	}
}

// DailyOptionsFor builds request options from plain function and outputsize
// values, skipping empties.
func DailyOptionsFor(function, outputSize string) []DailyOption {
	var opts []DailyOption
	if function != "" {
		opts = append(opts, WithFunction(function))
	}
	if outputSize != "" {
		opts = append(opts, WithOutputSize(outputSize))
	}
	return opts
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLimiter replaces the request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithMaxRetries sets how many times transient failures are retried.
func WithMaxRetries(n int) Option {
	return func(c *httpClient) {
		c.maxRetries = n
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient creates an Alpha Vantage client. The default rate limiter
// matches the free-tier quota of 5 requests per minute.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(rate.Every(12*time.Second), 1),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// seriesEnvelope is the raw API response. Error payloads arrive with HTTP
// 200, so Note/Information/ErrorMessage are checked before the series.
type seriesEnvelope struct {
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	ErrorMessage string                       `json:"Error Message"`
	Daily        map[string]map[string]string `json:"Time Series (Daily)"`
}

func (c *httpClient) Daily(ctx context.Context, symbol string, opts ...DailyOption) ([]model.Bar, error) {
	o := dailyOpts{function: FunctionDaily, outputSize: "full"}
	for _, opt := range opts {
		opt(&o)
	}

	q := url.Values{}
	q.Set("function", o.function)
	q.Set("symbol", symbol)
	q.Set("outputsize", o.outputSize)
	q.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/query?" + q.Encode()

	body, err := c.get(ctx, reqURL, symbol)
	if err != nil {
		return nil, err
	}

	var env seriesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrapf(err, "alphavantage: decode response for %s", symbol)
	}
	switch {
	case env.ErrorMessage != "":
		return nil, eris.Errorf("alphavantage: api error for %s: %s", symbol, env.ErrorMessage)
	case env.Note != "":
		return nil, eris.Errorf("alphavantage: rate limited for %s: %s", symbol, env.Note)
	case env.Daily == nil:
		if env.Information != "" {
			return nil, eris.Errorf("alphavantage: api error for %s: %s", symbol, env.Information)
		}
		return nil, eris.Errorf("alphavantage: response for %s has no daily series", symbol)
	}

	bars, err := parseSeries(env.Daily)
	if err != nil {
		return nil, eris.Wrapf(err, "alphavantage: parse series for %s", symbol)
	}
	return bars, nil
}

func (c *httpClient) get(ctx context.Context, reqURL, symbol string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "alphavantage: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "alphavantage: create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("alphavantage request failed, retrying",
				zap.String("symbol", symbol),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("alphavantage: http %d for %s", resp.StatusCode, symbol)
			zap.L().Warn("alphavantage transient status, retrying",
				zap.String("symbol", symbol),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("alphavantage: unexpected status %d for %s", resp.StatusCode, symbol)
		}

		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "alphavantage: read response for %s", symbol)
		}
		return b, nil
	}
	return nil, eris.Wrap(lastErr, "alphavantage: all retries exhausted")
}

func (c *httpClient) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// parseSeries converts the keyed API series to sorted bars. Dates are UTC
// midnights.
func parseSeries(series map[string]map[string]string) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(series))
	for date, fields := range series {
		day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "parse date %q", date)
		}
		bar := model.Bar{Date: day}
		for key, dst := range map[string]*float64{
			"1. open":   &bar.Open,
			"2. high":   &bar.High,
			"3. low":    &bar.Low,
			"4. close":  &bar.Close,
			"5. volume": &bar.Volume,
		} {
			raw, ok := fields[key]
			if !ok {
				return nil, eris.Errorf("date %s is missing field %q", date, key)
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "parse %s for %s", key, date)
			}
			*dst = v
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
