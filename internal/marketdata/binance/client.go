// Package binance reads public spot market data from the Binance REST API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/is42day/binance-trading-agent-sub000/internal/breaker"
	"github.com/is42day/binance-trading-agent-sub000/internal/model"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"

	// MaxKlines is the largest limit the klines endpoint accepts.
	MaxKlines = 1000
)

// Kline is one candlestick as returned by /api/v3/klines.
type Kline struct {
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTime   int64
	QuoteVolume float64
	Trades      int
}

// Candle converts k to the model candle for symbol.
func (k Kline) Candle(symbol string) model.Candle {
	return model.Candle{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance %s status %d: %s", e.Path, e.Code, e.Body)
}

// UpstreamFailure reports whether err means the exchange is unhealthy, as
// opposed to a rejected request such as an unknown symbol. Use it as the
// breaker's IsFailure.
func UpstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		// 429 and 418 are Binance rate-limit bans
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests || se.Code == http.StatusTeapot
	}
	return true
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host (tests, testnet).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables
// limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithErrorHook registers a callback for every failed request.
func WithErrorHook(fn func(path string, err error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithBreaker sheds requests while b is open. Build b with
// UpstreamFailure as its IsFailure.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// Client wraps the public market data endpoints. It implements
// model.CandleSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker.Breaker
	onError    func(path string, err error)
}

// NewClient creates a client for the production API limited to 10
// requests per second.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/api/v3/ping", nil)
	return err
}

// Klines returns the most recent limit klines, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	return c.KlinesBetween(ctx, symbol, interval, time.Time{}, time.Time{}, limit)
}

// KlinesBetween returns klines opened in [start, end]. Zero times are
// left to the exchange defaults.
func (c *Client) KlinesBetween(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(min(limit, MaxKlines)))
	}
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	body, err := c.do(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, c.fail("/api/v3/klines", fmt.Errorf("decode klines: %w", err))
	}

	out := make([]Kline, 0, len(raw))
	for i, item := range raw {
		k, err := parseKline(item)
		if err != nil {
			return nil, c.fail("/api/v3/klines", fmt.Errorf("kline %d: %w", i, err))
		}
		out = append(out, k)
	}
	return out, nil
}

// TickerPrice returns the latest traded price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	body, err := c.do(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, c.fail("/api/v3/ticker/price", fmt.Errorf("decode ticker: %w", err))
	}
	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, c.fail("/api/v3/ticker/price", fmt.Errorf("ticker price %q: %w", resp.Price, err))
	}
	return p, nil
}

// FetchCandles implements model.CandleSource.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	klines, err := c.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle, len(klines))
	for i, k := range klines {
		out[i] = k.Candle(symbol)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(path, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body []byte
	get := func() (err error) {
		body, err = c.get(ctx, path, u)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(get)
	} else {
		err = get()
	}
	if err != nil {
		return nil, c.fail(path, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("binance %s read body: %w", path, err)
	}
	if res.StatusCode >= 300 {
		return nil, &StatusError{Path: path, Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) fail(path string, err error) error {
	if c.onError != nil {
		c.onError(path, err)
	}
	return err
}

// parseKline reads the positional kline array. Prices arrive as strings.
func parseKline(item []any) (Kline, error) {
	if len(item) < 9 {
		return Kline{}, fmt.Errorf("expected at least 9 fields, got %d", len(item))
	}
	var (
		k   Kline
		err error
	)
	if k.OpenTime, err = toInt64(item[0]); err != nil {
		return Kline{}, fmt.Errorf("open time: %w", err)
	}
	for _, f := range []struct {
		dst *float64
		idx int
	}{
		{&k.Open, 1}, {&k.High, 2}, {&k.Low, 3}, {&k.Close, 4}, {&k.Volume, 5}, {&k.QuoteVolume, 7},
	} {
		if *f.dst, err = toFloat(item[f.idx]); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", f.idx, err)
		}
	}
	if k.CloseTime, err = toInt64(item[6]); err != nil {
		return Kline{}, fmt.Errorf("close time: %w", err)
	}
	trades, err := toInt64(item[8])
	if err != nil {
		return Kline{}, fmt.Errorf("trades: %w", err)
	}
	k.Trades = int(trades)
	return k, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	case json.Number:
		return t.Int64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
