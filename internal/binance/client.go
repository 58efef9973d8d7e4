package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public Binance spot REST API.
	DefaultBaseURL = "https://api.binance.com"
	// MaxKlineLimit is the largest candle window the klines endpoint serves.
	MaxKlineLimit = 1000

	defaultTimeout = 10 * time.Second
)

// Client for the Binance public market data endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout of the underlying http client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new market data client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance API error (status %d)", e.StatusCode)
}

// IsAPIError reports whether err carries an upstream HTTP error.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// Price from /api/v3/ticker/price
type Price struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,string"`
}

// Ticker24h from /api/v3/ticker/24hr
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	WeightedAvgPrice   float64 `json:"weightedAvgPrice,string"`
	PrevClosePrice     float64 `json:"prevClosePrice,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	BidPrice           float64 `json:"bidPrice,string"`
	AskPrice           float64 `json:"askPrice,string"`
	OpenPrice          float64 `json:"openPrice,string"`
	HighPrice          float64 `json:"highPrice,string"`
	LowPrice           float64 `json:"lowPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	OpenTime           int64   `json:"openTime"`
	CloseTime          int64   `json:"closeTime"`
	Count              int64   `json:"count"`
}

// Kline is one candlestick. Binance encodes it as a positional array.
type Kline struct {
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTime   int64
	QuoteVolume float64
	Trades      int64
}

// UnmarshalJSON decodes the array form
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "kline is not an array")
	}
	if len(raw) < 9 {
		return errors.Errorf("kline has %d fields, want at least 9", len(raw))
	}

	ints := []struct {
		idx int
		dst *int64
	}{{0, &k.OpenTime}, {6, &k.CloseTime}, {8, &k.Trades}}
	for _, f := range ints {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return errors.Wrapf(err, "kline field %d", f.idx)
		}
	}

	floats := []struct {
		idx int
		dst *float64
	}{{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume}, {7, &k.QuoteVolume}}
	for _, f := range floats {
		var s string
		if err := json.Unmarshal(raw[f.idx], &s); err != nil {
			return errors.Wrapf(err, "kline field %d", f.idx)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "kline field %d", f.idx)
		}
		*f.dst = v
	}
	return nil
}

// GetPrice fetches the latest traded price for a symbol
func (c *Client) GetPrice(ctx context.Context, symbol string) (*Price, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))

	var p Price
	if err := c.get(ctx, "/api/v3/ticker/price", q, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get24hTicker fetches rolling 24h statistics for a symbol
func (c *Client) Get24hTicker(ctx context.Context, symbol string) (*Ticker24h, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))

	var t Ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", q, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetKlines fetches up to limit candles, oldest first. limit is clamped to MaxKlineLimit.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if limit > MaxKlineLimit {
		limit = MaxKlineLimit
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var klines []Kline
	if err := c.get(ctx, "/api/v3/klines", q, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	log.Debug().
		Str("path", path).
		Str("query", query.Encode()).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("binance request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// Body is best effort; rate limit pages are not always JSON.
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
