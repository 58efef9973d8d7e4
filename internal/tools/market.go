package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/edibez/binanceagent/internal/binance"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultInterval = "1h"
	DefaultLimit    = 100
	// RecentCandles is how many of the newest candles are echoed back in full.
	RecentCandles = 10
)

// MarketData is the subset of the Binance client the tools need.
type MarketData interface {
	GetPrice(ctx context.Context, symbol string) (*binance.Price, error)
	Get24hTicker(ctx context.Context, symbol string) (*binance.Ticker24h, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]binance.Kline, error)
}

var usd = message.NewPrinter(language.English)

// FormatUSD renders a price as "$42,500.00".
func FormatUSD(v float64) string {
	return usd.Sprintf("$%.2f", v)
}

type symbolInput struct {
	Symbol string `json:"symbol" jsonschema:"description=Trading pair symbol such as BTCUSDT or ETHUSDT"`
}

type historicalInput struct {
	Symbol   string `json:"symbol" jsonschema:"description=Trading pair symbol such as BTCUSDT or ETHUSDT"`
	Interval string `json:"interval,omitempty" jsonschema:"description=Candle interval,default=1h,enum=1m,enum=3m,enum=5m,enum=15m,enum=30m,enum=1h,enum=2h,enum=4h,enum=6h,enum=8h,enum=12h,enum=1d,enum=3d,enum=1w,enum=1M"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Number of candles to fetch (at most 1000),default=100,minimum=1"`
}

func reflectSchema(v interface{}) *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	if s.Type == "" {
		s.Type = "object"
	}
	return s
}

func decodeSymbol(args json.RawMessage) (string, error) {
	var in symbolInput
	if err := json.Unmarshal(args, &in); err != nil {
		return "", errors.Wrap(err, "decode arguments")
	}
	return checkSymbol(in.Symbol)
}

func checkSymbol(raw string) (string, error) {
	symbol := binance.NormalizeSymbol(raw)
	if !binance.ValidSymbol(symbol) {
		return symbol, errors.Errorf("invalid symbol %q", raw)
	}
	return symbol, nil
}

// NewMarketTools returns the three read-only market data tools.
func NewMarketTools(md MarketData) []Tool {
	return []Tool{
		&priceTool{md: md, schema: reflectSchema(&symbolInput{})},
		&summaryTool{md: md, schema: reflectSchema(&symbolInput{})},
		&historicalTool{md: md, schema: reflectSchema(&historicalInput{})},
	}
}

type priceTool struct {
	md     MarketData
	schema *jsonschema.Schema
}

func (t *priceTool) Name() string { return "get_current_price" }

func (t *priceTool) Description() string {
	return "Get the current price of a cryptocurrency trading pair. " +
		"Input should be a trading pair symbol like BTCUSDT, ETHUSDT, BNBUSDT. " +
		"Use this when the user asks about current price or wants to know how much a crypto costs."
}

func (t *priceTool) Schema() *jsonschema.Schema { return t.schema }

func (t *priceTool) Call(ctx context.Context, args json.RawMessage) string {
	symbol, err := decodeSymbol(args)
	if err != nil {
		return fmt.Sprintf("Error getting price for %s: %v", symbol, err)
	}
	p, err := t.md.GetPrice(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error getting price for %s: %v", symbol, err)
	}
	return fmt.Sprintf("Current price of %s: %s", symbol, FormatUSD(p.Price))
}

// MarketSummary is the 24h snapshot returned by get_market_summary.
type MarketSummary struct {
	Symbol                string  `json:"symbol"`
	CurrentPrice          float64 `json:"current_price"`
	PriceChange24h        float64 `json:"price_change_24h"`
	PriceChangePercent24h float64 `json:"price_change_percent_24h"`
	High24h               float64 `json:"high_24h"`
	Low24h                float64 `json:"low_24h"`
	Volume24h             float64 `json:"volume_24h"`
	QuoteVolume24h        float64 `json:"quote_volume_24h"`
	NumberOfTrades        int64   `json:"number_of_trades"`
	OpenPrice             float64 `json:"open_price"`
	ClosePrice            float64 `json:"close_price"`
}

type summaryTool struct {
	md     MarketData
	schema *jsonschema.Schema
}

func (t *summaryTool) Name() string { return "get_market_summary" }

func (t *summaryTool) Description() string {
	return "Get 24-hour market statistics for a trading pair including price change, volume, high and low. " +
		"Use this when the user asks about market performance, trends or trading volume."
}

func (t *summaryTool) Schema() *jsonschema.Schema { return t.schema }

func (t *summaryTool) Call(ctx context.Context, args json.RawMessage) string {
	symbol, err := decodeSymbol(args)
	if err != nil {
		return fmt.Sprintf("Error getting market summary for %s: %v", symbol, err)
	}
	tk, err := t.md.Get24hTicker(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error getting market summary for %s: %v", symbol, err)
	}

	summary := MarketSummary{
		Symbol:                tk.Symbol,
		CurrentPrice:          tk.LastPrice,
		PriceChange24h:        tk.PriceChange,
		PriceChangePercent24h: tk.PriceChangePercent,
		High24h:               tk.HighPrice,
		Low24h:                tk.LowPrice,
		Volume24h:             tk.Volume,
		QuoteVolume24h:        tk.QuoteVolume,
		NumberOfTrades:        tk.Count,
		OpenPrice:             tk.OpenPrice,
		ClosePrice:            tk.LastPrice,
	}
	if summary.Symbol == "" {
		summary.Symbol = symbol
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error getting market summary for %s: %v", symbol, err)
	}
	return string(out)
}

// Candle is one entry of HistoricalData.RecentCandles.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Statistics are computed over every candle in the window, not just the recent ones.
type Statistics struct {
	HighestPrice       float64 `json:"highest_price"`
	LowestPrice        float64 `json:"lowest_price"`
	AverageVolume      float64 `json:"average_volume"`
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

// HistoricalData is returned by get_historical_data.
type HistoricalData struct {
	Symbol        string     `json:"symbol"`
	Interval      string     `json:"interval"`
	TotalCandles  int        `json:"total_candles"`
	RecentCandles []Candle   `json:"recent_candles"`
	Statistics    Statistics `json:"statistics"`
}

type historicalTool struct {
	md     MarketData
	schema *jsonschema.Schema
}

func (t *historicalTool) Name() string { return "get_historical_data" }

func (t *historicalTool) Description() string {
	return "Get historical candlestick (kline) data for a trading pair. " +
		"Inputs: symbol (e.g. BTCUSDT), interval (e.g. 1h, 4h, 1d), limit (number of candles). " +
		"Use this for technical analysis or when the user asks about price history or trends."
}

func (t *historicalTool) Schema() *jsonschema.Schema { return t.schema }

func (t *historicalTool) Call(ctx context.Context, args json.RawMessage) string {
	var in historicalInput
	if err := json.Unmarshal(args, &in); err != nil {
		return fmt.Sprintf("Error getting historical data for %s: %v", in.Symbol, errors.Wrap(err, "decode arguments"))
	}
	symbol, err := checkSymbol(in.Symbol)
	if err != nil {
		return fmt.Sprintf("Error getting historical data for %s: %v", symbol, err)
	}
	if in.Interval == "" {
		in.Interval = DefaultInterval
	}
	if in.Limit <= 0 {
		in.Limit = DefaultLimit
	}

	klines, err := t.md.GetKlines(ctx, symbol, in.Interval, in.Limit)
	if err != nil {
		return fmt.Sprintf("Error getting historical data for %s: %v", symbol, err)
	}
	data, err := Summarize(symbol, in.Interval, klines)
	if err != nil {
		return fmt.Sprintf("Error getting historical data for %s: %v", symbol, err)
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error getting historical data for %s: %v", symbol, err)
	}
	return string(out)
}

// Summarize builds HistoricalData from a window of candles, oldest first.
func Summarize(symbol, interval string, klines []binance.Kline) (*HistoricalData, error) {
	if len(klines) == 0 {
		return nil, errors.New("no candles returned")
	}
	firstOpen := klines[0].Open
	if firstOpen == 0 {
		return nil, errors.New("first candle has zero open price")
	}
	lastClose := klines[len(klines)-1].Close

	stats := Statistics{
		HighestPrice: math.Inf(-1),
		LowestPrice:  math.Inf(1),
	}
	var volume float64
	for _, k := range klines {
		stats.HighestPrice = math.Max(stats.HighestPrice, k.High)
		stats.LowestPrice = math.Min(stats.LowestPrice, k.Low)
		volume += k.Volume
	}
	stats.AverageVolume = volume / float64(len(klines))
	stats.PriceChange = lastClose - firstOpen
	stats.PriceChangePercent = stats.PriceChange / firstOpen * 100

	for _, v := range []float64{stats.HighestPrice, stats.LowestPrice, stats.AverageVolume, stats.PriceChange, stats.PriceChangePercent} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("statistics are not finite")
		}
	}

	start := len(klines) - RecentCandles
	if start < 0 {
		start = 0
	}
	recent := make([]Candle, 0, len(klines)-start)
	for _, k := range klines[start:] {
		recent = append(recent, Candle{
			Timestamp: k.OpenTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}

	return &HistoricalData{
		Symbol:        symbol,
		Interval:      interval,
		TotalCandles:  len(klines),
		RecentCandles: recent,
		Statistics:    stats,
	}, nil
}
