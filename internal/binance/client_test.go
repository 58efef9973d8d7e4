package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithTimeout(2*time.Second))
}

func TestGetPriceUppercasesSymbol(t *testing.T) {
	var gotSymbol, gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"42500.00000000"}`))
	})

	p, err := c.GetPrice(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "/api/v3/ticker/price", gotPath)
	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.InDelta(t, 42500.0, p.Price, 1e-9)
}

func TestGet24hTicker(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"symbol":"ETHUSDT","priceChange":"-12.5","priceChangePercent":"-0.52",
			"lastPrice":"2400.10","openPrice":"2412.60","highPrice":"2450.00","lowPrice":"2380.00",
			"volume":"1234.5","quoteVolume":"2961234.1","count":98765
		}`))
	})

	tk, err := c.Get24hTicker(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tk.Symbol)
	assert.InDelta(t, -12.5, tk.PriceChange, 1e-9)
	assert.InDelta(t, 2400.10, tk.LastPrice, 1e-9)
	assert.Equal(t, int64(98765), tk.Count)
}

func TestGetKlinesClampsLimit(t *testing.T) {
	var gotLimit, gotInterval string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		gotInterval = r.URL.Query().Get("interval")
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700003599999,"1300.0",42,"6.0","600.0","0"],
			[1700003600000,"105.0","120.0","101.0","118.0","20.0",1700007199999,"2300.0",57,"9.0","900.0","0"]
		]`))
	})

	klines, err := c.GetKlines(context.Background(), "btcusdt", "1h", 5000)
	require.NoError(t, err)
	assert.Equal(t, "1000", gotLimit)
	assert.Equal(t, "1h", gotInterval)
	require.Len(t, klines, 2)

	k := klines[0]
	assert.Equal(t, int64(1700000000000), k.OpenTime)
	assert.InDelta(t, 100.0, k.Open, 1e-9)
	assert.InDelta(t, 110.0, k.High, 1e-9)
	assert.InDelta(t, 95.0, k.Low, 1e-9)
	assert.InDelta(t, 105.0, k.Close, 1e-9)
	assert.InDelta(t, 12.5, k.Volume, 1e-9)
	assert.Equal(t, int64(42), k.Trades)
}

func TestAPIErrorOnBadSymbol(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.GetPrice(context.Background(), "ZZZINVALID")
	require.Error(t, err)
	require.True(t, IsAPIError(err))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, -1121, apiErr.Code)
	assert.Contains(t, err.Error(), "Invalid symbol.")
}

func TestAPIErrorWithoutJSONBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 10)
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Contains(t, err.Error(), "429")
}

func TestKlineRejectsShortArray(t *testing.T) {
	var k Kline
	err := k.UnmarshalJSON([]byte(`[1,"2","3"]`))
	require.Error(t, err)
}

func TestClientTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, NewClient("").httpClient.Timeout)
	assert.Equal(t, 3*time.Second, NewClient("", WithTimeout(3*time.Second)).httpClient.Timeout)
	assert.Equal(t, 10*time.Second, NewClient("", WithTimeout(0)).httpClient.Timeout)
}
