package chat

import "fmt"

func AnalyzeMarketPrompt(symbol string) string {
	return fmt.Sprintf("Please analyze the market for %s. Include current price, 24h statistics, and provide insights about the market conditions.", symbol)
}

func PricePrompt(symbol string) string {
	return fmt.Sprintf("What is the current price of %s?", symbol)
}

func HistoricalDataPrompt(symbol, interval string, limit int) string {
	return fmt.Sprintf("Get historical data for %s with %s interval and %d candles. Analyze the price trends and provide insights.", symbol, interval, limit)
}

func ExplainPrompt(concept string) string {
	return fmt.Sprintf("Please explain the following cryptocurrency/trading concept: %s", concept)
}
