package binance

import (
	"regexp"
	"strings"
)

// DefaultQuote is appended when only a base asset is given.
const DefaultQuote = "USDT"

// Common asset aliases
var assetAliases = map[string]string{
	"bitcoin":   "BTC",
	"btc":       "BTC",
	"ethereum":  "ETH",
	"eth":       "ETH",
	"solana":    "SOL",
	"sol":       "SOL",
	"ripple":    "XRP",
	"xrp":       "XRP",
	"cardano":   "ADA",
	"ada":       "ADA",
	"dogecoin":  "DOGE",
	"doge":      "DOGE",
	"bnb":       "BNB",
	"binance":   "BNB",
	"tron":      "TRX",
	"trx":       "TRX",
	"avalanche": "AVAX",
	"avax":      "AVAX",
	"shiba":     "SHIB",
	"shib":      "SHIB",
	"polkadot":  "DOT",
	"dot":       "DOT",
	"chainlink": "LINK",
	"link":      "LINK",
	"litecoin":  "LTC",
	"ltc":       "LTC",
	"uniswap":   "UNI",
	"uni":       "UNI",
	"cosmos":    "ATOM",
	"atom":      "ATOM",
	"stellar":   "XLM",
	"xlm":       "XLM",
	"filecoin":  "FIL",
	"fil":       "FIL",
	"near":      "NEAR",
	"aave":      "AAVE",
	"injective": "INJ",
	"inj":       "INJ",
	"aptos":     "APT",
	"apt":       "APT",
	"arbitrum":  "ARB",
	"arb":       "ARB",
	"optimism":  "OP",
	"op":        "OP",
	"sui":       "SUI",
	"pepe":      "PEPE",
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// NormalizeSymbol turns user input such as "bitcoin", "btc", "BTC/USDT" or
// "eth-usdt" into a Binance pair symbol. Anything it does not recognise is
// upper-cased and returned unchanged.
func NormalizeSymbol(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	if base, ok := assetAliases[lower]; ok {
		return base + DefaultQuote
	}

	for _, sep := range []string{"/", "-", "_", " "} {
		if parts := strings.Split(lower, sep); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			base := parts[0]
			if code, ok := assetAliases[base]; ok {
				base = code
			}
			return strings.ToUpper(base + parts[1])
		}
	}

	return strings.ToUpper(s)
}

// ValidSymbol reports whether s looks like a Binance symbol.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}
