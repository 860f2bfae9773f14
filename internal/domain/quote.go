package domain

import "time"

// Quote is a token's last observed USD price and 24h change percentage.
type Quote struct {
	Symbol     string
	Price      float64
	Change24h  float64
	ObservedAt time.Time
}

// KnownSymbols is the fixed set of tokens the client displays, in the
// order they appear in the UI. DROP is the product token.
var KnownSymbols = []string{"BTC", "ETH", "SOL", "USDT", "BNB", "DROP"}

// FallbackQuotes is the static last-known-good table. Every known symbol
// has an entry so a full source outage still yields a complete quote table.
var FallbackQuotes = map[string]Quote{
	"BTC":  {Symbol: "BTC", Price: 95000, Change24h: 2.5},
	"ETH":  {Symbol: "ETH", Price: 3300, Change24h: 1.8},
	"SOL":  {Symbol: "SOL", Price: 150, Change24h: 3.2},
	"USDT": {Symbol: "USDT", Price: 1.0, Change24h: 0.0},
	"BNB":  {Symbol: "BNB", Price: 620, Change24h: 1.1},
	"DROP": {Symbol: "DROP", Price: DropTokenPrice, Change24h: 0.0},
}

// DropTokenPrice is the fixed pre-listing valuation of the product token.
const DropTokenPrice = 0.10

func IsKnownSymbol(s string) bool {
	_, ok := FallbackQuotes[s]
	return ok
}
