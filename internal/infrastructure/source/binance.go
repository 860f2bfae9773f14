package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"
)

const binanceTickerPath = "/api/v3/ticker/24hr"

// binancePairs maps USDT trading pairs back to display symbols. USDT has
// no pair against itself; its quote comes from a lower-priority source or
// the fallback table.
var binancePairs = map[string]string{
	"BTCUSDT": "BTC",
	"ETHUSDT": "ETH",
	"SOLUSDT": "SOL",
	"BNBUSDT": "BNB",
}

type Binance struct {
	BaseURL string
	Client  *http.Client
}

var _ application.PriceSource = (*Binance)(nil)

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (s *Binance) Name() string { return "binance" }

func (s *Binance) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if s.BaseURL == "" {
		return nil, errors.New("binance: missing configuration")
	}

	pairs := make([]string, 0, len(symbols))
	for pair, sym := range binancePairs {
		for _, want := range symbols {
			if sym == want {
				pairs = append(pairs, `"`+pair+`"`)
				break
			}
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("binance: invalid base url: %w", err)
	}
	u.Path = binanceTickerPath
	q := u.Query()
	q.Set("symbols", "["+strings.Join(pairs, ",")+"]")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: status %d", resp.StatusCode)
	}

	var tickers []binanceTicker
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("binance: decode response: %w", err)
	}

	now := time.Now().UTC()
	quotes := make([]domain.Quote, 0, len(tickers))
	for _, tk := range tickers {
		sym, ok := binancePairs[tk.Symbol]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(tk.LastPrice, 64)
		if err != nil {
			continue
		}
		change, _ := strconv.ParseFloat(tk.PriceChangePercent, 64)
		quotes = append(quotes, domain.Quote{
			Symbol:     sym,
			Price:      price,
			Change24h:  change,
			ObservedAt: now,
		})
	}
	return quotes, nil
}
