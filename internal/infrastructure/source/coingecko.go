package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"
)

const coinGeckoSimplePricePath = "/simple/price"

// coinGeckoIDs maps display symbols to CoinGecko asset IDs. The product
// token is unlisted and is served from the fallback table instead.
var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"USDT": "tether",
	"BNB":  "binancecoin",
}

type CoinGecko struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ application.PriceSource = (*CoinGecko)(nil)

func (s *CoinGecko) Name() string { return "coingecko" }

func (s *CoinGecko) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if s.BaseURL == "" {
		return nil, errors.New("coingecko: missing configuration")
	}

	ids := make([]string, 0, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if id, ok := coinGeckoIDs[sym]; ok {
			ids = append(ids, id)
			bySymbol[id] = sym
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("coingecko: invalid base url: %w", err)
	}
	u.Path += coinGeckoSimplePricePath
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}

	now := time.Now().UTC()
	quotes := make([]domain.Quote, 0, len(body))
	for id, values := range body {
		sym, ok := bySymbol[id]
		if !ok {
			continue
		}
		quotes = append(quotes, domain.Quote{
			Symbol:     sym,
			Price:      values["usd"],
			Change24h:  values["usd_24h_change"],
			ObservedAt: now,
		})
	}
	return quotes, nil
}
