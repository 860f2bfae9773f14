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

const coinCapAssetsPath = "/v2/assets"

var coinCapIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"USDT": "tether",
	"BNB":  "binance-coin",
}

type CoinCap struct {
	BaseURL string
	Client  *http.Client
}

var _ application.PriceSource = (*CoinCap)(nil)

type coinCapAsset struct {
	Symbol           string `json:"symbol"`
	PriceUsd         string `json:"priceUsd"`
	ChangePercent24h string `json:"changePercent24Hr"`
}

func (s *CoinCap) Name() string { return "coincap" }

func (s *CoinCap) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if s.BaseURL == "" {
		return nil, errors.New("coincap: missing configuration")
	}

	ids := make([]string, 0, len(symbols))
	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if id, ok := coinCapIDs[sym]; ok {
			ids = append(ids, id)
			wanted[sym] = true
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("coincap: invalid base url: %w", err)
	}
	u.Path = coinCapAssetsPath
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("coincap: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coincap: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coincap: status %d", resp.StatusCode)
	}

	var body struct {
		Data []coinCapAsset `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coincap: decode response: %w", err)
	}

	now := time.Now().UTC()
	quotes := make([]domain.Quote, 0, len(body.Data))
	for _, a := range body.Data {
		if !wanted[a.Symbol] {
			continue
		}
		price, err := strconv.ParseFloat(a.PriceUsd, 64)
		if err != nil {
			continue
		}
		change, _ := strconv.ParseFloat(a.ChangePercent24h, 64)
		quotes = append(quotes, domain.Quote{
			Symbol:     a.Symbol,
			Price:      price,
			Change24h:  change,
			ObservedAt: now,
		})
	}
	return quotes, nil
}
