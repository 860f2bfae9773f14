package source

import (
	"context"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"
)

// Ensure Fake implements application.PriceSource.
var _ application.PriceSource = (*Fake)(nil)

// Fake serves fixed prices; useful for dev without network access.
type Fake struct {
	Prices map[string]float64
}

func NewFake(prices map[string]float64) *Fake { return &Fake{Prices: prices} }

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Fetch(_ context.Context, symbols []string) ([]domain.Quote, error) {
	now := time.Now().UTC()
	quotes := make([]domain.Quote, 0, len(symbols))
	for _, sym := range symbols {
		if p, ok := f.Prices[sym]; ok {
			quotes = append(quotes, domain.Quote{Symbol: sym, Price: p, ObservedAt: now})
		}
	}
	return quotes, nil
}
