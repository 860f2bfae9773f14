package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"airdrop-client/internal/domain"
	"airdrop-client/internal/resilience"

	"go.uber.org/zap"
)

// PriceAggregator maintains the shared quote table. Each refresh queries
// all sources in parallel, merges by source priority and backfills from
// the static fallback table, so the table is never empty after the first
// Refresh regardless of source health.
type PriceAggregator struct {
	sources  []PriceSource // priority order: first match wins
	breakers map[string]*resilience.Breaker
	clock    Clock
	log      *zap.Logger

	retryBase   time.Duration
	maxRetries  uint64
	callTimeout time.Duration
	cacheTTL    time.Duration

	mu          sync.Mutex
	table       map[string]domain.Quote
	lastRefresh time.Time
	seq         uint64
	inflight    chan struct{} // non-nil while a refresh is running
}

type AggregatorOption func(*PriceAggregator)

func WithAggregatorClock(c Clock) AggregatorOption {
	return func(a *PriceAggregator) { a.clock = c }
}

func WithCacheTTL(d time.Duration) AggregatorOption {
	return func(a *PriceAggregator) { a.cacheTTL = d }
}

func WithSourceTimeout(d time.Duration) AggregatorOption {
	return func(a *PriceAggregator) { a.callTimeout = d }
}

func WithRetryPolicy(base time.Duration, maxRetries uint64) AggregatorOption {
	return func(a *PriceAggregator) { a.retryBase, a.maxRetries = base, maxRetries }
}

func NewPriceAggregator(sources []PriceSource, breakerThreshold int, breakerCooldown time.Duration, log *zap.Logger, opts ...AggregatorOption) *PriceAggregator {
	a := &PriceAggregator{
		sources:     sources,
		breakers:    make(map[string]*resilience.Breaker, len(sources)),
		log:         log,
		retryBase:   500 * time.Millisecond,
		maxRetries:  2,
		callTimeout: 5 * time.Second,
		cacheTTL:    30 * time.Second,
		table:       make(map[string]domain.Quote),
	}
	for _, src := range sources {
		a.breakers[src.Name()] = resilience.NewBreaker(breakerThreshold, breakerCooldown)
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = realClock{}
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	return a
}

// Refresh repopulates the quote table. Within the cache window it is a
// no-op; concurrent calls collapse into the one in-flight attempt. Source
// failures degrade the result, they never fail it: the only error returned
// is context cancellation.
func (a *PriceAggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	if len(a.table) > 0 && a.clock.Now().Sub(a.lastRefresh) < a.cacheTTL {
		a.mu.Unlock()
		return nil
	}
	if a.inflight != nil {
		done := a.inflight
		a.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	}
	done := make(chan struct{})
	a.inflight = done
	a.seq++
	mySeq := a.seq
	a.mu.Unlock()

	table, degraded := a.fetchAll(ctx)

	a.mu.Lock()
	if a.seq == mySeq {
		a.table = table
		a.lastRefresh = a.clock.Now()
	}
	a.inflight = nil
	a.mu.Unlock()
	close(done)

	if degraded > 0 {
		a.log.Info("quotes_degraded", zap.Int("fallback_symbols", degraded))
	}
	return ctx.Err()
}

func (a *PriceAggregator) fetchAll(ctx context.Context) (map[string]domain.Quote, int) {
	results := make([][]domain.Quote, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src PriceSource) {
			defer wg.Done()
			results[i] = a.fetchSource(ctx, src)
		}(i, src)
	}
	wg.Wait()

	now := a.clock.Now()
	table := make(map[string]domain.Quote, len(domain.KnownSymbols))
	for _, quotes := range results {
		for _, q := range quotes {
			if !domain.IsKnownSymbol(q.Symbol) {
				continue
			}
			if _, taken := table[q.Symbol]; taken {
				continue // earlier source wins
			}
			if q.Price <= 0 {
				continue
			}
			q.ObservedAt = now
			table[q.Symbol] = q
		}
	}

	degraded := 0
	for _, sym := range domain.KnownSymbols {
		if _, ok := table[sym]; ok {
			continue
		}
		fb := domain.FallbackQuotes[sym]
		fb.ObservedAt = now
		table[sym] = fb
		degraded++
	}
	return table, degraded
}

// fetchSource runs one source behind its breaker with bounded retry and a
// per-call timeout. Failures are recorded and swallowed.
func (a *PriceAggregator) fetchSource(ctx context.Context, src PriceSource) []domain.Quote {
	br := a.breakers[src.Name()]
	if !br.Allow() {
		a.log.Debug("source_skipped", zap.String("source", src.Name()))
		return nil
	}

	var quotes []domain.Quote
	err := resilience.Retry(ctx, a.retryBase, a.maxRetries, func() error {
		cctx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		qs, err := src.Fetch(cctx, domain.KnownSymbols)
		if err != nil {
			return err
		}
		quotes = qs
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			// the caller gave up, the source did not fail
			return nil
		}
		br.Failure()
		a.log.Warn("source_failed", zap.String("source", src.Name()), zap.Error(err))
		return nil
	}
	br.Success()
	return quotes
}

// Quote returns the cached quote for symbol, if the table has ever been
// populated with it.
func (a *PriceAggregator) Quote(symbol string) (domain.Quote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.table[symbol]
	return q, ok
}

// Quotes returns a copy of the current table in known-symbol order.
func (a *PriceAggregator) Quotes() []domain.Quote {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Quote, 0, len(a.table))
	for _, sym := range domain.KnownSymbols {
		if q, ok := a.table[sym]; ok {
			out = append(out, q)
		}
	}
	return out
}

// FormatPrice renders the cached price as a display string, falling back
// to the static table and then to a placeholder.
func (a *PriceAggregator) FormatPrice(symbol string) string {
	q, ok := a.Quote(symbol)
	if !ok {
		q, ok = domain.FallbackQuotes[symbol]
	}
	if !ok {
		return "—"
	}
	return "$" + groupThousands(q.Price)
}

// FormatChange renders the 24h change with an explicit sign.
func (a *PriceAggregator) FormatChange(symbol string) string {
	q, ok := a.Quote(symbol)
	if !ok {
		q, ok = domain.FallbackQuotes[symbol]
	}
	if !ok {
		return "—"
	}
	return fmt.Sprintf("%+.2f%%", q.Change24h)
}

// ResetBreakers reopens all source gates. Test hook.
func (a *PriceAggregator) ResetBreakers() {
	for _, br := range a.breakers {
		br.Reset()
	}
}

func groupThousands(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]
	if len(intPart) <= 3 {
		return intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + frac
}
