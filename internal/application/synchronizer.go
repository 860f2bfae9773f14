package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"airdrop-client/internal/domain"
	"airdrop-client/internal/resilience"

	"go.uber.org/zap"
)

type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncLoading  SyncState = "loading"
	SyncFresh    SyncState = "fresh"
	SyncDegraded SyncState = "degraded"
)

// BalanceSynchronizer holds the authoritative local balance snapshot for
// the active user. The push feed is the primary freshness channel; while
// it is unhealthy a fixed-interval poll substitutes. A failed load never
// discards the previous snapshot.
type BalanceSynchronizer struct {
	store  BalanceReader
	feed   ChangeFeed
	prices QuoteGetter
	log    *zap.Logger
	clock  Clock

	retryDelays []time.Duration
	pollEvery   time.Duration
	resubEvery  time.Duration

	mu       sync.Mutex
	userID   string
	snapshot map[string]domain.Balance
	loading  bool
	degraded bool
	loadSeq  uint64

	sessionCh chan string
	refreshCh chan struct{}
}

var _ MutationObserver = (*BalanceSynchronizer)(nil)

type SyncOption func(*BalanceSynchronizer)

func WithSyncClock(c Clock) SyncOption {
	return func(s *BalanceSynchronizer) { s.clock = c }
}

// WithRetryDelays sets the fixed load retry schedule (delay before retry
// k+1 is delays[k]).
func WithRetryDelays(delays []time.Duration) SyncOption {
	return func(s *BalanceSynchronizer) { s.retryDelays = delays }
}

func WithPollInterval(d time.Duration) SyncOption {
	return func(s *BalanceSynchronizer) { s.pollEvery = d }
}

func WithResubscribeInterval(d time.Duration) SyncOption {
	return func(s *BalanceSynchronizer) { s.resubEvery = d }
}

func NewBalanceSynchronizer(store BalanceReader, feed ChangeFeed, prices QuoteGetter, log *zap.Logger, opts ...SyncOption) *BalanceSynchronizer {
	s := &BalanceSynchronizer{
		store:       store,
		feed:        feed,
		prices:      prices,
		log:         log,
		retryDelays: []time.Duration{time.Second, 2 * time.Second, 5 * time.Second},
		pollEvery:   30 * time.Second,
		resubEvery:  10 * time.Second,
		sessionCh:   make(chan string, 1),
		refreshCh:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// SetUser switches the active session. A changed identity clears the
// snapshot and restarts the subscription; re-validating the same user is
// a no-op and never clears existing data. Empty userID means logout.
func (s *BalanceSynchronizer) SetUser(userID string) {
	s.mu.Lock()
	if userID == s.userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.snapshot = nil
	s.loading = false
	s.degraded = false
	s.loadSeq++ // in-flight loads for the old user must not land
	s.mu.Unlock()

	select {
	case <-s.sessionCh:
	default:
	}
	s.sessionCh <- userID
}

// NotifyExternalMutation requests a background reload after some other
// component wrote a balance change. Rapid signals coalesce.
func (s *BalanceSynchronizer) NotifyExternalMutation() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Load reads the full balance set for the active user, retrying on the
// fixed delay schedule. On exhaustion the previous snapshot is preserved.
// A "not found" result is a legitimate empty state, not a failure.
func (s *BalanceSynchronizer) Load(ctx context.Context, showLoading bool) error {
	s.mu.Lock()
	userID := s.userID
	if userID == "" {
		s.mu.Unlock()
		return nil
	}
	if showLoading && len(s.snapshot) == 0 {
		s.loading = true
	}
	s.loadSeq++
	my := s.loadSeq
	s.mu.Unlock()

	var balances []domain.Balance
	err := resilience.RetrySchedule(ctx, s.retryDelays, func() error {
		bs, err := s.store.ListBalances(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrNotFound) {
				balances = nil
				return nil
			}
			return err
		}
		balances = bs
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if userID != s.userID || my != s.loadSeq {
		// session changed or a newer load already started; drop this completion
		return nil
	}
	s.loading = false
	if err != nil {
		s.log.Warn("balance_load_failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	snap := make(map[string]domain.Balance, len(balances))
	for _, b := range balances {
		snap[b.Token] = b
	}
	s.snapshot = snap
	return nil
}

// Run owns the push subscription lifecycle for the active session. It
// blocks until ctx is done.
func (s *BalanceSynchronizer) Run(ctx context.Context) {
	cancel := func() {}
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			return
		case userID := <-s.sessionCh:
			cancel()
			wg.Wait()
			if userID == "" {
				cancel = func() {}
				continue
			}
			var sctx context.Context
			sctx, cancel = context.WithCancel(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runSession(sctx, userID)
			}()
		}
	}
}

func (s *BalanceSynchronizer) runSession(ctx context.Context, userID string) {
	log := s.log.With(zap.String("user_id", userID))
	_ = s.Load(ctx, true)

	poll := time.NewTicker(s.pollEvery)
	poll.Stop()
	defer poll.Stop()
	polling := false

	resub := time.NewTicker(s.resubEvery)
	resub.Stop()
	defer resub.Stop()

	var sub Subscription
	var events <-chan ChangeEvent
	var status <-chan FeedStatus
	tearingDown := false

	degrade := func() {
		s.setDegraded(true)
		if !polling {
			poll.Reset(s.pollEvery)
			polling = true
			log.Info("sync_degraded_polling", zap.Duration("every", s.pollEvery))
		}
	}

	connect := func() {
		var err error
		sub, err = s.feed.Subscribe(ctx, userID)
		if err != nil {
			log.Warn("subscribe_failed", zap.Error(err))
			sub, events, status = nil, nil, nil
			degrade()
			resub.Reset(s.resubEvery)
			return
		}
		events, status = sub.Events(), sub.Status()
		// the fresh channel's CLOSED is a real drop, not leftover teardown
		tearingDown = false
	}

	drop := func() {
		if sub == nil {
			return
		}
		// explicit teardown: the resulting CLOSED status is not a failure
		tearingDown = true
		_ = sub.Close()
		sub, events, status = nil, nil, nil
	}

	connect()
	defer drop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.refreshCh:
			_ = s.Load(ctx, false)
		case <-poll.C:
			_ = s.Load(ctx, false)
		case <-resub.C:
			if sub == nil {
				connect()
			}
			if sub != nil {
				resub.Stop()
			}
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			_ = s.Load(ctx, false)
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			switch st {
			case FeedSubscribed:
				tearingDown = false
				s.setDegraded(false)
				if polling {
					poll.Stop()
					polling = false
					log.Info("sync_push_recovered")
				}
			case FeedChannelError, FeedTimedOut:
				log.Warn("sync_channel_unhealthy", zap.String("status", string(st)))
				degrade()
				drop()
				resub.Reset(s.resubEvery)
			case FeedClosed:
				if tearingDown {
					continue
				}
				log.Warn("sync_channel_dropped")
				degrade()
				sub, events, status = nil, nil, nil
				resub.Reset(s.resubEvery)
			}
		}
	}
}

func (s *BalanceSynchronizer) setDegraded(v bool) {
	s.mu.Lock()
	s.degraded = v
	s.mu.Unlock()
}

// State reports the lifecycle position: idle (no user), loading (first
// load, empty snapshot), degraded (polling) or fresh.
func (s *BalanceSynchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.userID == "":
		return SyncIdle
	case s.loading && len(s.snapshot) == 0:
		return SyncLoading
	case s.degraded:
		return SyncDegraded
	default:
		return SyncFresh
	}
}

// Balance returns the snapshot amount for token, 0 when absent.
func (s *BalanceSynchronizer) Balance(token string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.snapshot[token]; ok {
		return b.Amount
	}
	return 0
}

// Balances returns the snapshot in known-symbol order, then any remaining
// tokens.
func (s *BalanceSynchronizer) Balances() []domain.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Balance, 0, len(s.snapshot))
	seen := make(map[string]bool, len(s.snapshot))
	for _, sym := range domain.KnownSymbols {
		if b, ok := s.snapshot[sym]; ok {
			out = append(out, b)
			seen[sym] = true
		}
	}
	for tok, b := range s.snapshot {
		if !seen[tok] {
			out = append(out, b)
		}
	}
	return out
}

// TotalValue sums amount × price over the snapshot. The product token has
// a fixed pre-listing price; unpriced tokens contribute 0.
func (s *BalanceSynchronizer) TotalValue() float64 {
	s.mu.Lock()
	snapshot := make([]domain.Balance, 0, len(s.snapshot))
	for _, b := range s.snapshot {
		snapshot = append(snapshot, b)
	}
	s.mu.Unlock()

	var total float64
	for _, b := range snapshot {
		if q, ok := s.prices.Quote(b.Token); ok && q.Price > 0 {
			total += b.Amount * q.Price
			continue
		}
		if b.Token == "DROP" {
			total += b.Amount * domain.DropTokenPrice
		}
	}
	return total
}
