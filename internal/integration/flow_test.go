package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"

	"github.com/stretchr/testify/require"
)

// These tests wire the real application services together over in-memory
// infrastructure and drive a whole session: sign in, earn, observe the
// snapshot and portfolio value converge.

type memStore struct {
	mu       sync.Mutex
	balances map[string]domain.Balance
	tasks    map[string]domain.Task
	airdrops map[string]domain.Airdrop
	txs      []domain.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		balances: map[string]domain.Balance{},
		tasks:    map[string]domain.Task{},
		airdrops: map[string]domain.Airdrop{},
	}
}

func (m *memStore) ListBalances(_ context.Context, userID string) ([]domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Balance
	for _, b := range m.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) GetBalance(_ context.Context, userID, token string) (domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID+"/"+token]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *memStore) UpsertBalance(_ context.Context, b domain.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[b.UserID+"/"+b.Token] = b
	return nil
}

func (m *memStore) GetTask(_ context.Context, userID, taskID string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[userID+"/"+taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memStore) MarkTaskCompleted(_ context.Context, userID, taskID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[userID+"/"+taskID]
	t.Completed, t.UpdatedAt = true, at
	m.tasks[userID+"/"+taskID] = t
	return nil
}

func (m *memStore) GetAirdrop(_ context.Context, userID, airdropID string) (domain.Airdrop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.airdrops[userID+"/"+airdropID]
	if !ok {
		return domain.Airdrop{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *memStore) MarkAirdropClaimed(_ context.Context, userID, airdropID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.airdrops[userID+"/"+airdropID]
	a.Status, a.ClaimedAt = domain.AirdropStatusClaimed, &at
	m.airdrops[userID+"/"+airdropID] = a
	return nil
}

func (m *memStore) AppendTransaction(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memStore) ListTransactions(_ context.Context, userID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memStore) AppendReferral(context.Context, domain.Referral) error { return nil }

// memFeed hands out subscriptions that only report SUBSCRIBED; row change
// push is exercised by the synchronizer unit tests, here the reward flow
// notifies the observer directly.
type memFeed struct{}

func (memFeed) Subscribe(context.Context, string) (application.Subscription, error) {
	return &memSub{
		events: make(chan application.ChangeEvent),
		status: makeSubscribed(),
	}, nil
}

func makeSubscribed() chan application.FeedStatus {
	ch := make(chan application.FeedStatus, 1)
	ch <- application.FeedSubscribed
	return ch
}

type memSub struct {
	events chan application.ChangeEvent
	status chan application.FeedStatus
	once   sync.Once
}

func (s *memSub) Events() <-chan application.ChangeEvent { return s.events }
func (s *memSub) Status() <-chan application.FeedStatus  { return s.status }
func (s *memSub) Close() error {
	s.once.Do(func() {
		close(s.events)
		close(s.status)
	})
	return nil
}

type fixedSource struct {
	prices map[string]float64
}

func (s *fixedSource) Name() string { return "fixed" }

func (s *fixedSource) Fetch(_ context.Context, symbols []string) ([]domain.Quote, error) {
	now := time.Now().UTC()
	var out []domain.Quote
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out = append(out, domain.Quote{Symbol: sym, Price: p, ObservedAt: now})
		}
	}
	return out, nil
}

func TestSessionFlow_EarnAndReconcile(t *testing.T) {
	store := newMemStore()
	store.tasks["u1/t1"] = domain.Task{ID: "t1", UserID: "u1", Title: "Follow on X", Reward: 25}
	store.airdrops["u1/a1"] = domain.Airdrop{ID: "a1", UserID: "u1", Token: "DROP", Amount: 500, Status: domain.AirdropStatusPending}

	agg := application.NewPriceAggregator(
		[]application.PriceSource{&fixedSource{prices: map[string]float64{"BTC": 95500, "ETH": 3400}}},
		3, time.Minute, nil,
	)
	require.NoError(t, agg.Refresh(context.Background()))

	syncer := application.NewBalanceSynchronizer(store, memFeed{}, agg, nil,
		application.WithRetryDelays([]time.Duration{time.Millisecond}),
		application.WithPollInterval(10*time.Millisecond),
	)
	rewards := application.NewRewardService(store, application.NoopIdempotency{}, syncer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		syncer.Run(ctx)
		close(done)
	}()

	// Sign in: empty account loads as a legitimate empty snapshot.
	syncer.SetUser("u1")
	require.Eventually(t, func() bool {
		return syncer.State() == application.SyncFresh || syncer.State() == application.SyncDegraded
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, syncer.Balances())

	// Earn: complete the task and claim the airdrop. Each mutation pings
	// the synchronizer, which reconciles from the store.
	require.NoError(t, rewards.CompleteTask(ctx, "u1", "t1"))
	require.NoError(t, rewards.ClaimAirdrop(ctx, "u1", "a1"))

	require.Eventually(t, func() bool {
		return syncer.Balance("DROP") == 525
	}, 2*time.Second, 5*time.Millisecond)

	// 525 DROP at the fixed product price.
	require.InDelta(t, 525*domain.DropTokenPrice, syncer.TotalValue(), 1e-9)

	// Replays hit the already-completed guards.
	require.ErrorIs(t, rewards.CompleteTask(ctx, "u1", "t1"), application.ErrConflict)
	require.ErrorIs(t, rewards.ClaimAirdrop(ctx, "u1", "a1"), application.ErrConflict)

	txs, err := store.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Switching users clears the snapshot immediately.
	syncer.SetUser("u2")
	require.Eventually(t, func() bool {
		return syncer.Balance("DROP") == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer did not stop")
	}
}

func TestSessionFlow_PortfolioPricesLiveAndFallback(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	store.balances["u1/BTC"] = domain.Balance{UserID: "u1", Token: "BTC", Amount: 2, UpdatedAt: now}
	store.balances["u1/SOL"] = domain.Balance{UserID: "u1", Token: "SOL", Amount: 10, UpdatedAt: now}

	// The source knows BTC only; SOL must price from the fallback table.
	agg := application.NewPriceAggregator(
		[]application.PriceSource{&fixedSource{prices: map[string]float64{"BTC": 95500}}},
		3, time.Minute, nil,
	)
	require.NoError(t, agg.Refresh(context.Background()))

	syncer := application.NewBalanceSynchronizer(store, memFeed{}, agg, nil,
		application.WithRetryDelays([]time.Duration{time.Millisecond}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncer.Run(ctx)

	syncer.SetUser("u1")
	require.Eventually(t, func() bool {
		return len(syncer.Balances()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	want := 2*95500.0 + 10*domain.FallbackQuotes["SOL"].Price
	require.InDelta(t, want, syncer.TotalValue(), 1e-9)
}
