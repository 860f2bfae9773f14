package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"airdrop-client/internal/domain"
)

var ErrStore = errors.New("store error")

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type fakeIDGen struct{ id string }

func (g fakeIDGen) NewID() string { return g.id }

// fakeSource serves a fixed quote set, optionally failing, and counts calls.
type fakeSource struct {
	mu     sync.Mutex
	name   string
	quotes []domain.Quote
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, _ []string) ([]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// gatedSource blocks each Fetch until released; used for single-flight tests.
type gatedSource struct {
	fakeSource
	gate chan struct{}
}

func (g *gatedSource) Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeSource.Fetch(ctx, symbols)
}

// fakeBalanceReader serves balances from a queue of canned responses,
// falling back to the last one.
type fakeBalanceReader struct {
	mu       sync.Mutex
	balances []domain.Balance
	err      error
	calls    int
}

func (f *fakeBalanceReader) ListBalances(_ context.Context, userID string) ([]domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Balance, 0, len(f.balances))
	for _, b := range f.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBalanceReader) set(balances []domain.Balance, err error) {
	f.mu.Lock()
	f.balances, f.err = balances, err
	f.mu.Unlock()
}

func (f *fakeBalanceReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// funcReader adapts a closure to BalanceReader for per-call scripting.
type funcReader func(ctx context.Context, userID string) ([]domain.Balance, error)

func (f funcReader) ListBalances(ctx context.Context, userID string) ([]domain.Balance, error) {
	return f(ctx, userID)
}

// fakeQuotes is a map-backed QuoteGetter.
type fakeQuotes map[string]float64

func (f fakeQuotes) Quote(symbol string) (domain.Quote, bool) {
	p, ok := f[symbol]
	if !ok {
		return domain.Quote{}, false
	}
	return domain.Quote{Symbol: symbol, Price: p}, true
}

type fakeSub struct {
	mu     sync.Mutex
	events chan ChangeEvent
	status chan FeedStatus
	closed bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		events: make(chan ChangeEvent, 8),
		status: make(chan FeedStatus, 8),
	}
}

func (s *fakeSub) Events() <-chan ChangeEvent { return s.events }
func (s *fakeSub) Status() <-chan FeedStatus  { return s.status }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
		close(s.status)
	}
	return nil
}

func (s *fakeSub) pushEvent(e ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- e
	}
}

func (s *fakeSub) pushStatus(st FeedStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.status <- st
	}
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeFeed) Subscribe(_ context.Context, _ string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := newFakeSub()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) latest() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeRewardStore is a map-backed RewardStore. markTaskErr and claimErr
// fail the matching write once, then clear, to script transient outages.
type fakeRewardStore struct {
	mu          sync.Mutex
	balances    map[string]domain.Balance // key: userID/token
	tasks       map[string]domain.Task
	airdrops    map[string]domain.Airdrop
	txs         []domain.Transaction
	referrals   []domain.Referral
	err         error
	markTaskErr error
	claimErr    error
}

func newFakeRewardStore() *fakeRewardStore {
	return &fakeRewardStore{
		balances: map[string]domain.Balance{},
		tasks:    map[string]domain.Task{},
		airdrops: map[string]domain.Airdrop{},
	}
}

func (f *fakeRewardStore) ListBalances(_ context.Context, userID string) ([]domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Balance
	for _, b := range f.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRewardStore) GetBalance(_ context.Context, userID, token string) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Balance{}, f.err
	}
	b, ok := f.balances[userID+"/"+token]
	if !ok {
		return domain.Balance{}, ErrNotFound
	}
	return b, nil
}

func (f *fakeRewardStore) UpsertBalance(_ context.Context, b domain.Balance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.balances[b.UserID+"/"+b.Token] = b
	return nil
}

func (f *fakeRewardStore) GetTask(_ context.Context, userID, taskID string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[userID+"/"+taskID]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeRewardStore) MarkTaskCompleted(_ context.Context, userID, taskID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markTaskErr != nil {
		err := f.markTaskErr
		f.markTaskErr = nil
		return err
	}
	t, ok := f.tasks[userID+"/"+taskID]
	if !ok {
		return ErrNotFound
	}
	t.Completed = true
	t.UpdatedAt = at
	f.tasks[userID+"/"+taskID] = t
	return nil
}

func (f *fakeRewardStore) GetAirdrop(_ context.Context, userID, airdropID string) (domain.Airdrop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.airdrops[userID+"/"+airdropID]
	if !ok {
		return domain.Airdrop{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeRewardStore) MarkAirdropClaimed(_ context.Context, userID, airdropID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		err := f.claimErr
		f.claimErr = nil
		return err
	}
	d, ok := f.airdrops[userID+"/"+airdropID]
	if !ok {
		return ErrNotFound
	}
	d.Status = domain.AirdropStatusClaimed
	d.ClaimedAt = &at
	f.airdrops[userID+"/"+airdropID] = d
	return nil
}

func (f *fakeRewardStore) AppendTransaction(_ context.Context, tx domain.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
	return nil
}

func (f *fakeRewardStore) ListTransactions(_ context.Context, userID string) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range f.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeRewardStore) AppendReferral(_ context.Context, ref domain.Referral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.referrals = append(f.referrals, ref)
	return nil
}

type fakeIdem struct {
	mu       sync.Mutex
	reserved map[string]bool
	err      error
}

func newFakeIdem() *fakeIdem { return &fakeIdem{reserved: map[string]bool{}} }

func (f *fakeIdem) TryReserve(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.reserved[key] {
		return false, nil
	}
	f.reserved[key] = true
	return true, nil
}

func (f *fakeIdem) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reserved, key)
	return nil
}

type fakeObserver struct {
	mu    sync.Mutex
	count int
}

func (f *fakeObserver) NotifyExternalMutation() {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

func (f *fakeObserver) notified() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
