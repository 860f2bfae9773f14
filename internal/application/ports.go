package application

import (
	"context"
	"time"

	"airdrop-client/internal/domain"
)

// PriceSource is one external quote endpoint. Fetch returns quotes for as
// many of the requested symbols as the source knows about; missing symbols
// are not an error.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]domain.Quote, error)
}

// QuoteGetter is the read side of the price aggregator.
type QuoteGetter interface {
	Quote(symbol string) (domain.Quote, bool)
}

// BalanceReader reads the full balance set for a user from the remote store.
type BalanceReader interface {
	ListBalances(ctx context.Context, userID string) ([]domain.Balance, error)
}

// RewardStore covers the row mutations the reward flows perform.
type RewardStore interface {
	BalanceReader
	GetBalance(ctx context.Context, userID, token string) (domain.Balance, error)
	UpsertBalance(ctx context.Context, b domain.Balance) error
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	MarkTaskCompleted(ctx context.Context, userID, taskID string, at time.Time) error
	GetAirdrop(ctx context.Context, userID, airdropID string) (domain.Airdrop, error)
	MarkAirdropClaimed(ctx context.Context, userID, airdropID string, at time.Time) error
	AppendTransaction(ctx context.Context, tx domain.Transaction) error
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	AppendReferral(ctx context.Context, ref domain.Referral) error
}

// FeedStatus mirrors the channel states the realtime backend reports.
type FeedStatus string

const (
	FeedSubscribed   FeedStatus = "SUBSCRIBED"
	FeedChannelError FeedStatus = "CHANNEL_ERROR"
	FeedTimedOut     FeedStatus = "TIMED_OUT"
	FeedClosed       FeedStatus = "CLOSED"
)

// ChangeEvent is one row-level change notification.
type ChangeEvent struct {
	Table  string
	Type   string // INSERT, UPDATE, DELETE
	UserID string
}

// Subscription is an open change feed for one user. Both channels are
// closed when the subscription ends.
type Subscription interface {
	Events() <-chan ChangeEvent
	Status() <-chan FeedStatus
	Close() error
}

// ChangeFeed opens push subscriptions filtered to a user's balance rows.
type ChangeFeed interface {
	Subscribe(ctx context.Context, userID string) (Subscription, error)
}

// MutationObserver is notified after an out-of-band balance mutation.
// Replaces the ambient event bus the UI previously broadcast on.
type MutationObserver interface {
	NotifyExternalMutation()
}

// Worker represents a background processor.
// Implementations must run until the context is canceled.
type Worker interface {
	Start(ctx context.Context)
}
