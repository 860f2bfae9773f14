package pg

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"airdrop-client/internal/application"
	"airdrop-client/internal/infrastructure/logx"
)

const balanceChannel = "balance_changes"

// Listener implements the change feed over LISTEN/NOTIFY. The balances
// trigger emits {"user_id": ..., "type": ...} payloads on balance_changes;
// each subscription holds one dedicated connection.
type Listener struct {
	db  *DB
	log *zap.Logger
}

var _ application.ChangeFeed = (*Listener)(nil)

func NewListener(db *DB) *Listener {
	return &Listener{db: db, log: logx.L().Named("pg-listen")}
}

func (l *Listener) Subscribe(ctx context.Context, userID string) (application.Subscription, error) {
	conn, err := l.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+balanceChannel); err != nil {
		conn.Release()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &pgSubscription{
		events: make(chan application.ChangeEvent, 16),
		status: make(chan application.FeedStatus, 4),
		done:   make(chan struct{}),
		cancel: cancel,
		log:    l.log.With(zap.String("user_id", userID)),
	}
	sub.status <- application.FeedSubscribed

	go sub.loop(loopCtx, conn, userID)
	return sub, nil
}

type pgSubscription struct {
	events chan application.ChangeEvent
	status chan application.FeedStatus
	done   chan struct{}
	cancel context.CancelFunc
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *pgSubscription) Events() <-chan application.ChangeEvent { return s.events }
func (s *pgSubscription) Status() <-chan application.FeedStatus  { return s.status }

func (s *pgSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

func (s *pgSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *pgSubscription) pushStatus(st application.FeedStatus) {
	select {
	case s.status <- st:
	default:
	}
}

type notifyPayload struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

func (s *pgSubscription) loop(ctx context.Context, conn *pgxpool.Conn, userID string) {
	defer func() {
		conn.Release()
		close(s.events)
		close(s.status)
		close(s.done)
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				s.pushStatus(application.FeedClosed)
				return
			}
			s.log.Warn("notification wait failed", zap.Error(err))
			s.pushStatus(application.FeedChannelError)
			s.pushStatus(application.FeedClosed)
			return
		}

		var p notifyPayload
		if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
			s.log.Warn("bad notify payload", zap.String("payload", n.Payload))
			continue
		}
		if p.UserID != userID {
			continue
		}
		ev := application.ChangeEvent{Table: "balances", Type: p.Type, UserID: p.UserID}
		select {
		case s.events <- ev:
		default:
			// A full buffer still means a reload is pending, nothing is lost.
		}
	}
}
