package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"airdrop-client/internal/application"
	"airdrop-client/internal/infrastructure/logx"
)

const (
	heartbeatEvery = 25 * time.Second
	writeTimeout   = 5 * time.Second
	joinTimeout    = 10 * time.Second
)

// Feed subscribes to balance row changes over a phoenix-style realtime
// websocket. One Subscribe call is one socket; the synchronizer reopens
// on failure, so there is no reconnect logic here.
type Feed struct {
	URL    string // ws(s)://host/realtime/v1/websocket
	APIKey string
	Dialer *websocket.Dialer
	Log    *zap.Logger
}

var _ application.ChangeFeed = (*Feed)(nil)

func NewFeed(wsURL, apiKey string) *Feed {
	return &Feed{
		URL:    wsURL,
		APIKey: apiKey,
		Dialer: websocket.DefaultDialer,
		Log:    logx.L().Named("realtime"),
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type phxReply struct {
	Status string `json:"status"`
}

func (f *Feed) Subscribe(ctx context.Context, userID string) (application.Subscription, error) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", f.APIKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	sub := &subscription{
		conn:   conn,
		topic:  "realtime:public:balances:user_id=eq." + userID,
		log:    f.Log.With(zap.String("user_id", userID)),
		events: make(chan application.ChangeEvent, 16),
		status: make(chan application.FeedStatus, 4),
		done:   make(chan struct{}),
	}

	join := phxMessage{
		Topic:   sub.topic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     sub.nextRef(),
	}
	sub.joinRef = join.Ref
	if err := sub.writeJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: join: %w", err)
	}

	go sub.readLoop()
	go sub.heartbeatLoop()
	return sub, nil
}

type subscription struct {
	conn  *websocket.Conn
	topic string
	log   *zap.Logger

	events chan application.ChangeEvent
	status chan application.FeedStatus
	done   chan struct{}

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
	joined  bool
	refSeq  int
	joinRef string
}

func (s *subscription) Events() <-chan application.ChangeEvent { return s.events }
func (s *subscription) Status() <-chan application.FeedStatus  { return s.status }

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	leave := phxMessage{Topic: s.topic, Event: "phx_leave", Payload: json.RawMessage(`{}`), Ref: s.nextRef()}
	_ = s.writeJSON(leave)
	err := s.conn.Close()
	<-s.done
	return err
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *subscription) nextRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refSeq++
	return strconv.Itoa(s.refSeq)
}

func (s *subscription) writeJSON(msg phxMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *subscription) pushStatus(st application.FeedStatus) {
	select {
	case s.status <- st:
	default:
		s.log.Warn("status channel full, dropping", zap.String("status", string(st)))
	}
}

func (s *subscription) readLoop() {
	defer func() {
		close(s.events)
		close(s.status)
		close(s.done)
	}()

	joinDeadline := time.AfterFunc(joinTimeout, func() {
		s.mu.Lock()
		joined := s.joined
		s.mu.Unlock()
		if !joined && !s.isClosed() {
			s.pushStatus(application.FeedTimedOut)
		}
	})
	defer joinDeadline.Stop()

	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.isClosed() {
				s.pushStatus(application.FeedClosed)
				return
			}
			s.log.Warn("read failed", zap.Error(err))
			s.pushStatus(application.FeedChannelError)
			s.pushStatus(application.FeedClosed)
			_ = s.conn.Close()
			return
		}

		switch msg.Event {
		case "phx_reply":
			if msg.Ref != s.joinRef {
				continue
			}
			var reply phxReply
			if err := json.Unmarshal(msg.Payload, &reply); err != nil || reply.Status != "ok" {
				s.pushStatus(application.FeedChannelError)
				continue
			}
			s.mu.Lock()
			s.joined = true
			s.mu.Unlock()
			s.pushStatus(application.FeedSubscribed)
		case "phx_error":
			s.pushStatus(application.FeedChannelError)
		case "INSERT", "UPDATE", "DELETE":
			s.pushEvent(msg)
		}
	}
}

func (s *subscription) pushEvent(msg phxMessage) {
	ev := application.ChangeEvent{
		Table:  "balances",
		Type:   msg.Event,
		UserID: userIDFromTopic(s.topic),
	}
	select {
	case s.events <- ev:
	default:
		// A full buffer still means a reload is pending, nothing is lost.
	}
}

func (s *subscription) heartbeatLoop() {
	t := time.NewTicker(heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			hb := phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: s.nextRef()}
			if err := s.writeJSON(hb); err != nil {
				if !s.isClosed() {
					s.log.Warn("heartbeat failed", zap.Error(err))
					_ = s.conn.Close()
				}
				return
			}
		}
	}
}

func userIDFromTopic(topic string) string {
	const marker = "user_id=eq."
	if i := strings.LastIndex(topic, marker); i >= 0 {
		return topic[i+len(marker):]
	}
	return ""
}
