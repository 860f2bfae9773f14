package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	quotes  *application.PriceAggregator
	sync    *application.BalanceSynchronizer
	rewards *application.RewardService
	ping    func(ctx context.Context) error
}

func NewServer(quotes *application.PriceAggregator, sync *application.BalanceSynchronizer, rewards *application.RewardService) *Server {
	return &Server{quotes: quotes, sync: sync, rewards: rewards}
}

// WithPing installs a readiness probe, typically the store's Ping.
func (s *Server) WithPing(ping func(ctx context.Context) error) *Server {
	s.ping = ping
	return s
}

type quoteView struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PriceDisplay  string    `json:"price_display"`
	Change24h     float64   `json:"change_24h"`
	ChangeDisplay string    `json:"change_display"`
	ObservedAt    time.Time `json:"observed_at"`
}

type balanceView struct {
	Token     string    `json:"token"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type portfolioView struct {
	State      string        `json:"state"`
	TotalValue float64       `json:"total_value"`
	Balances   []balanceView `json:"balances"`
}

type sessionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) listQuotes(w http.ResponseWriter, _ *http.Request) {
	quotes := s.quotes.Quotes()
	out := make([]quoteView, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, s.quoteView(q))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if !domain.IsKnownSymbol(symbol) {
		writeError(w, http.StatusNotFound, "unknown symbol")
		return
	}
	q, ok := s.quotes.Quote(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no quote yet")
		return
	}
	writeJSON(w, http.StatusOK, s.quoteView(q))
}

func (s *Server) quoteView(q domain.Quote) quoteView {
	return quoteView{
		Symbol:        q.Symbol,
		Price:         q.Price,
		PriceDisplay:  s.quotes.FormatPrice(q.Symbol),
		Change24h:     q.Change24h,
		ChangeDisplay: s.quotes.FormatChange(q.Symbol),
		ObservedAt:    q.ObservedAt,
	}
}

func (s *Server) refreshQuotes(w http.ResponseWriter, r *http.Request) {
	if err := s.quotes.Refresh(r.Context()); err != nil {
		internalError(w)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) setSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.sync.SetUser(body.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listBalances(w http.ResponseWriter, _ *http.Request) {
	balances := s.sync.Balances()
	out := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceView{Token: b.Token, Amount: b.Amount, UpdatedAt: b.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPortfolio(w http.ResponseWriter, _ *http.Request) {
	balances := s.sync.Balances()
	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{Token: b.Token, Amount: b.Amount, UpdatedAt: b.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, portfolioView{
		State:      string(s.sync.State()),
		TotalValue: s.sync.TotalValue(),
		Balances:   views,
	})
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	err := s.rewards.CompleteTask(r.Context(), userID, chi.URLParam(r, "id"))
	writeRewardResult(w, err)
}

func (s *Server) claimAirdrop(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}
	err := s.rewards.ClaimAirdrop(r.Context(), userID, chi.URLParam(r, "id"))
	writeRewardResult(w, err)
}

func writeRewardResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, application.ErrNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, application.ErrConflict):
		writeError(w, http.StatusConflict, "already processed")
	case errors.Is(err, application.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad request")
	default:
		internalError(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
