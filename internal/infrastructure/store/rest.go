package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"
	"airdrop-client/internal/infrastructure/httpx"
)

// RESTClient talks to a hosted PostgREST-style row API. Reads go through
// the retrying JSON client; writes are single-attempt since balance and
// claim mutations are not safe to replay blindly.
type RESTClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	jsonc *httpx.Client
}

var _ application.RewardStore = (*RESTClient)(nil)

func NewRESTClient(baseURL, apiKey string, client *http.Client) *RESTClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    client,
		jsonc:   &httpx.Client{HTTP: client, Token: apiKey},
	}
}

type balanceRow struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type taskRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Reward    float64   `json:"reward"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}

type airdropRow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Token     string     `json:"token"`
	Amount    float64    `json:"amount"`
	Status    string     `json:"status"`
	ClaimedAt *time.Time `json:"claimed_at"`
}

type transactionRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type referralRow struct {
	ID         string    `json:"id"`
	ReferrerID string    `json:"referrer_id"`
	ReferredID string    `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *RESTClient) ListBalances(ctx context.Context, userID string) ([]domain.Balance, error) {
	var rows []balanceRow
	path := "/rest/v1/balances?user_id=eq." + url.QueryEscape(userID) + "&select=*&order=token.asc"
	if err := c.get(ctx, path, &rows); err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]domain.Balance, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Balance{UserID: r.UserID, Token: r.Token, Amount: r.Amount, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

func (c *RESTClient) GetBalance(ctx context.Context, userID, token string) (domain.Balance, error) {
	var rows []balanceRow
	path := "/rest/v1/balances?user_id=eq." + url.QueryEscape(userID) + "&token=eq." + url.QueryEscape(token) + "&select=*"
	if err := c.get(ctx, path, &rows); err != nil {
		return domain.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	if len(rows) == 0 {
		return domain.Balance{}, domain.ErrNotFound
	}
	r := rows[0]
	return domain.Balance{UserID: r.UserID, Token: r.Token, Amount: r.Amount, UpdatedAt: r.UpdatedAt}, nil
}

func (c *RESTClient) UpsertBalance(ctx context.Context, b domain.Balance) error {
	row := balanceRow{UserID: b.UserID, Token: b.Token, Amount: b.Amount, UpdatedAt: b.UpdatedAt}
	return c.write(ctx, http.MethodPost, "/rest/v1/balances", []balanceRow{row}, "resolution=merge-duplicates")
}

func (c *RESTClient) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	var rows []taskRow
	path := "/rest/v1/tasks?user_id=eq." + url.QueryEscape(userID) + "&id=eq." + url.QueryEscape(taskID) + "&select=*"
	if err := c.get(ctx, path, &rows); err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if len(rows) == 0 {
		return domain.Task{}, domain.ErrNotFound
	}
	r := rows[0]
	return domain.Task{ID: r.ID, UserID: r.UserID, Title: r.Title, Reward: r.Reward, Completed: r.Completed, UpdatedAt: r.UpdatedAt}, nil
}

func (c *RESTClient) MarkTaskCompleted(ctx context.Context, userID, taskID string, at time.Time) error {
	path := "/rest/v1/tasks?user_id=eq." + url.QueryEscape(userID) + "&id=eq." + url.QueryEscape(taskID)
	body := map[string]any{"completed": true, "updated_at": at}
	return c.write(ctx, http.MethodPatch, path, body, "")
}

func (c *RESTClient) GetAirdrop(ctx context.Context, userID, airdropID string) (domain.Airdrop, error) {
	var rows []airdropRow
	path := "/rest/v1/airdrops?user_id=eq." + url.QueryEscape(userID) + "&id=eq." + url.QueryEscape(airdropID) + "&select=*"
	if err := c.get(ctx, path, &rows); err != nil {
		return domain.Airdrop{}, fmt.Errorf("get airdrop: %w", err)
	}
	if len(rows) == 0 {
		return domain.Airdrop{}, domain.ErrNotFound
	}
	r := rows[0]
	return domain.Airdrop{ID: r.ID, UserID: r.UserID, Token: r.Token, Amount: r.Amount, Status: domain.AirdropStatus(r.Status), ClaimedAt: r.ClaimedAt}, nil
}

func (c *RESTClient) MarkAirdropClaimed(ctx context.Context, userID, airdropID string, at time.Time) error {
	path := "/rest/v1/airdrops?user_id=eq." + url.QueryEscape(userID) + "&id=eq." + url.QueryEscape(airdropID)
	body := map[string]any{"status": string(domain.AirdropStatusClaimed), "claimed_at": at}
	return c.write(ctx, http.MethodPatch, path, body, "")
}

func (c *RESTClient) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	row := transactionRow{ID: tx.ID, UserID: tx.UserID, Type: string(tx.Type), Token: tx.Token, Amount: tx.Amount, CreatedAt: tx.CreatedAt}
	return c.write(ctx, http.MethodPost, "/rest/v1/transactions", []transactionRow{row}, "")
}

func (c *RESTClient) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	var rows []transactionRow
	path := "/rest/v1/transactions?user_id=eq." + url.QueryEscape(userID) + "&select=*&order=created_at.desc"
	if err := c.get(ctx, path, &rows); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Transaction{ID: r.ID, UserID: r.UserID, Type: domain.TransactionType(r.Type), Token: r.Token, Amount: r.Amount, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (c *RESTClient) AppendReferral(ctx context.Context, ref domain.Referral) error {
	row := referralRow{ID: ref.ID, ReferrerID: ref.ReferrerID, ReferredID: ref.ReferredID, CreatedAt: ref.CreatedAt}
	return c.write(ctx, http.MethodPost, "/rest/v1/referrals", []referralRow{row}, "")
}

func (c *RESTClient) Ping(ctx context.Context) error {
	var rows []map[string]any
	return c.get(ctx, "/rest/v1/balances?select=user_id&limit=1", &rows)
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.APIKey)
	return c.jsonc.DoJSON(ctx, req, out)
}

func (c *RESTClient) write(ctx context.Context, method, path string, body any, prefer string) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
