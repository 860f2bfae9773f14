package pg

import (
	"context"
	"errors"
	"time"

	"airdrop-client/internal/application"
	"airdrop-client/internal/domain"

	"github.com/jackc/pgx/v5"
)

type RewardRepo struct{ db *DB }

var _ application.RewardStore = (*RewardRepo)(nil)

func NewRewardRepo(db *DB) *RewardRepo { return &RewardRepo{db: db} }

func (r *RewardRepo) ListBalances(ctx context.Context, userID string) ([]domain.Balance, error) {
	const q = `SELECT user_id, token, amount::float8, updated_at
	           FROM balances WHERE user_id=$1 ORDER BY token`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.UserID, &b.Token, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *RewardRepo) GetBalance(ctx context.Context, userID, token string) (domain.Balance, error) {
	const q = `SELECT user_id, token, amount::float8, updated_at
	           FROM balances WHERE user_id=$1 AND token=$2`
	var b domain.Balance
	if err := r.db.Pool.QueryRow(ctx, q, userID, token).Scan(&b.UserID, &b.Token, &b.Amount, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, domain.ErrNotFound
		}
		return domain.Balance{}, err
	}
	return b, nil
}

func (r *RewardRepo) UpsertBalance(ctx context.Context, b domain.Balance) error {
	const up = `
        INSERT INTO balances(user_id, token, amount, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, token) DO UPDATE
          SET amount=EXCLUDED.amount, updated_at=EXCLUDED.updated_at`
	_, err := r.db.Pool.Exec(ctx, up, b.UserID, b.Token, b.Amount, b.UpdatedAt)
	return err
}

func (r *RewardRepo) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	const q = `SELECT id, user_id, title, reward::float8, completed, updated_at
	           FROM tasks WHERE user_id=$1 AND id=$2`
	var t domain.Task
	if err := r.db.Pool.QueryRow(ctx, q, userID, taskID).Scan(&t.ID, &t.UserID, &t.Title, &t.Reward, &t.Completed, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

func (r *RewardRepo) MarkTaskCompleted(ctx context.Context, userID, taskID string, at time.Time) error {
	const q = `UPDATE tasks SET completed=TRUE, updated_at=$3 WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, taskID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RewardRepo) GetAirdrop(ctx context.Context, userID, airdropID string) (domain.Airdrop, error) {
	const q = `SELECT id, user_id, token, amount::float8, status, claimed_at
	           FROM airdrops WHERE user_id=$1 AND id=$2`
	var a domain.Airdrop
	if err := r.db.Pool.QueryRow(ctx, q, userID, airdropID).Scan(&a.ID, &a.UserID, &a.Token, &a.Amount, &a.Status, &a.ClaimedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Airdrop{}, domain.ErrNotFound
		}
		return domain.Airdrop{}, err
	}
	return a, nil
}

func (r *RewardRepo) MarkAirdropClaimed(ctx context.Context, userID, airdropID string, at time.Time) error {
	const q = `UPDATE airdrops SET status=$3, claimed_at=$4 WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, airdropID, string(domain.AirdropStatusClaimed), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RewardRepo) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	const q = `
        INSERT INTO transactions(id, user_id, type, token, amount, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, tx.ID, tx.UserID, string(tx.Type), tx.Token, tx.Amount, tx.CreatedAt)
	return err
}

func (r *RewardRepo) AppendReferral(ctx context.Context, ref domain.Referral) error {
	const q = `
        INSERT INTO referrals(id, referrer_id, referred_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (referrer_id, referred_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, ref.ID, ref.ReferrerID, ref.ReferredID, ref.CreatedAt)
	return err
}

func (r *RewardRepo) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	const q = `SELECT id, user_id, type, token, amount::float8, created_at
	           FROM transactions WHERE user_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Token, &tx.Amount, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
