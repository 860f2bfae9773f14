package application

import (
	"context"
	"errors"
	"fmt"

	"airdrop-client/internal/domain"

	"go.uber.org/zap"
)

// RewardService performs the balance mutations behind the task list and
// airdrop claims: write to the remote store, record a transaction, then
// signal the synchronizer to reconcile. Duplicate submissions are fenced
// by the idempotency store.
type RewardService struct {
	store    RewardStore
	idem     IdempotencyStore
	observer MutationObserver
	clock    Clock
	idgen    IDGen
	log      *zap.Logger
}

type RewardOption func(*RewardService)

func WithRewardClock(c Clock) RewardOption { return func(s *RewardService) { s.clock = c } }
func WithRewardIDGen(g IDGen) RewardOption { return func(s *RewardService) { s.idgen = g } }

func NewRewardService(store RewardStore, idem IdempotencyStore, observer MutationObserver, log *zap.Logger, opts ...RewardOption) *RewardService {
	s := &RewardService{store: store, idem: idem, observer: observer, log: log}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

const signupBonusAmount = 100

// CompleteTask marks the task done and credits its reward to the DROP
// balance.
func (s *RewardService) CompleteTask(ctx context.Context, userID, taskID string) error {
	key := "task:" + userID + ":" + taskID
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return fmt.Errorf("reserve task: %w", err)
	}
	if !ok {
		return ErrConflict
	}

	task, err := s.store.GetTask(ctx, userID, taskID)
	if err != nil {
		s.release(ctx, key)
		return err
	}
	if task.Completed {
		return ErrConflict
	}

	now := s.clock.Now()
	if err := s.store.MarkTaskCompleted(ctx, userID, taskID, now); err != nil {
		s.release(ctx, key)
		return fmt.Errorf("mark task completed: %w", err)
	}
	if err := s.credit(ctx, userID, "DROP", task.Reward, domain.TransactionTaskReward); err != nil {
		s.release(ctx, key)
		return err
	}
	s.log.Info("task_completed", zap.String("user_id", userID), zap.String("task_id", taskID), zap.Float64("reward", task.Reward))
	s.observer.NotifyExternalMutation()
	return nil
}

// ClaimAirdrop moves a pending airdrop to claimed and credits its amount.
func (s *RewardService) ClaimAirdrop(ctx context.Context, userID, airdropID string) error {
	key := "claim:" + userID + ":" + airdropID
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return fmt.Errorf("reserve claim: %w", err)
	}
	if !ok {
		return ErrConflict
	}

	drop, err := s.store.GetAirdrop(ctx, userID, airdropID)
	if err != nil {
		s.release(ctx, key)
		return err
	}
	if drop.Status != domain.AirdropStatusPending {
		return ErrConflict
	}

	now := s.clock.Now()
	if err := s.store.MarkAirdropClaimed(ctx, userID, airdropID, now); err != nil {
		s.release(ctx, key)
		return fmt.Errorf("mark airdrop claimed: %w", err)
	}
	if err := s.credit(ctx, userID, drop.Token, drop.Amount, domain.TransactionAirdropClaim); err != nil {
		s.release(ctx, key)
		return err
	}
	s.log.Info("airdrop_claimed", zap.String("user_id", userID), zap.String("airdrop_id", airdropID))
	s.observer.NotifyExternalMutation()
	return nil
}

// GrantSignupBonus credits the one-time welcome amount.
func (s *RewardService) GrantSignupBonus(ctx context.Context, userID string) error {
	key := "signup:" + userID
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return fmt.Errorf("reserve signup bonus: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	if err := s.credit(ctx, userID, "DROP", signupBonusAmount, domain.TransactionSignupBonus); err != nil {
		s.release(ctx, key)
		return err
	}
	s.log.Info("signup_bonus_granted", zap.String("user_id", userID))
	s.observer.NotifyExternalMutation()
	return nil
}

// GrantReferralBonus credits the referrer for a completed referral.
func (s *RewardService) GrantReferralBonus(ctx context.Context, referrerID, referredID string, amount float64) error {
	key := "referral:" + referrerID + ":" + referredID
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return fmt.Errorf("reserve referral bonus: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	ref := domain.Referral{
		ID:         s.idgen.NewID(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.AppendReferral(ctx, ref); err != nil {
		s.release(ctx, key)
		return fmt.Errorf("record referral: %w", err)
	}
	if err := s.credit(ctx, referrerID, "DROP", amount, domain.TransactionReferralBonus); err != nil {
		s.release(ctx, key)
		return err
	}
	s.log.Info("referral_bonus_granted", zap.String("referrer_id", referrerID), zap.String("referred_id", referredID))
	s.observer.NotifyExternalMutation()
	return nil
}

// release drops a reservation after the guarded operation failed, so a
// retry is not locked out until the TTL expires. Best effort: on error
// the key simply ages out.
func (s *RewardService) release(ctx context.Context, key string) {
	if err := s.idem.Release(ctx, key); err != nil {
		s.log.Warn("idempotency_release_failed", zap.String("key", key), zap.Error(err))
	}
}

// credit adds amount to the user's token balance and appends the matching
// transaction row.
func (s *RewardService) credit(ctx context.Context, userID, token string, amount float64, typ domain.TransactionType) error {
	now := s.clock.Now()
	current, err := s.store.GetBalance(ctx, userID, token)
	if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read balance: %w", err)
	}
	next := domain.Balance{
		UserID:    userID,
		Token:     token,
		Amount:    current.Amount + amount,
		UpdatedAt: now,
	}
	if err := s.store.UpsertBalance(ctx, next); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	tx := domain.Transaction{
		ID:        s.idgen.NewID(),
		UserID:    userID,
		Type:      typ,
		Token:     token,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := s.store.AppendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}
