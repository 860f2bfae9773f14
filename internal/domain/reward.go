package domain

import "time"

type Task struct {
	ID        string
	UserID    string
	Title     string
	Reward    float64
	Completed bool
	UpdatedAt time.Time
}

type AirdropStatus string

const (
	AirdropStatusPending AirdropStatus = "pending"
	AirdropStatusClaimed AirdropStatus = "claimed"
	AirdropStatusExpired AirdropStatus = "expired"
)

type Airdrop struct {
	ID        string
	UserID    string
	Token     string
	Amount    float64
	Status    AirdropStatus
	ClaimedAt *time.Time
}

type TransactionType string

const (
	TransactionTaskReward    TransactionType = "task_reward"
	TransactionAirdropClaim  TransactionType = "airdrop_claim"
	TransactionSignupBonus   TransactionType = "signup_bonus"
	TransactionReferralBonus TransactionType = "referral_bonus"
)

type Transaction struct {
	ID        string
	UserID    string
	Type      TransactionType
	Token     string
	Amount    float64
	CreatedAt time.Time
}

type Referral struct {
	ID         string
	ReferrerID string
	ReferredID string
	CreatedAt  time.Time
}
