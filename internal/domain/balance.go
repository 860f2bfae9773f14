package domain

import "time"

// Balance mirrors one row of the remote balances table for a user.
type Balance struct {
	UserID    string
	Token     string
	Amount    float64
	UpdatedAt time.Time
}
