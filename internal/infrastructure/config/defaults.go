package config

import "time"

const (
	DefaultHTTPPort        = "8080"
	DefaultShutdownTimeout = 10 * time.Second

	// Price source resilience
	BreakerThreshold = 3
	BreakerCooldown  = 60 * time.Second
	RetryBaseDelay   = 500 * time.Millisecond
	MaxSourceRetries = 2
	SourceTimeout    = 5 * time.Second
	QuoteCacheTTL    = 30 * time.Second

	// Balance sync
	PollInterval        = 30 * time.Second
	ResubscribeInterval = 10 * time.Second

	DefaultPGMaxConns = 5
	DefaultPGMinConns = 1
)

// LoadRetryDelays is the fixed balance load retry schedule, indexed by
// attempt number.
func LoadRetryDelays() []time.Duration {
	return []time.Duration{time.Second, 2 * time.Second, 5 * time.Second}
}
