package dispatch

import "time"

// Config holds the dispatcher's delivery tuning. Every value has an observed
// production default; all of them are exposed through the server config file.
type Config struct {
	// MaxAttempts bounds total sends per message, including the first.
	MaxAttempts int
	// RetryDelay is the fixed interval between delivery checks.
	RetryDelay time.Duration
	// MessageTimeout is the nominal lifetime of one delivery attempt cycle;
	// the reaper evicts entries older than StaleMultiplier times this.
	MessageTimeout time.Duration
	// StaleMultiplier scales MessageTimeout into the reaper's eviction age.
	StaleMultiplier int
	// ReapInterval is the period of the stale-entry sweep.
	ReapInterval time.Duration
}

// DefaultConfig returns the production defaults: one initial send plus two
// retries five seconds apart, with a sixty second stale sweep.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		RetryDelay:      5 * time.Second,
		MessageTimeout:  30 * time.Second,
		StaleMultiplier: 2,
		ReapInterval:    60 * time.Second,
	}
}

// staleAge is the age past which a pending entry is considered abandoned.
func (c Config) staleAge() time.Duration {
	return time.Duration(c.StaleMultiplier) * c.MessageTimeout
}
