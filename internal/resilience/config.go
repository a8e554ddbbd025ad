package resilience

import "time"

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Reputation lookups sit on the connect path: trip quickly, retry soon.
	ReputationThreshold         = 3
	ReputationResetTimeout      = 15 * time.Second
	ReputationHalfOpenSuccesses = 1

	// The join upstream is slow to recover; give it longer before a trial call.
	JoinThreshold         = 5
	JoinResetTimeout      = 60 * time.Second
	JoinHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// ReputationConfig returns settings for the address reputation collaborator.
func ReputationConfig() Config {
	return Config{
		Threshold:         ReputationThreshold,
		ResetTimeout:      ReputationResetTimeout,
		HalfOpenSuccesses: ReputationHalfOpenSuccesses,
	}
}

// JoinConfig returns settings for the join proxy upstream.
func JoinConfig() Config {
	return Config{
		Threshold:         JoinThreshold,
		ResetTimeout:      JoinResetTimeout,
		HalfOpenSuccesses: JoinHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
