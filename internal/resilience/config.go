package resilience

import (
	"time"
)

// FromRetryConfig converts provider config values to a RetryConfig. Retries
// counts extra attempts after the first; zero values keep the defaults.
func FromRetryConfig(retries, baseMs, maxMs int, provider string) RetryConfig {
	cfg := DefaultRetryConfig()
	if retries >= 0 {
		cfg.MaxAttempts = retries + 1
	}
	if baseMs > 0 {
		cfg.Backoff.Base = time.Duration(baseMs) * time.Millisecond
	}
	if maxMs > 0 {
		cfg.Backoff.Max = time.Duration(maxMs) * time.Millisecond
	}
	if provider != "" {
		cfg.OnRetry = RetryLogger(provider)
	}
	return cfg
}

// FromThrottleConfig converts provider config values to a ThrottleConfig.
func FromThrottleConfig(baseMs, maxMs int) ThrottleConfig {
	cfg := DefaultThrottleConfig()
	if baseMs > 0 {
		cfg.Backoff.Base = time.Duration(baseMs) * time.Millisecond
	}
	if maxMs > 0 {
		cfg.Backoff.Max = time.Duration(maxMs) * time.Millisecond
	}
	return cfg
}
