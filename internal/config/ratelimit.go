package config

import "time"

// RateLimitConfig sets the Redis fixed-window limits on the API.
// Requests/Window bound every caller: an authenticated actor, or a client
// IP on the public summary.  ApplyRequests/ApplyWindow additionally bound
// apply attempts by one learner on one session.
type RateLimitConfig struct {
	Enabled       bool
	Prefix        string
	Requests      int
	Window        time.Duration
	ApplyRequests int
	ApplyWindow   time.Duration
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Non-positive limits
// and windows fall back to the defaults.
func LoadRateLimitConfig() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:       envBool("RATE_LIMIT_ENABLED", true),
		Prefix:        envStr("RATE_LIMIT_PREFIX", "rl"),
		Requests:      envInt("RATE_LIMIT_REQUESTS", 120),
		Window:        envDur("RATE_LIMIT_WINDOW", time.Minute),
		ApplyRequests: envInt("RATE_LIMIT_APPLY_REQUESTS", 5),
		ApplyWindow:   envDur("RATE_LIMIT_APPLY_WINDOW", time.Minute),
	}
	if rl.Requests < 1 {
		rl.Requests = 120
	}
	if rl.Window <= 0 {
		rl.Window = time.Minute
	}
	if rl.ApplyRequests < 1 {
		rl.ApplyRequests = 5
	}
	if rl.ApplyWindow <= 0 {
		rl.ApplyWindow = time.Minute
	}
	return rl
}
