package config

import "time"

// CacheConfig controls the Redis cache of rendered session summaries.
// Entries are dropped whenever a reservation on the session changes, so
// the TTL only bounds how long an idle entry lingers.
type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	cc := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		Prefix:  envStr("CACHE_PREFIX", "summary"),
		TTL:     envDur("CACHE_TTL", time.Minute),
	}
	if cc.TTL <= 0 {
		cc.TTL = time.Minute
	}
	return cc
}
