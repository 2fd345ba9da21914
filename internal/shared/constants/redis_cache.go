package constants

import "time"

// Redis key layout
// Pattern: socialhub:{module}:{identifier}

const (
	CACHE_PREFIX = "socialhub"
)

// ================== PENDING ACTIONS ==================

// One-time tokens for email confirmation and password reset
const (
	CACHE_KEY_PENDING_ACTION = CACHE_PREFIX + ":pending:" // + token
)

const (
	TTL_PENDING_CONFIRM = 1800 * time.Second // email confirmation links
	TTL_PENDING_RESET   = 600 * time.Second  // password reset / disposable links
)

// ================== RATE LIMITING ==================

const (
	CACHE_KEY_RATE_LIMIT = CACHE_PREFIX + ":ratelimit:" // + ip:limit-type
)

// BuildPendingActionKey returns the Redis key holding a pending action
func BuildPendingActionKey(token string) string {
	return CACHE_KEY_PENDING_ACTION + token
}

// BuildRateLimitKey returns the sliding-window key for a client and route class
func BuildRateLimitKey(clientIP, limitType string) string {
	return CACHE_KEY_RATE_LIMIT + clientIP + ":" + limitType
}
