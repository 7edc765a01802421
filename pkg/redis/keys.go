package redis

import "strings"

const keyNamespace = "sf"

type keyKind string

const (
	kindIdempotency keyKind = "idempotency"
	kindRateLimit   keyKind = "rate_limit"
	kindLock        keyKind = "lock"
)

// key joins the storefront namespace, kind and non-empty parts with colons.
func key(kind keyKind, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(string(kind))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey names the replay record for one client key within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(kindIdempotency, scope, id)
}

// RateLimitKey names the counter of a fixed rate-limit window.
func (c *Client) RateLimitKey(scope string) string {
	return key(kindRateLimit, scope)
}

// LockKey names a distributed lock such as the cron leader lock.
func (c *Client) LockKey(name string) string {
	return key(kindLock, name)
}
