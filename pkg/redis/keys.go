package redis

import "strings"

const namespace = "fb"

// Keys builds namespaced key and channel names, e.g.
// fb:idempotency:<scope>:<id> or fb:feed:product:<id>.
type Keys struct{}

func (Keys) IdempotencyKey(scope, id string) string { return join("idempotency", scope, id) }

func (Keys) RateLimitKey(scope string) string { return join("rate_limit", scope) }

func (Keys) LockKey(name string) string { return join("lock", name) }

// FeedChannel names the live-feed channel for one topic.
func (Keys) FeedChannel(kind, id string) string { return join("feed", kind, id) }

// join drops blank parts so a missing id never yields "a::b".
func join(parts ...string) string {
	out := make([]string, 1, len(parts)+1)
	out[0] = namespace
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}
