// Package guard provides input sanitization and keyed rate limiting for the
// surfaces that accept untrusted input.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

var (
	metaRe  = regexp.MustCompile("[;&|`$]")
	cmdRe   = regexp.MustCompile(`(?i)\b(rm|wget|curl|bash|sh)\b`)
	spaceRe = regexp.MustCompile(" {2,}")
)

// Sanitize strips shell metacharacters and common download or exec tool
// names from untrusted input, collapsing the spaces the removal leaves
// behind.
func Sanitize(input string) string {
	out := metaRe.ReplaceAllString(input, "")
	out = cmdRe.ReplaceAllString(out, "")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// KeyedLimiter holds an independent token bucket per key.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyedLimiter allows perMinute requests per key in any one-minute
// window.
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
}

func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	limiter, ok := k.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = limiter
	}
	k.mu.Unlock()

	return limiter.Allow()
}

// Wrap guards a command function: the limiter is keyed by command name and
// every string argument is sanitized before fn sees it.
func Wrap(limiter *KeyedLimiter, name string, fn func(args []string) error) func(args []string) error {
	return func(args []string) error {
		if !limiter.Allow(name) {
			return fmt.Errorf("rate limit exceeded for %s", name)
		}
		clean := make([]string, len(args))
		for i, arg := range args {
			clean[i] = Sanitize(arg)
		}
		return fn(clean)
	}
}
