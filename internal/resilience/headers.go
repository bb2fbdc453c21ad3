package resilience

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// epochThreshold separates reset values given as Unix timestamps from
// values given as seconds-until-reset.
const epochThreshold = 1_000_000_000

// ParseHeaders reads rate-limit information from response headers. Both the
// IETF draft names (RateLimit-*) and the common X-RateLimit-* names are
// understood. Retry-After, when present, overrides the reset time.
//
// The returned state has Remaining -1 and a zero ObservedAt when no
// rate-limit header was present.
func ParseHeaders(h http.Header, now time.Time) RateLimitState {
	s := RateLimitState{Remaining: -1}
	if h == nil {
		return s
	}

	seen := false
	if v, ok := firstHeader(h, "RateLimit-Remaining", "X-RateLimit-Remaining"); ok {
		if n, ok := leadingInt(v); ok {
			s.Remaining = n
			seen = true
		}
	}
	if v, ok := firstHeader(h, "RateLimit-Limit", "X-RateLimit-Limit"); ok {
		if n, ok := leadingInt(v); ok {
			s.Limit = n
			seen = true
		}
	}
	if v, ok := firstHeader(h, "RateLimit-Reset", "X-RateLimit-Reset"); ok {
		if t, ok := parseReset(v, now); ok {
			s.ResetAt = t
			seen = true
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if t, ok := parseRetryAfter(v, now); ok {
			s.ResetAt = t
			seen = true
		}
	}

	if seen {
		s.ObservedAt = now
	}
	return s
}

func firstHeader(h http.Header, names ...string) (string, bool) {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

// leadingInt parses the integer at the start of v, so that structured
// values like "100, 100;w=3600" yield 100.
func leadingInt(v string) (int, bool) {
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(v[:end])
	return n, err == nil
}

// parseReset accepts seconds-until-reset, a Unix timestamp or an HTTP date.
func parseReset(v string, now time.Time) (time.Time, bool) {
	if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 {
		if n >= epochThreshold {
			return time.Unix(int64(n), 0), true
		}
		return now.Add(time.Duration(n * float64(time.Second))), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Time, bool) {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return now.Add(time.Duration(n) * time.Second), true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
