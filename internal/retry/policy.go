// Package retry decides whether a failed attempt is retried and how long
// to back off, based on a substring classification of the fetcher-reported
// failure text.
package retry

import (
	"strings"
	"time"
)

// Kind is the error classification derived from the failure text.
type Kind int

const (
	KindUnknown Kind = iota
	KindContentUnavailable
	KindAgeRestricted
	KindFormatUnavailable
	KindRateLimited
	KindTransientNetwork
)

// Message returns the user-facing wording for the classification.
func (k Kind) Message() string {
	switch k {
	case KindContentUnavailable:
		return "Content unavailable"
	case KindAgeRestricted:
		return "Age-restricted content"
	case KindFormatUnavailable:
		return "Format not available"
	case KindRateLimited:
		return "Rate limited by server"
	case KindTransientNetwork:
		return "Network error"
	default:
		return "Unknown error"
	}
}

// Classify maps a fetcher error onto a Kind by message matching. There is
// no structured code table to inspect; the fetcher reports free text.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"):
		return KindRateLimited
	case strings.Contains(msg, "age restricted"),
		strings.Contains(msg, "age-restricted"),
		strings.Contains(msg, "confirm your age"):
		return KindAgeRestricted
	case strings.Contains(msg, "requested format"),
		strings.Contains(msg, "format is not available"):
		return KindFormatUnavailable
	case strings.Contains(msg, "unavailable"):
		return KindContentUnavailable
	case strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "temporary"):
		return KindTransientNetwork
	default:
		return KindUnknown
	}
}

// Decision is the outcome of consulting the policy after a failed attempt.
// Retry true carries the backoff delay; Retry false is a permanent failure.
type Decision struct {
	Kind  Kind
	Retry bool
	Delay time.Duration
}

// Policy holds the backoff arithmetic. Delays grow linearly with the
// attempt number; rate-limit backoff is capped separately and never
// exhausts the attempt budget.
type Policy struct {
	BaseDelay     time.Duration
	RateLimitBase time.Duration
	RateLimitCap  time.Duration
	MaxRetries    int
}

// Default returns the stock policy: 5s linear backoff, 3 attempts,
// 60s-per-attempt rate-limit backoff capped at 300s.
func Default() Policy {
	return Policy{
		BaseDelay:     5 * time.Second,
		RateLimitBase: 60 * time.Second,
		RateLimitCap:  300 * time.Second,
		MaxRetries:    3,
	}
}

// Decide maps (err, attempt) to a Decision. attempt is the number of the
// attempt that just failed, starting at 1. Rate-limited failures are never
// permanent; the resource is expected to come back.
func (p Policy) Decide(err error, attempt int) Decision {
	kind := Classify(err)
	if attempt < 1 {
		attempt = 1
	}
	if kind == KindRateLimited {
		delay := time.Duration(attempt) * p.RateLimitBase
		if delay > p.RateLimitCap {
			delay = p.RateLimitCap
		}
		return Decision{Kind: kind, Retry: true, Delay: delay}
	}
	if attempt >= p.MaxRetries {
		return Decision{Kind: kind, Retry: false}
	}
	return Decision{Kind: kind, Retry: true, Delay: time.Duration(attempt) * p.BaseDelay}
}
