package delivery

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Outcome classifies one attempt or, in a Result, the whole delivery.
type Outcome int

const (
	Sent Outcome = iota
	// AuthRejected is returned for 401/404: the token or chat id is wrong.
	AuthRejected
	// RateLimited is returned for 429.
	RateLimited
	// ClientRejected is any other 4xx, usually malformed Markdown.
	ClientRejected
	// Transient covers 5xx, unexpected 1xx/3xx, timeouts and connection failures.
	Transient
	// RetriesExhausted is terminal only: every attempt was retryable and failed.
	RetriesExhausted
	// Cancelled means the run context ended mid-chain.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case AuthRejected:
		return "auth_rejected"
	case RateLimited:
		return "rate_limited"
	case ClientRejected:
		return "client_rejected"
	case Transient:
		return "transient"
	case RetriesExhausted:
		return "retries_exhausted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (o Outcome) Retryable() bool { return o == RateLimited || o == Transient }

// Classify maps an HTTP status (or transport error) to an Outcome.
// A context.Canceled error wins over any status.
func Classify(status int, err error) Outcome {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Cancelled
		}
		return Transient
	}
	switch {
	case status >= 200 && status < 300:
		return Sent
	case status == http.StatusUnauthorized || status == http.StatusNotFound:
		return AuthRejected
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 400 && status < 500:
		return ClientRejected
	default:
		// 5xx, and anything that is neither 2xx nor 4xx (1xx, 3xx), is retried.
		return Transient
	}
}

// Backoff returns base * 2^attempt, attempt counting from 0.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return base << attempt
}

// sleep waits d or until ctx is done. It reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}
