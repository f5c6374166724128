package batch

import (
	"context"
	"math"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
)

// Limit is the number of pipeline runs allowed per second.
type Limit float64

// Inf disables throttling.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between runs to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Limiter is a token bucket shared by a runner's workers. Tokens refill at
// the configured rate up to burst, and a run consumes one token.
type Limiter struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// NewLimiter creates a limiter that starts with a full bucket.
func NewLimiter(rate Limit, burst int) (*Limiter, error) {
	return newLimiter(rate, burst, systemClock{})
}

func newLimiter(rate Limit, burst int, clock Clock) (*Limiter, error) {
	if rate <= 0 {
		return nil, gferrors.NewValidationError(module, "rate", rate, "must be positive").
			WithHint("use batch.Inf to disable throttling")
	}
	if burst <= 0 {
		return nil, gferrors.NewValidationError(module, "burst", burst, "must be positive").
			WithHint("burst is how many runs may start back to back")
	}
	return &Limiter{
		limit:      rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: clock.Now(),
		clock:      clock,
	}, nil
}

// Allow takes a token if one is available now. It does not block.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available and returns how long it waited.
// When ctx ends first the reserved token is returned to the bucket.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	delay := l.reserve(l.clock.Now())
	if delay <= 0 {
		return 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return delay, nil
	case <-ctx.Done():
		l.restore()
		return 0, ctx.Err()
	}
}

// Tokens returns the number of tokens currently available. It goes negative
// while waiters hold reservations.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	return l.tokens
}

// reserve takes a token, possibly going into debt, and returns how long the
// caller must wait before acting on it.
func (l *Limiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(now)
	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * -l.tokens / float64(l.limit))
}

func (l *Limiter) restore() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.clock.Now())
	l.tokens = math.Min(l.tokens+1, float64(l.burst))
}

// refill must be called with l.mu held.
func (l *Limiter) refill(now time.Time) {
	if l.limit == Inf {
		l.tokens = float64(l.burst)
		l.lastUpdate = now
		return
	}

	elapsed := now.Sub(l.lastUpdate)
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*float64(l.limit), float64(l.burst))
	l.lastUpdate = now
}
