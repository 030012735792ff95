// Package backoff implements delays between retried operations.
package backoff

import (
	"context"
	"math/rand"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// Backoff sleeps between attempts.
type Backoff interface {
	// Do waits for the next backoff period or returns early when ctx is done.
	Do(ctx context.Context) error
	// Reset restarts the sequence from the base delay.
	Reset()
}

type decorr struct {
	base  int64
	cap   int64
	mul   int64
	sleep int64
	clock clockwork.Clock
}

// Decorr returns a "decorrelated jitter" backoff: each delay is drawn from
// [base, 3*previous) and never exceeds cap.
func Decorr(base, cap time.Duration, clock clockwork.Clock) Backoff {
	if base <= 0 {
		base = time.Millisecond
	}
	if cap < base {
		cap = base
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &decorr{
		base:  int64(base),
		cap:   int64(cap),
		mul:   3,
		sleep: int64(base),
		clock: clock,
	}
}

func (b *decorr) Do(ctx context.Context) error {
	b.sleep = b.base + rand.Int63n(b.sleep*b.mul-b.base)
	if b.sleep > b.cap {
		b.sleep = b.cap
	}
	select {
	case <-b.clock.After(time.Duration(b.sleep)):
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

func (b *decorr) Reset() {
	b.sleep = b.base
}
