// internal/app/system/backoff/backoff.go

// Package backoff provides a small, testable bounded-retry utility.
//
// Retry-with-sleep loops used to be embedded at each call site that had
// to absorb write-then-read visibility lag; centralizing the timing
// policy here keeps it consistent and lets tests swap the sleeper for a
// recording fake instead of waiting on real clocks.
package backoff

import (
	"context"
	"time"
)

// Sleeper pauses for d or returns early with the context's error.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy is a bounded linear-backoff retry policy: up to Attempts
// tries, sleeping Base×n after the n-th failure.
type Policy struct {
	Attempts int
	Base     time.Duration
	Sleep    Sleeper // nil means a context-aware timer sleep
}

// Linear returns a Policy with the given attempt budget and base delay.
func Linear(attempts int, base time.Duration) Policy {
	return Policy{Attempts: attempts, Base: base}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// context is done. It returns nil on the first success, otherwise the
// error from the final attempt (or the context error if interrupted
// while waiting between attempts).
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if n == attempts {
			break
		}
		if serr := sleep(ctx, time.Duration(n)*p.Base); serr != nil {
			return serr
		}
	}
	return err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
