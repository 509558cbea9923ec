// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gogama/evhttp/request"
)

// A Waiter says how long to wait before the next attempt. The client
// only consults it after the Decider has chosen to retry.
// Implementations must be safe for concurrent use.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// WaiterFunc adapts an ordinary function to a Waiter.
type WaiterFunc func(e *request.Execution) time.Duration

// Wait calls f(e).
func (f WaiterFunc) Wait(e *request.Execution) time.Duration {
	return f(e)
}

// DefaultWaiter waits with full-jitter exponential backoff from 50
// milliseconds up to 1 second, waits at least 1 second after a
// throttled attempt, and honours a Retry-After header of up to 10
// seconds.
var DefaultWaiter = RetryAfter(Throttle(NewExpWaiter(50*time.Millisecond, time.Second, rand.NewSource(time.Now().UnixNano())), time.Second), 10*time.Second)

// NewFixedWaiter returns a Waiter which always waits d.
func NewFixedWaiter(d time.Duration) Waiter {
	return WaiterFunc(func(*request.Execution) time.Duration {
		return d
	})
}

// NewExpWaiter returns a Waiter using exponential backoff. The ceiling
// for attempt n is base*2^n, capped at max. With a nil src the waiter
// returns the ceiling; otherwise it returns a random duration in
// [0, ceiling) drawn from src, the "full jitter" scheme.
//
// Base must be positive and max at least base.
func NewExpWaiter(base, max time.Duration, src rand.Source) Waiter {
	if base <= 0 {
		panic("evhttp/retry: base must be positive")
	}
	if max < base {
		panic("evhttp/retry: max must be at least base")
	}
	w := &expWaiter{base: base, max: max}
	if src != nil {
		w.rand = rand.New(src)
	}
	return w
}

type expWaiter struct {
	base time.Duration
	max  time.Duration
	mu   sync.Mutex
	rand *rand.Rand
}

func (w *expWaiter) Wait(e *request.Execution) time.Duration {
	ceil := w.base
	for i := 0; i < e.Attempt && ceil < w.max; i++ {
		if ceil > w.max/2 {
			ceil = w.max
		} else {
			ceil *= 2
		}
	}
	if w.rand == nil {
		return ceil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.rand.Int63n(int64(ceil)))
}

// Throttle wraps w so that it waits at least min after an attempt the
// rate limiter refused.
func Throttle(w Waiter, min time.Duration) Waiter {
	return WaiterFunc(func(e *request.Execution) time.Duration {
		d := w.Wait(e)
		if e.Throttled() && d < min {
			d = min
		}
		return d
	})
}

// RetryAfter wraps w so that a Retry-After header on a 429 or 503
// response is honoured, up to max. Both the delay-seconds and the
// HTTP-date forms are understood.
func RetryAfter(w Waiter, max time.Duration) Waiter {
	return WaiterFunc(func(e *request.Execution) time.Duration {
		d := w.Wait(e)
		if code := e.StatusCode(); code != http.StatusTooManyRequests && code != http.StatusServiceUnavailable {
			return d
		}
		ra, ok := retryAfter(e.Header().Get("Retry-After"), time.Now())
		if !ok {
			return d
		}
		if ra > max {
			ra = max
		}
		if ra > d {
			d = ra
		}
		return d
	})
}

func retryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
