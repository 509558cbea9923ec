// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

// A Policy decides after every attempt whether to retry and, if so,
// how long to wait first. Implementations must be safe for concurrent
// use.
type Policy interface {
	Decider
	Waiter
}

// DefaultPolicy combines DefaultDecider and DefaultWaiter.
var DefaultPolicy = NewPolicy(DefaultDecider, DefaultWaiter)

// Never is a policy which never retries.
var Never = NewPolicy(Times(0), DefaultWaiter)

type policy struct {
	Decider
	Waiter
}

// NewPolicy combines a Decider and a Waiter into a Policy.
func NewPolicy(d Decider, w Waiter) Policy {
	if d == nil || w == nil {
		panic("evhttp/retry: nil decider or waiter")
	}
	return policy{Decider: d, Waiter: w}
}
