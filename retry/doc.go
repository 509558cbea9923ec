// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides retry policies for an evhttp.Client plan
// execution. A Policy is a Decider, which says whether to retry, and a
// Waiter, which says how long to wait first:
//
//	decider := retry.Times(3).
//		And(retry.Idempotent).
//		And(retry.StatusCode(500).Or(retry.TransientErr))
//	waiter := retry.NewExpWaiter(100*time.Millisecond, 2*time.Second, nil)
//	policy := retry.NewPolicy(decider, waiter)
//
// Attempts refused a connection by a coordinator's rate limiter are
// transient, so TransientErr retries them; wrap a waiter with Throttle
// to give the limiter's windows time to move on.
package retry
