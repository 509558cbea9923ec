// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"time"

	"github.com/gogama/evhttp/request"
	"github.com/gogama/evhttp/transient"
)

// A Decider decides whether a plan execution should make another
// attempt. Implementations must be safe for concurrent use.
type Decider interface {
	Decide(e *request.Execution) bool
}

// DeciderFunc adapts an ordinary function to a Decider. DeciderFuncs
// compose with And and Or.
type DeciderFunc func(e *request.Execution) bool

// DefaultTimes is the number of retries DefaultDecider allows.
const DefaultTimes = 5

// DefaultDecider allows up to DefaultTimes retries of an attempt which
// failed with a transient error, including a throttled connection, or
// received status 429, 502, 503 or 504.
var DefaultDecider = Times(DefaultTimes).And(StatusCode(429, 502, 503, 504).Or(TransientErr))

// TransientErr retries when the attempt's error is transient according
// to transient.Categorize. It never retries an attempt which received a
// response.
var TransientErr DeciderFunc = func(e *request.Execution) bool {
	return transient.Categorize(e.Err) != transient.Not
}

// Idempotent retries only plans whose method is idempotent, so that a
// request with side effects is not repeated. Compose it with And.
var Idempotent DeciderFunc = func(e *request.Execution) bool {
	switch e.Plan.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete,
		http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Decide calls f(e).
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And returns a decider which retries when both f and g do. g is not
// called if f returns false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or returns a decider which retries when either f or g does. g is not
// called if f returns true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times allows at most n retries.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Attempt < n
	}
}

// Before allows retries until the execution has run for d.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode retries when the latest attempt received a response with
// one of the given status codes.
func StatusCode(codes ...int) DeciderFunc {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return func(e *request.Execution) bool {
		return set[e.StatusCode()]
	}
}
