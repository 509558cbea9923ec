// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/gogama/evhttp/stats"
	"github.com/gogama/evhttp/transient"
)

// An Execution is the state of one execution of a Plan. The client
// updates it as attempts are made and returns it when the execution
// ends.
//
// Policies and event handlers should treat the exported fields as
// read-only, with two exceptions: BeforeAttempt handlers may change
// RequestHeader, and handlers may keep their own data with SetValue.
type Execution struct {
	// Plan is the plan being executed. It is never nil.
	Plan *Plan

	// Start is when the execution started.
	Start time.Time

	// End is when the execution ended, or zero while it is running.
	End time.Time

	// Attempt is the zero-based number of the current attempt, or of
	// the last attempt once the execution has ended.
	Attempt int

	// AttemptTimeouts counts the attempts which timed out.
	AttemptTimeouts int

	// AttemptsThrottled counts the attempts refused a connection by
	// the coordinator's rate limiter.
	AttemptsThrottled int

	// RequestHeader is the header sent by the current attempt. It
	// starts each attempt as a copy of the plan's header.
	RequestHeader http.Header

	// RequestNumber is the handle's sequence number for the current
	// attempt's transfer.
	RequestNumber uint64

	// Info describes the response to the latest attempt. It is the
	// zero value if no response was received.
	Info engine.Info

	// Timings are the stage times of the latest attempt.
	Timings stats.Timings

	// Body is the response body of the latest attempt. It is nil if
	// the attempt failed.
	Body []byte

	// Err is the error which ended the latest attempt, or nil. Once
	// the execution has ended it is the error returned by the client.
	// A non-nil Err is always a *url.Error.
	Err error

	data context.Context
}

// StatusCode returns the response status of the latest attempt, or
// zero if there was no response.
func (e *Execution) StatusCode() int {
	return e.Info.ResponseCode
}

// Header returns the response header of the latest attempt, or nil if
// there was no response.
func (e *Execution) Header() http.Header {
	return e.Info.Header
}

// EffectiveURL returns the last URL the latest attempt requested,
// after following any redirects.
func (e *Execution) EffectiveURL() string {
	return e.Info.EffectiveURL
}

// Duration returns how long the execution has run, or ran.
func (e *Execution) Duration() time.Duration {
	switch {
	case !e.Started():
		return 0
	case !e.Ended():
		return time.Since(e.Start)
	default:
		return e.End.Sub(e.Start)
	}
}

// Started reports whether the execution has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended reports whether the execution has ended. An ended execution
// does not change.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// Timeout reports whether Err is a timeout, either of the latest
// attempt or of the whole plan.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// Throttled reports whether the latest attempt was refused a
// connection by the rate limiter.
func (e *Execution) Throttled() bool {
	return transient.Categorize(e.Err) == transient.Throttled
}

// SetValue stores a value for event handlers and policies. Keys follow
// the rules of context.WithValue: they must be comparable, and should
// be of an unexported type so that handlers do not collide.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}
	e.data = context.WithValue(ctx, key, value)
}

// Value returns the value stored for key, or nil.
func (e *Execution) Value(key interface{}) interface{} {
	if e.data == nil {
		return nil
	}
	return e.data.Value(key)
}
