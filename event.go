// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to extend it with custom
// functionality.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs before the
	// plan execution starts.
	//
	// When Client fires BeforeExecutionStart, the execution is
	// non-nil but the only field that has been set is the plan.
	BeforeExecutionStart Event = iota
	// BeforeAttempt identifies the event that occurs before each
	// transfer attempt during the plan execution.
	//
	// When Client fires BeforeAttempt, the execution's RequestHeader
	// field holds a copy of the plan header. Handlers may change it to
	// alter the header lines the attempt sends, without affecting the
	// plan or later attempts.
	BeforeAttempt
	// AfterAttemptTimeout identifies the event that occurs after a
	// transfer attempt failed because of a timeout error.
	//
	// When Client fires AfterAttemptTimeout, the execution's error
	// field is set to the timeout error, and its attempt timeout
	// counter has been incremented.
	AfterAttemptTimeout
	// AfterAttemptThrottled identifies the event that occurs after a
	// transfer attempt failed because the coordinator's rate limiter
	// refused it a connection.
	//
	// When Client fires AfterAttemptThrottled, the execution's error
	// field wraps ErrThrottled, and its throttled attempt counter has
	// been incremented.
	AfterAttemptThrottled
	// AfterAttempt identifies the event that occurs after a transfer
	// attempt is concluded, regardless of whether it concluded
	// successfully or not.
	//
	// When Client fires AfterAttempt, the execution's Info and Timings
	// describe the attempt. Either its error is set, or its body holds
	// the complete response body.
	//
	// AfterAttempt runs before the retry policy is consulted.
	AfterAttempt
	// AfterPlanTimeout identifies the event that occurs after a timeout
	// on the request plan level, not just the attempt level (i.e. the
	// deadline on the plan's context is exceeded). A plan timeout can
	// be detected either at the same time as an attempt ends, or
	// during the retry wait period.
	//
	// When Client fires AfterPlanTimeout, the execution's body is nil.
	AfterPlanTimeout
	// AfterExecutionEnd identifies the event that occurs after the plan
	// execution ends.
	//
	// When Client fires AfterExecutionEnd, the execution is in the same
	// state it was in after the final attempt EXCEPT that the end time
	// is set.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"AfterAttemptTimeout",
	"AfterAttemptThrottled",
	"AfterAttempt",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur in a
// plan execution by Client, in the order in which they would occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		AfterAttemptTimeout,
		AfterAttemptThrottled,
		AfterAttempt,
		AfterPlanTimeout,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
