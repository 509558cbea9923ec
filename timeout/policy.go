// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/evhttp/request"
)

// A Policy chooses the timeout of each attempt in a plan execution.
// The client applies it with Handle.SetTimeout, so a zero timeout means
// the attempt is not bounded.
//
// Implementations must be safe for concurrent use.
type Policy interface {
	// Timeout returns the timeout for the next attempt of e.
	Timeout(e *request.Execution) time.Duration
}

// DefaultPolicy bounds every attempt to 5 seconds.
var DefaultPolicy Policy = Fixed(5 * time.Second)

// Infinite never bounds an attempt. The plan's context may still end
// the execution.
var Infinite Policy = Fixed(0)

// Fixed returns a policy which uses d for every attempt.
func Fixed(d time.Duration) Policy {
	return steps{d}
}

// Adaptive returns a policy which uses usual unless the previous
// attempt timed out. After the first timed out attempt it uses
// after[0], after the second after[1], and so on, repeating the last
// element once they run out.
//
// Adaptive suits a service whose occasional slow responses are best
// cured by a quick retry, while still riding out a longer slow period
// without a retry storm:
//
//	p := timeout.Adaptive(200*time.Millisecond, time.Second, 10*time.Second)
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	s := make(steps, 1, 1+len(after))
	s[0] = usual
	return append(s, after...)
}

type steps []time.Duration

func (s steps) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return s[0]
	}
	i := e.AttemptTimeouts
	if i >= len(s) {
		i = len(s) - 1
	}
	return s[i]
}
