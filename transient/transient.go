// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"errors"
	"syscall"

	"github.com/gogama/evhttp/engine"
)

// A Category says whether, and why, a transfer error is transient.
//
// Not means a retry is very unlikely to succeed. Every other category
// means a later transfer has some prospect of success.
type Category int

const (
	// Not indicates a nil or non-transient error.
	Not Category = iota
	// Timeout indicates the transfer ran out of time. The error, or
	// an error it wraps, has a Timeout method which reports true.
	Timeout
	// ConnRefused indicates the connection could not be made, either
	// because the remote host refused it (syscall.ECONNREFUSED) or
	// because the engine reported engine.ErrCouldntConnect. A service
	// which is starting or restarting refuses connections for a short
	// while.
	ConnRefused
	// ConnReset indicates the remote host reset a connection which was
	// in use (syscall.ECONNRESET), typically because a server or load
	// balancer in front of it went away mid-response.
	ConnReset
	// Throttled indicates the coordinator's rate limiter refused a new
	// connection for the transfer. The limiter admits connections
	// again once its sliding windows move on.
	Throttled
)

var categoryNames = []string{
	"Not",
	"Timeout",
	"ConnRefused",
	"ConnReset",
	"Throttled",
}

// String returns the name of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Category(?)"
	}
	return categoryNames[c]
}

// Categorize returns the transience category of err, looking through
// every error err wraps. Throttling takes precedence over a timeout,
// and a timeout over a connection failure.
//
// Categorize never consults a Temporary method.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	if errors.Is(err, engine.ErrThrottled) {
		return Throttled
	}

	var t timeouter
	if errors.As(err, &t) && t.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		}
	}

	if errors.Is(err, engine.ErrCouldntConnect) {
		return ConnRefused
	}

	return Not
}

type timeouter interface {
	Timeout() bool
}
