// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"errors"

	"github.com/gogama/evhttp/engine"
)

var (
	// ErrCanceled is the outcome of a transfer cancelled by Cancel,
	// CancelRequest, a later Start on the same handle, or the closing
	// of its coordinator.
	ErrCanceled = errors.New("evhttp: operation canceled")
	// ErrAbortedByCallback is the outcome of a transfer aborted because
	// its body source failed or its progress callback returned false.
	ErrAbortedByCallback = engine.ErrAbortedByCallback
	// ErrThrottled is the outcome of a transfer whose new connection
	// was refused by the coordinator's rate limiter.
	ErrThrottled = engine.ErrThrottled
	// ErrDetached is returned by Start on a handle which is not bound
	// to a coordinator.
	ErrDetached = errors.New("evhttp: handle is not bound to a coordinator")
	// ErrBound is returned by Perform on a handle which is bound to a
	// coordinator.
	ErrBound = errors.New("evhttp: handle is bound to a coordinator")
	// ErrClosed is returned, or delivered to a completion function,
	// when the coordinator or handle has been closed.
	ErrClosed = errors.New("evhttp: closed")
)

// AllocationError reports a failure to create an engine handle.
type AllocationError = engine.AllocationError

// OptionError reports a failure to set an engine option.
type OptionError = engine.OptionError

// TransferError reports why a transfer failed in the engine.
type TransferError = engine.TransferError
