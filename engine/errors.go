// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors. Transfer failures are reported as *TransferError
// values whose Code is one of these; use errors.Is to test for them.
var (
	ErrAllocation          = errors.New("evhttp/engine: out of memory")
	ErrUnknownOption       = errors.New("evhttp/engine: unknown option")
	ErrBadFunctionArgument = errors.New("evhttp/engine: bad function argument")
	ErrURLMalformat        = errors.New("evhttp/engine: URL using bad/illegal format or missing URL")
	ErrUnsupportedProtocol = errors.New("evhttp/engine: unsupported protocol")
	ErrCouldntResolveHost  = errors.New("evhttp/engine: couldn't resolve host name")
	ErrCouldntConnect      = errors.New("evhttp/engine: couldn't connect to server")
	ErrBadSocket           = errors.New("evhttp/engine: socket refused")
	ErrThrottled           = errors.New("evhttp/engine: connection rate limited")
	ErrOperationTimedOut   = errors.New("evhttp/engine: operation timed out")
	ErrTooManyRedirects    = errors.New("evhttp/engine: number of redirects hit maximum amount")
	ErrHTTPReturnedError   = errors.New("evhttp/engine: HTTP response code said error")
	ErrAbortedByCallback   = errors.New("evhttp/engine: operation was aborted by an application callback")
	ErrReadAbort           = errors.New("evhttp/engine: read callback aborted")
	ErrWriteFailed         = errors.New("evhttp/engine: failed writing received data")
	ErrSeekFail            = errors.New("evhttp/engine: seek failed")
	ErrAborted             = errors.New("evhttp/engine: transfer aborted")
	ErrTransferFailed      = errors.New("evhttp/engine: transfer failed")
	ErrMultiClosed         = errors.New("evhttp/engine: multi handle closed")
	ErrAddedAlready        = errors.New("evhttp/engine: handle already added")
)

// An AllocationError reports a failure to create an engine handle.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return "evhttp/engine: handle allocation failed: " + e.Err.Error()
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// An OptionError reports a failure to set an engine option.
type OptionError struct {
	Option Option
	Err    error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("evhttp/engine: setting %s: %v", e.Option, e.Err)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// A TransferError reports why a transfer failed. Code is one of the
// package sentinels, and Err, if not nil, is the lower-level cause.
// Both are visible to errors.Is and errors.As.
type TransferError struct {
	Code error
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return e.Code.Error()
	}
	return e.Code.Error() + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Timeout reports whether the transfer timed out.
func (e *TransferError) Timeout() bool {
	return e.Code == ErrOperationTimedOut
}

func transferError(code, err error) *TransferError {
	return &TransferError{Code: code, Err: err}
}
