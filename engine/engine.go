// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// An Engine creates transfer handles and multi handles.
//
// Native returns the Engine implemented on net/http. Other engines,
// for example scripted ones used in tests, may be substituted wherever
// an Engine is accepted.
type Engine interface {
	// NewHandle creates a handle with default options. A failure to
	// create the handle is reported as an *AllocationError.
	NewHandle() (Handle, error)
	// NewMulti creates a multi handle which runs many transfers
	// concurrently over one connection pool.
	NewMulti(cfg MultiConfig) (Multi, error)
}

// A Handle holds the options of one logical transfer.
//
// Option values are copied when a transfer starts, so changing options
// while a transfer is in flight only affects later transfers. Handle
// methods are safe for concurrent use.
type Handle interface {
	// SetOption sets one option. An invalid option or value is
	// reported as an *OptionError.
	SetOption(opt Option, value interface{}) error
	// Duplicate creates a new handle with the same option values. A
	// failure to create the handle is reported as an *AllocationError.
	Duplicate() (Handle, error)
	// Reset restores every option to its default value.
	Reset()
	// Perform runs one transfer to completion on the calling goroutine
	// without a multi handle.
	Perform(ctx context.Context) error
	// Info describes the most recently completed transfer.
	Info() Info
	// Cleanup releases the handle. The handle must not be used again.
	Cleanup()
}

// A Multi runs the transfers of many handles concurrently.
type Multi interface {
	// Add starts a transfer for h and arranges for done to be called
	// exactly once when it ends. Transfers which fail before any I/O,
	// for example because of a malformed URL, may call done before Add
	// returns.
	//
	// Add returns an error, and never calls done, if h cannot be added
	// at all.
	Add(h Handle, done func(error)) error
	// Remove aborts the transfer running for h, if any. The done
	// function passed to Add is still called, with an error, but may be
	// called after Remove returns.
	Remove(h Handle) error
	// CloseIdleConnections closes pooled connections not in use.
	CloseIdleConnections()
	// Close aborts every running transfer and closes pooled
	// connections.
	Close() error
}

// MultiConfig configures the connection pool of a Multi.
type MultiConfig struct {
	// MaxIdleConnsPerHost bounds the pooled connections kept per host.
	// Zero means the net/http default.
	MaxIdleConnsPerHost int
	// IdleConnTimeout is how long a pooled connection may stay idle.
	// Zero means no limit.
	IdleConnTimeout time.Duration
	// DisableKeepAlives prevents connection reuse, so that every
	// transfer opens a new socket.
	DisableKeepAlives bool
	// DisableHTTP2 turns off HTTP/2 negotiation.
	DisableHTTP2 bool
	// DisableProxy ignores the proxy environment variables.
	DisableProxy bool
	// TLSClientConfig is the TLS configuration for HTTPS transfers.
	TLSClientConfig *tls.Config
}

// Info describes a completed transfer.
type Info struct {
	ResponseCode  int
	Status        string
	Proto         string
	Header        http.Header
	EffectiveURL  string
	ContentLength int64
	DownloadSize  int64
	UploadSize    int64
}

// A SocketPurpose says why the engine needs a socket.
type SocketPurpose int

const (
	// PurposeIPConnection is an outgoing connection.
	PurposeIPConnection SocketPurpose = iota
	// PurposeAccept is an incoming connection.
	PurposeAccept
)

// A SockAddr is the address a new socket will connect to.
type SockAddr struct {
	Network string
	Address string
}

// A Socket is a connection opened by a SocketOpener. FD identifies the
// underlying OS socket.
type Socket interface {
	net.Conn
	FD() uintptr
}

// A SocketOpener creates the sockets of a transfer.
//
// OpenSocket returns an error wrapping ErrBadSocket to refuse the
// socket, or ErrThrottled when the refusal is due to admission
// control. The engine fails the transfer on refusal.
type SocketOpener interface {
	OpenSocket(ctx context.Context, purpose SocketPurpose, addr SockAddr) (Socket, error)
}

// A SocketCloser closes sockets created by a SocketOpener. The engine
// calls CloseSocket exactly once per socket, possibly long after the
// transfer that opened it has ended, because sockets are kept in the
// multi's connection pool.
type SocketCloser interface {
	CloseSocket(s Socket) error
}

// A BodyReader supplies the request body. ReadBody returns io.EOF at the
// end of the body, or ErrReadAbort to abort the transfer.
type BodyReader interface {
	ReadBody(p []byte) (int, error)
}

// A BodySeeker rewinds the request body for retransmission. SeekBody
// returns ErrSeekFail if it cannot seek.
type BodySeeker interface {
	SeekBody(offset int64, origin Origin) error
}

// A BodyWriter receives the response body. WriteBody returns the number
// of bytes accepted; accepting fewer than len(p) aborts the transfer.
type BodyWriter interface {
	WriteBody(p []byte) int
}

// A ProgressReporter is told about transfer progress. Returning false
// aborts the transfer.
type ProgressReporter interface {
	Progress(dlTotal, dlNow, ulTotal, ulNow int64) bool
}

// An Origin is the reference point of a BodySeeker offset.
type Origin int

const (
	SeekSet Origin = iota
	SeekCur
	SeekEnd
)
