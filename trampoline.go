// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/gogama/evhttp/engine"
)

var errInactive = errors.New("transfer no longer active")

// A transfer is one run of a handle. It snapshots the handle's staged
// state when the run starts and is the delegate through which the
// engine calls back into the handle. Once the run completes the
// delegate goes inert, so late engine callbacks never reach the body
// source or sink.
type transfer struct {
	h        *Handle
	seq      uint64
	handler  CompletionFunc // owned by the loop
	active   atomic.Bool
	url      string
	source   io.Reader
	sink     io.Writer
	progress ProgressFunc
}

func noopCompletion(error) {}

// take returns the completion function and replaces it with a no-op,
// so that whichever of completion and cancellation reaches it first
// is the only one to call it.
func (t *transfer) take() CompletionFunc {
	fn := t.handler
	t.handler = noopCompletion
	if fn == nil {
		return noopCompletion
	}
	return fn
}

// complete deactivates the delegate, stamps the completion time and
// flushes the sink.
func (t *transfer) complete() {
	t.active.Store(false)
	t.h.markComplete()
	if f, ok := t.sink.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			t.h.log.WithError(err).Error("evhttp: sink flush failed")
		}
	}
}

// OpenSocket performs admission control and opens a TCP socket.
// Sockets of bound handles are registered with the coordinator.
func (t *transfer) OpenSocket(ctx context.Context, purpose engine.SocketPurpose, addr engine.SockAddr) (engine.Socket, error) {
	if !t.active.Load() {
		return nil, fmt.Errorf("%w: %v", engine.ErrBadSocket, errInactive)
	}
	h, c := t.h, t.h.coord
	log := h.log.WithField("request", t.seq)
	if c != nil {
		var admitted, inactive bool
		err := c.loop.RunSync(func() {
			if inactive = !t.active.Load(); !inactive {
				admitted = c.mayAcquire(t.url)
			}
		})
		switch {
		case err != nil:
			return nil, fmt.Errorf("%w: %v", engine.ErrBadSocket, err)
		case inactive:
			return nil, fmt.Errorf("%w: %v", engine.ErrBadSocket, errInactive)
		case !admitted:
			log.Debug("evhttp: socket rate limited")
			c.stats.MarkSocketRateLimited()
			return nil, fmt.Errorf("%w: %s", engine.ErrThrottled, t.url)
		}
		log.Trace("evhttp: not throttled")
	} else {
		log.Trace("evhttp: skip throttle check")
	}

	if purpose != engine.PurposeIPConnection || !strings.HasPrefix(addr.Network, "tcp") {
		return nil, fmt.Errorf("%w: unsupported socket %v/%s", engine.ErrBadSocket, purpose, addr.Network)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, addr.Network, addr.Address)
	if err != nil {
		return nil, err
	}
	s, err := newSocket(conn)
	if err != nil {
		log.WithError(err).Error("evhttp: socket descriptor unavailable")
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", engine.ErrBadSocket, err)
	}
	if c != nil {
		var bound bool
		err = c.loop.RunSync(func() {
			if bound = t.active.Load(); bound {
				c.bindSocket(h, s.fd)
			}
		})
		if err == nil && !bound {
			err = errInactive
		}
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %v", engine.ErrBadSocket, err)
		}
		c.stats.MarkOpenSocket()
	}
	h.markOpenSocket()
	return s, nil
}

// ReadBody supplies request body bytes from the source.
func (t *transfer) ReadBody(p []byte) (int, error) {
	if !t.active.Load() || t.source == nil {
		return 0, engine.ErrReadAbort
	}
	n, err := t.source.Read(p)
	switch {
	case err == nil || err == io.EOF:
		return n, err
	default:
		t.h.log.WithField("request", t.seq).WithError(err).Debug("evhttp: body source failed")
		return 0, fmt.Errorf("%w: %v", engine.ErrReadAbort, err)
	}
}

// SeekBody repositions a seekable source.
func (t *transfer) SeekBody(offset int64, origin engine.Origin) error {
	if !t.active.Load() {
		return engine.ErrSeekFail
	}
	s, ok := t.source.(io.Seeker)
	if !ok {
		return engine.ErrSeekFail
	}
	var whence int
	switch origin {
	case engine.SeekSet:
		whence = io.SeekStart
	case engine.SeekCur:
		whence = io.SeekCurrent
	case engine.SeekEnd:
		whence = io.SeekEnd
	default:
		return engine.ErrSeekFail
	}
	if _, err := s.Seek(offset, whence); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrSeekFail, err)
	}
	return nil
}

// WriteBody delivers response body bytes to the sink.
func (t *transfer) WriteBody(p []byte) int {
	if !t.active.Load() || len(p) == 0 {
		return 0
	}
	n, err := t.sink.Write(p)
	if err != nil {
		t.h.log.WithField("request", t.seq).WithError(err).Debug("evhttp: body sink failed")
		return 0
	}
	return n
}

// Progress forwards progress to the handle's progress callback.
func (t *transfer) Progress(dlTotal, dlNow, ulTotal, ulNow int64) bool {
	if !t.active.Load() {
		return false
	}
	if t.progress == nil {
		return true
	}
	return t.progress(dlTotal, dlNow, ulTotal, ulNow)
}

// A socket is a connected TCP socket with its OS descriptor.
type socket struct {
	net.Conn
	fd uintptr
}

func newSocket(conn net.Conn) (*socket, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return &socket{Conn: conn}, nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd uintptr
	if err = rc.Control(func(s uintptr) { fd = s }); err != nil {
		return nil, err
	}
	return &socket{Conn: conn, fd: fd}, nil
}

func (s *socket) FD() uintptr {
	return s.fd
}

// detachedCloser closes the sockets of detached handles.
type detachedCloser struct{}

func (detachedCloser) CloseSocket(s engine.Socket) error {
	return s.Close()
}
