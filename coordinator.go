// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"crypto/tls"
	"errors"
	"sync"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/gogama/evhttp/ratelimit"
	"github.com/gogama/evhttp/reactor"
	"github.com/gogama/evhttp/stats"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config configures a Coordinator. The zero value is a valid
// configuration.
type Config struct {
	// Engine runs the transfers. If nil, engine.Native() is used.
	Engine engine.Engine
	// Limits configures connection admission control. The zero value
	// admits every connection.
	Limits ratelimit.Config
	// MaxIdleConnsPerHost bounds the pooled connections kept per host.
	MaxIdleConnsPerHost int
	// IdleConnTimeout is how long a pooled connection may stay idle.
	IdleConnTimeout time.Duration
	// DisableKeepAlives stops connections being pooled, so that every
	// transfer opens a new socket.
	DisableKeepAlives bool
	// DisableHTTP2 turns off HTTP/2 negotiation.
	DisableHTTP2 bool
	// DisableProxy ignores the proxy environment variables.
	DisableProxy bool
	// TLSClientConfig is the TLS configuration for HTTPS transfers.
	TLSClientConfig *tls.Config
	// Logger receives the coordinator's log entries and is inherited by
	// its handles. If nil, the logrus standard logger is used.
	Logger logrus.FieldLogger
}

// A Coordinator multiplexes the transfers of many handles over one
// reactor loop and one engine connection pool.
//
// Every change to which handles are registered and which sockets are
// open happens on the loop. Coordinator methods may be called from any
// goroutine; those which read loop state marshal onto the loop and so
// must not be called while holding locks a loop task might need.
type Coordinator struct {
	engine  engine.Engine
	loop    *reactor.Loop
	multi   engine.Multi
	stats   stats.Statistics
	log     logrus.FieldLogger
	ref     *engine.InitRef
	closer  *socketCloser
	closing sync.Once

	// Owned by the loop.
	limiter *ratelimit.Limiter
	active  map[*Handle]*transfer
	sockets map[uintptr]socketRecord
	closed  bool
}

// A socketRecord tracks one open socket. The owner is the handle that
// opened it, which the socket may outlive once it is pooled.
type socketRecord struct {
	owner  uuid.UUID
	opened time.Time
}

// NewCoordinator starts a coordinator and its loop.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	eng := cfg.Engine
	if eng == nil {
		eng = engine.Native()
	}
	ref, err := engine.Acquire()
	if err != nil {
		return nil, &AllocationError{Err: err}
	}
	multi, err := eng.NewMulti(engine.MultiConfig{
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableHTTP2:        cfg.DisableHTTP2,
		DisableProxy:        cfg.DisableProxy,
		TLSClientConfig:     cfg.TLSClientConfig,
	})
	if err != nil {
		ref.Release()
		return nil, &AllocationError{Err: err}
	}
	c := &Coordinator{
		engine:  eng,
		loop:    reactor.New(reactor.WithLogger(log)),
		multi:   multi,
		log:     log,
		ref:     ref,
		limiter: ratelimit.New(cfg.Limits),
		active:  make(map[*Handle]*transfer),
		sockets: make(map[uintptr]socketRecord),
	}
	c.closer = &socketCloser{c: c}
	return c, nil
}

// NewHandle creates a handle bound to c.
func (c *Coordinator) NewHandle() (*Handle, error) {
	easy, err := c.engine.NewHandle()
	if err != nil {
		return nil, err
	}
	return newHandle(easy, c, c.log), nil
}

// ThreadControl returns the loop every coordinator mutation runs on.
func (c *Coordinator) ThreadControl() reactor.ThreadControl {
	return c.loop
}

// Statistics returns the coordinator's counters.
func (c *Coordinator) Statistics() *stats.Statistics {
	return &c.stats
}

// Active returns the number of registered transfers.
func (c *Coordinator) Active() int {
	var n int
	_ = c.onLoopSync(func() { n = len(c.active) })
	return n
}

// Sockets returns the number of open sockets bound to c.
func (c *Coordinator) Sockets() int {
	var n int
	_ = c.onLoopSync(func() { n = len(c.sockets) })
	return n
}

// MayAcquireConnectionHTTP asks the rate limiter whether a new
// plaintext connection for rawURL may be opened now. An admitted
// connection is counted against the limits.
func (c *Coordinator) MayAcquireConnectionHTTP(rawURL string) bool {
	return c.mayAcquireScheme(ratelimit.HTTP, rawURL)
}

// MayAcquireConnectionHTTPS is the TLS counterpart of
// MayAcquireConnectionHTTP.
func (c *Coordinator) MayAcquireConnectionHTTPS(rawURL string) bool {
	return c.mayAcquireScheme(ratelimit.HTTPS, rawURL)
}

// SetRateLimits replaces the connection limits for scheme s.
func (c *Coordinator) SetRateLimits(s ratelimit.Scheme, limits ...ratelimit.Limit) error {
	return c.onLoopSync(func() { c.limiter.SetLimits(s, limits...) })
}

// CloseIdleConnections closes pooled connections not in use.
func (c *Coordinator) CloseIdleConnections() {
	c.multi.CloseIdleConnections()
}

// Close cancels every registered transfer, closes pooled connections
// and stops the loop. Transfers started but not yet running complete
// with an error wrapping ErrClosed. Close is idempotent.
func (c *Coordinator) Close() error {
	var err error
	c.closing.Do(func() {
		err = c.onLoopSync(func() {
			c.closed = true
			for h, t := range c.active {
				h.cancel(t.seq)
			}
		})
		if mErr := c.multi.Close(); err == nil {
			err = mErr
		}
		if n := c.loop.Pending(); n > 0 {
			c.log.WithField("pending", n).Debug("evhttp: draining loop")
		}
		_ = c.loop.Close()
		c.ref.Release()
		c.log.WithField("stats", c.stats.Snapshot()).Debug("evhttp: coordinator closed")
	})
	return err
}

func (c *Coordinator) mayAcquireScheme(s ratelimit.Scheme, rawURL string) bool {
	var ok bool
	if err := c.onLoopSync(func() { ok = c.limiter.MayAcquire(s, rawURL) }); err != nil {
		return false
	}
	return ok
}

// mayAcquire runs on the loop.
func (c *Coordinator) mayAcquire(rawURL string) bool {
	return c.limiter.MayAcquire(ratelimit.SchemeOf(rawURL), rawURL)
}

// register runs on the loop. The engine may complete the transfer
// before register returns.
func (c *Coordinator) register(h *Handle, t *transfer) {
	c.active[h] = t
	done := func(err error) {
		c.onLoop(func() { h.finish(t, err) })
	}
	if err := c.multi.Add(h.easy, done); err != nil {
		h.finish(t, err)
	}
}

// unregister runs on the loop.
func (c *Coordinator) unregister(h *Handle) {
	delete(c.active, h)
	if err := c.multi.Remove(h.easy); err != nil {
		h.log.WithError(err).Error("evhttp: engine remove failed")
	}
}

// bindSocket runs on the loop.
func (c *Coordinator) bindSocket(h *Handle, fd uintptr) {
	c.sockets[fd] = socketRecord{owner: h.id, opened: time.Now()}
}

// unbindSocket runs on the loop. Unknown descriptors are ignored, since
// a pooled socket may be closed after its record is gone.
func (c *Coordinator) unbindSocket(fd uintptr) {
	r, ok := c.sockets[fd]
	if !ok {
		return
	}
	delete(c.sockets, fd)
	c.log.WithFields(logrus.Fields{
		"owner": r.owner.String(),
		"open":  time.Since(r.opened),
	}).Trace("evhttp: socket closed")
}

// onLoop runs task on the loop, inline if already there. Tasks
// arriving after the loop has closed are dropped.
func (c *Coordinator) onLoop(task func()) {
	if c.loop.InLoop() {
		task()
		return
	}
	if err := c.loop.RunAsync(task); err != nil {
		c.log.WithError(err).Debug("evhttp: dropped task after close")
	}
}

func (c *Coordinator) onLoopSync(task func()) error {
	return c.loop.RunSync(task)
}

// A socketCloser is the close-socket callback of every handle bound to
// a coordinator. It belongs to the coordinator rather than the handle
// because pooled sockets outlive the handles which opened them.
type socketCloser struct {
	c *Coordinator
}

func (sc *socketCloser) CloseSocket(s engine.Socket) error {
	c := sc.c
	fd := s.FD()
	if err := c.loop.RunSync(func() { c.unbindSocket(fd) }); err != nil && !errors.Is(err, reactor.ErrClosed) {
		c.log.WithError(err).Error("evhttp: socket unbind failed")
	}
	err := s.Close()
	if err != nil {
		c.log.WithError(err).Error("evhttp: socket close failed")
	}
	c.stats.MarkCloseSocket()
	return err
}
