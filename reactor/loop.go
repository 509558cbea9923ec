// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when work is submitted to a closed Loop.
var ErrClosed = errors.New("evhttp/reactor: loop closed")

// A ThreadControl schedules work onto a single loop thread.
//
// Every cross-goroutine entry point into the transfer coordinator goes
// through a ThreadControl. Loop is the only implementation provided.
type ThreadControl interface {
	// RunAsync enqueues task to run on the loop and returns without
	// waiting for it.
	RunAsync(task func()) error
	// RunSync runs task on the loop and returns after task returns. If
	// the caller is already on the loop, task runs inline.
	RunSync(task func()) error
	// InLoop reports whether the caller is running on the loop.
	InLoop() bool
}

// An Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// A Loop is a single-goroutine task reactor. It is safe for concurrent
// use by multiple goroutines.
type Loop struct {
	mu     sync.Mutex
	tasks  *queue.Queue // of func(), guarded by mu
	closed bool         // guarded by mu

	wake   chan struct{}
	done   chan struct{}
	thread atomic.Int64
	log    logrus.FieldLogger
}

// New starts a new Loop. The loop goroutine is running when New returns.
func New(opts ...Option) *Loop {
	l := &Loop{
		tasks: queue.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	started := make(chan struct{})
	go l.run(started)
	<-started
	return l
}

// RunAsync enqueues task for execution on the loop. Tasks submitted by
// the same goroutine run in submission order.
//
// RunAsync returns ErrClosed, and does not run task, if the loop has
// been closed.
func (l *Loop) RunAsync(task func()) error {
	if task == nil {
		panic("evhttp/reactor: nil task")
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	l.notify()
	return nil
}

// RunSync runs task on the loop and blocks until it has returned.
//
// If the caller is the loop itself, task is run inline. Otherwise the
// task is queued behind all previously submitted tasks. RunSync returns
// ErrClosed, and does not run task, if the loop has been closed.
func (l *Loop) RunSync(task func()) error {
	if l.InLoop() {
		task()
		return nil
	}
	done := make(chan struct{})
	err := l.RunAsync(func() {
		defer close(done)
		task()
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// InLoop reports whether the calling goroutine is the loop goroutine.
func (l *Loop) InLoop() bool {
	return currentThread() == l.thread.Load()
}

// Pending returns the number of queued tasks not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// Close stops the loop from accepting new tasks, waits for every task
// already queued to run, and then stops the loop goroutine. Close is
// idempotent.
//
// When called from a loop task, Close does not wait; the loop exits
// after the remaining queued tasks have run.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.notify()
	if !l.InLoop() {
		<-l.done
	}
	return nil
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(started chan<- struct{}) {
	runtime.LockOSThread()
	l.thread.Store(currentThread())
	close(started)
	defer func() {
		l.thread.Store(0)
		runtime.UnlockOSThread()
		close(l.done)
	}()

	for {
		task, closed := l.next()
		if task != nil {
			l.execute(task)
			continue
		}
		if closed {
			return
		}
		<-l.wake
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks.Length() == 0 {
		return nil, l.closed
	}
	return l.tasks.Remove().(func()), false
}

func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", fmt.Sprint(r)).Error("evhttp/reactor: recovered panic in loop task")
		}
	}()
	task()
}
