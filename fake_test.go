// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogama/evhttp/engine"
)

var errAlloc = errors.New("fake allocation failure")

// fakeEngine is a scripted engine. Transfers added to its multi stay
// running until the test completes them.
type fakeEngine struct {
	failAlloc bool
	multi     *fakeMulti
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		multi: &fakeMulti{
			running: make(map[*fakeHandle]func(error)),
			added:   make(chan *fakeHandle, 1000),
		},
	}
}

func (e *fakeEngine) NewHandle() (engine.Handle, error) {
	if e.failAlloc {
		return nil, &engine.AllocationError{Err: errAlloc}
	}
	return newFakeHandle(), nil
}

func (e *fakeEngine) NewMulti(engine.MultiConfig) (engine.Multi, error) {
	return e.multi, nil
}

type fakeHandle struct {
	mu      sync.Mutex
	opts    map[engine.Option]interface{}
	info    engine.Info
	resets  int
	cleaned bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{opts: make(map[engine.Option]interface{})}
}

func (h *fakeHandle) SetOption(opt engine.Option, value interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if opt == engine.Option(-1) {
		return &engine.OptionError{Option: opt, Err: engine.ErrUnknownOption}
	}
	h.opts[opt] = value
	return nil
}

func (h *fakeHandle) option(opt engine.Option) interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts[opt]
}

func (h *fakeHandle) Duplicate() (engine.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := newFakeHandle()
	for k, v := range h.opts {
		d.opts[k] = v
	}
	return d, nil
}

func (h *fakeHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts = make(map[engine.Option]interface{})
	h.resets++
}

func (h *fakeHandle) resetCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets
}

func (h *fakeHandle) Perform(context.Context) error {
	return errors.New("fake handles do not perform")
}

func (h *fakeHandle) Info() engine.Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *fakeHandle) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleaned = true
}

// writeBody delivers p through the installed write function, as the
// engine would on receiving response data.
func (h *fakeHandle) writeBody(p []byte) int {
	w, _ := h.option(engine.OptWriteFunction).(engine.BodyWriter)
	if w == nil {
		return len(p)
	}
	return w.WriteBody(p)
}

// readBody pulls from the installed read function.
func (h *fakeHandle) readBody(p []byte) (int, error) {
	r := h.option(engine.OptReadFunction).(engine.BodyReader)
	return r.ReadBody(p)
}

type fakeMulti struct {
	mu      sync.Mutex
	running map[*fakeHandle]func(error)
	added   chan *fakeHandle
	adds    int
	removes int
	closed  bool
}

func (m *fakeMulti) Add(h engine.Handle, done func(error)) error {
	fh := h.(*fakeHandle)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return engine.ErrMultiClosed
	}
	if _, ok := m.running[fh]; ok {
		m.mu.Unlock()
		return engine.ErrAddedAlready
	}
	m.running[fh] = done
	m.adds++
	m.mu.Unlock()
	m.added <- fh
	return nil
}

func (m *fakeMulti) Remove(h engine.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[h.(*fakeHandle)]; ok {
		delete(m.running, h.(*fakeHandle))
		m.removes++
	}
	return nil
}

func (m *fakeMulti) CloseIdleConnections() {}

func (m *fakeMulti) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// complete ends the running transfer of h with err, calling the done
// function from the calling goroutine as an engine worker would.
func (m *fakeMulti) complete(h *fakeHandle, err error) bool {
	m.mu.Lock()
	done, ok := m.running[h]
	delete(m.running, h)
	m.mu.Unlock()
	if ok {
		done(err)
	}
	return ok
}

func (m *fakeMulti) isRunning(h *fakeHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[h]
	return ok
}

func (m *fakeMulti) counts() (adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds, m.removes
}

// waitAdded waits for the next transfer added to the multi.
func (m *fakeMulti) waitAdded(timeout time.Duration) *fakeHandle {
	select {
	case h := <-m.added:
		return h
	case <-time.After(timeout):
		return nil
	}
}

// recorder collects the outcomes delivered to completion functions.
type recorder struct {
	mu    sync.Mutex
	calls map[uint64][]error
	ch    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[uint64][]error), ch: make(chan struct{}, 1000)}
}

func (r *recorder) fn(seq uint64) CompletionFunc {
	return func(err error) {
		r.mu.Lock()
		r.calls[seq] = append(r.calls[seq], err)
		r.mu.Unlock()
		r.ch <- struct{}{}
	}
}

func (r *recorder) get(seq uint64) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.calls[seq]...)
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, errs := range r.calls {
		n += len(errs)
	}
	return n
}

// wait waits for n completion calls.
func (r *recorder) wait(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-deadline:
			return false
		}
	}
	return true
}
