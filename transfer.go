// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"context"
	"fmt"

	"github.com/gogama/evhttp/engine"
)

// Start begins a transfer and returns without waiting for it. The
// completion function fn is called exactly once, on the coordinator's
// loop, with the outcome: nil on success, ErrCanceled if the transfer
// was cancelled, or the engine error which ended it.
//
// Starting a transfer cancels any earlier transfer on the same handle
// which has not completed. Start returns ErrDetached, and does not call
// fn, if the handle is not bound to a coordinator. It returns ErrClosed
// after the handle's Close, and an error wrapping ErrClosed if the
// coordinator is closed.
func (h *Handle) Start(fn CompletionFunc) error {
	if fn == nil {
		panic("evhttp: nil completion function")
	}
	if h.coord == nil {
		return ErrDetached
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	seq := h.counter.Add(1)
	h.log.WithField("request", seq).Trace("evhttp: start")
	err := h.coord.loop.RunAsync(func() {
		h.perform(seq, fn)
	})
	if err != nil {
		return fmt.Errorf("evhttp: start: %w", ErrClosed)
	}
	return nil
}

// Cancel cancels the latest transfer started on the handle, and every
// earlier one. It is equivalent to CancelRequest(h.RequestNumber()).
func (h *Handle) Cancel() {
	h.CancelRequest(h.counter.Load())
}

// CancelRequest cancels every transfer whose sequence number is n or
// lower, including transfers started but not yet running on the loop.
// A cancelled transfer's completion function receives ErrCanceled.
//
// CancelRequest blocks until the loop has processed the cancellation.
// On a detached handle it aborts any Perform in progress.
func (h *Handle) CancelRequest(n uint64) {
	if h.coord == nil {
		h.mu.Lock()
		stop := h.stopPerform
		h.mu.Unlock()
		if stop != nil {
			stop()
		}
		return
	}
	if err := h.coord.loop.RunSync(func() { h.cancel(n) }); err != nil {
		h.log.WithError(err).Debug("evhttp: cancel after coordinator closed")
	}
}

// Reset restores the handle's URL, body, form, header, alias and
// resolve lists, share, method and timings to their defaults. Lists
// shared with other handles are released, not cleared.
func (h *Handle) Reset() error {
	h.log.Trace("evhttp: reset")
	h.mu.Lock()
	h.url = ""
	h.source = nil
	h.sink = nil
	h.progress = nil
	h.form = nil
	h.postFields = nil
	h.headers = nil
	h.aliases = nil
	h.resolves = nil
	h.share = nil
	h.mu.Unlock()

	h.timingsMu.Lock()
	h.timings = Timings{}
	h.timingsMu.Unlock()

	resets := []struct {
		opt   engine.Option
		value interface{}
	}{
		{engine.OptURL, ""},
		{engine.OptPostFields, nil},
		{engine.OptPostFieldSize, int64(-1)},
		{engine.OptHTTPPost, nil},
		{engine.OptHTTPHeader, nil},
		{engine.OptHTTP200Aliases, nil},
		{engine.OptResolve, nil},
		{engine.OptShare, nil},
		{engine.OptCustomRequest, ""},
		{engine.OptNoBody, false},
		{engine.OptPost, false},
		{engine.OptUpload, false},
		{engine.OptNoProgress, true},
	}
	for _, r := range resets {
		if err := h.easy.SetOption(r.opt, r.value); err != nil {
			return err
		}
	}

	if h.coord != nil {
		return h.coord.loop.RunSync(func() {
			if h.current != nil {
				h.easy.Reset()
			}
		})
	}
	return nil
}

// Perform runs one transfer on a detached handle and blocks until it
// completes or ctx is done. Perform returns ErrBound on a handle bound
// to a coordinator.
func (h *Handle) Perform(ctx context.Context) error {
	if h.coord != nil {
		return ErrBound
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.stopPerform = cancel
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.stopPerform = nil
		h.mu.Unlock()
	}()

	seq := h.counter.Add(1)
	t := h.snapshot(seq, nil)
	h.markStart()
	defer t.complete()
	if err := h.install(t, detachedCloser{}); err != nil {
		return err
	}
	return h.easy.Perform(ctx)
}

// Close cancels any transfer in flight and releases the engine handle.
// The handle must not be used after Close.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	h.Cancel()
	h.easy.Cleanup()
	return nil
}

// perform runs on the loop.
func (h *Handle) perform(seq uint64, fn CompletionFunc) {
	log := h.log.WithField("request", seq)
	if seq <= h.cancelledMax {
		log.Debug("evhttp: already cancelled")
		fn(ErrCanceled)
		return
	}
	c := h.coord
	if c.closed {
		fn(fmt.Errorf("evhttp: start: %w", ErrClosed))
		return
	}
	log.Trace("evhttp: perform")
	h.markStart()
	defer c.stats.StartBusy().Stop()

	h.cancel(seq - 1)

	t := h.snapshot(seq, fn)
	h.current = t
	if err := h.install(t, c.closer); err != nil {
		h.finish(t, err)
		return
	}
	// Registration may complete the transfer before it returns.
	c.register(h, t)
}

// cancel runs on the loop.
func (h *Handle) cancel(n uint64) {
	if h.cancelledMax < n {
		h.cancelledMax = n
	}
	t := h.current
	if t == nil || t.seq > n {
		return
	}
	defer h.coord.stats.StartBusy().Stop()
	h.log.WithField("request", t.seq).Trace("evhttp: cancel")
	h.finish(t, ErrCanceled)
}

// finish runs on the loop. Outcomes for transfers which are no longer
// current are dropped.
func (h *Handle) finish(t *transfer, err error) {
	if h.current != t {
		return
	}
	h.current = nil
	h.coord.unregister(h)
	t.complete()
	h.log.WithField("request", t.seq).WithError(err).Trace("evhttp: complete")
	t.take()(err)
}

func (h *Handle) snapshot(seq uint64, fn CompletionFunc) *transfer {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := &transfer{
		h:        h,
		seq:      seq,
		handler:  fn,
		url:      h.url,
		source:   h.source,
		sink:     h.sink,
		progress: h.progress,
	}
	t.active.Store(true)
	return t
}

// install points the engine handle's callbacks at t.
func (h *Handle) install(t *transfer, closer engine.SocketCloser) error {
	var writer engine.BodyWriter
	if t.sink != nil {
		writer = t
	}
	callbacks := []struct {
		opt   engine.Option
		value interface{}
	}{
		{engine.OptOpenSocketFunction, t},
		{engine.OptCloseSocketFunction, closer},
		{engine.OptReadFunction, t},
		{engine.OptSeekFunction, t},
		{engine.OptWriteFunction, writer},
		{engine.OptXferInfoFunction, t},
	}
	for _, cb := range callbacks {
		if err := h.easy.SetOption(cb.opt, cb.value); err != nil {
			return err
		}
	}
	return nil
}
