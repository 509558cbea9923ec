// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

var errCleanedUp = errors.New("handle cleaned up")

type native struct{}

// Native returns the Engine implemented on package net/http.
//
// Each native Multi owns one http.Transport, which is the connection
// pool for the transfers added to it. Native handles performing
// transfers on their own share a process-wide pool which lives while
// any native handle exists.
func Native() Engine {
	return native{}
}

func (native) NewHandle() (Handle, error) {
	ref, err := Acquire()
	if err != nil {
		return nil, &AllocationError{Err: err}
	}
	return &nativeHandle{opts: defaultOptions(), ref: ref}, nil
}

func (native) NewMulti(cfg MultiConfig) (Multi, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &nativeMulti{transport: t, running: make(map[*nativeHandle]*running)}, nil
}

type nativeHandle struct {
	mu      sync.Mutex
	opts    options
	info    Info
	ref     *InitRef
	cleaned bool
}

func (h *nativeHandle) SetOption(opt Option, value interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.set(opt, value)
}

func (h *nativeHandle) Duplicate() (Handle, error) {
	ref, err := Acquire()
	if err != nil {
		return nil, &AllocationError{Err: err}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return &nativeHandle{opts: h.opts, ref: ref}, nil
}

func (h *nativeHandle) Reset() {
	h.mu.Lock()
	h.opts = defaultOptions()
	h.info = Info{}
	h.mu.Unlock()
}

func (h *nativeHandle) Perform(ctx context.Context) error {
	t, err := h.prepare()
	if err != nil {
		return err
	}
	rt := defaultTransport()
	if rt == nil {
		return transferError(ErrBadFunctionArgument, errCleanedUp)
	}
	return t.run(ctx, rt)
}

func (h *nativeHandle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := h.info
	info.Header = h.info.Header.Clone()
	return info
}

func (h *nativeHandle) Cleanup() {
	h.mu.Lock()
	h.cleaned = true
	h.mu.Unlock()
	h.ref.Release()
}

// prepare snapshots the options and builds the transfer they describe.
func (h *nativeHandle) prepare() (*transfer, error) {
	h.mu.Lock()
	o := h.opts
	cleaned := h.cleaned
	h.mu.Unlock()
	if cleaned {
		return nil, transferError(ErrBadFunctionArgument, errCleanedUp)
	}
	return newTransfer(h, o)
}

func (h *nativeHandle) setInfo(info Info) {
	h.mu.Lock()
	h.info = info
	h.mu.Unlock()
}

type running struct {
	cancel context.CancelFunc
}

type nativeMulti struct {
	transport *http.Transport
	mu      sync.Mutex
	running map[*nativeHandle]*running
	closed  bool
}

func (m *nativeMulti) Add(h Handle, done func(error)) error {
	if done == nil {
		panic("evhttp/engine: nil done function")
	}
	nh, ok := h.(*nativeHandle)
	if !ok {
		return transferError(ErrBadFunctionArgument, errors.New("foreign handle"))
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMultiClosed
	}
	if _, ok := m.running[nh]; ok {
		m.mu.Unlock()
		return ErrAddedAlready
	}
	t, err := nh.prepare()
	if err != nil {
		m.mu.Unlock()
		done(err)
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel}
	m.running[nh] = r
	m.mu.Unlock()

	go func() {
		defer cancel()
		err := t.run(ctx, m.transport)
		m.mu.Lock()
		if m.running[nh] == r {
			delete(m.running, nh)
		}
		m.mu.Unlock()
		done(err)
	}()
	return nil
}

func (m *nativeMulti) Remove(h Handle) error {
	nh, ok := h.(*nativeHandle)
	if !ok {
		return transferError(ErrBadFunctionArgument, errors.New("foreign handle"))
	}
	m.mu.Lock()
	r, ok := m.running[nh]
	delete(m.running, nh)
	m.mu.Unlock()
	if ok {
		r.cancel()
	}
	return nil
}

func (m *nativeMulti) CloseIdleConnections() {
	m.transport.CloseIdleConnections()
}

func (m *nativeMulti) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	rs := m.running
	m.running = make(map[*nativeHandle]*running)
	m.mu.Unlock()
	for _, r := range rs {
		r.cancel()
	}
	m.transport.CloseIdleConnections()
	return nil
}
