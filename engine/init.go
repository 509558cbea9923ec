// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"net/http"
	"sync"
)

var global struct {
	mu        sync.Mutex
	refs      int
	transport *http.Transport
}

// An InitRef is one reference to the process-wide engine state.
//
// The first Acquire initializes the state, which includes the
// connection pool used by handles performing transfers outside any
// Multi. The last Release tears it down.
type InitRef struct {
	once sync.Once
}

// Acquire takes a reference to the process-wide engine state,
// initializing it if this is the first reference.
func Acquire() (*InitRef, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.refs == 0 {
		t, err := newTransport(MultiConfig{})
		if err != nil {
			return nil, err
		}
		global.transport = t
	}
	global.refs++
	return &InitRef{}, nil
}

// Release drops the reference. Only the first call has any effect.
func (r *InitRef) Release() {
	r.once.Do(func() {
		global.mu.Lock()
		defer global.mu.Unlock()
		global.refs--
		if global.refs == 0 {
			global.transport.CloseIdleConnections()
			global.transport = nil
		}
	})
}

// References returns the number of outstanding references.
func References() int {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.refs
}

func defaultTransport() *http.Transport {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.transport
}
