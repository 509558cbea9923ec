// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"github.com/gogama/evhttp/request"
)

// A HandlerGroup holds one handler chain per Event for a Client.
//
// Chains run on the goroutine calling Client.Do, never on the
// coordinator's loop, so a handler may block or call back into the
// coordinator. A group must not be modified while a Client uses it.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the chain for evt.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("evhttp: nil handler")
	}
	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}
	g.handlers[evt] = append(g.handlers[evt], h)
}

// Len returns the length of the chain for evt.
func (g *HandlerGroup) Len(evt Event) int {
	if int(evt) < len(g.handlers) {
		return len(g.handlers[evt])
	}
	return 0
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	if i := int(evt); i < len(g.handlers) {
		for _, h := range g.handlers[i] {
			h.Handle(evt, e)
		}
	}
}

// A Handler observes, and may edit, the execution of a plan when an
// event fires. Edits to e.RequestHeader in BeforeAttempt are staged on
// the attempt's handle.
type Handler interface {
	Handle(Event, *request.Execution)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
