// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package evhttp runs many concurrent HTTP transfers over one event loop
and one shared connection pool.

A Coordinator owns the loop, the pool, connection rate limits and
statistics. Handles bound to it stage a transfer and start it
asynchronously. The completion function runs exactly once, on the
loop:

	c, err := evhttp.NewCoordinator(evhttp.Config{})
	...
	h, err := c.NewHandle()
	...
	_ = h.SetURL("https://www.example.com")
	_ = h.SetSink(&buf)
	err = h.Start(func(err error) {
		log.Printf("done: %v, status %d", err, h.ResponseCode())
	})

Starting again on the same handle cancels the transfer in flight, and
Cancel or CancelRequest cancel transfers by sequence number. A
cancelled transfer completes with ErrCanceled. A transfer refused a
connection by the rate limiter completes with an error wrapping
ErrThrottled.

A detached handle, created with NewHandle, has no coordinator and runs
one blocking transfer at a time with Perform.

For request/response style use, a Client executes a request.Plan on a
coordinator with retry and timeout policies:

	client := &evhttp.Client{Coordinator: c}
	ex, err := client.Get("https://www.example.com")
	...
	ex, err := client.PostForm("http://example.com/form",
		url.Values{"key": {"Value"}, "id": {"123"}})

For control over the client's retry decisions and timing, create a
custom retry policy using components from package retry:

	waiter := retry.NewExpWaiter(250*time.Millisecond, 5*time.Second, rand.NewSource(1))
	client := &evhttp.Client{
		RetryPolicy: retry.NewPolicy(retry.DefaultDecider, waiter),
	}

To hook into the client's execution logic, install a handler into the
appropriate handler chain:

	handlers := &evhttp.HandlerGroup{}
	handlers.PushBack(evhttp.BeforeAttempt, evhttp.HandlerFunc(
		func(_ evhttp.Event, e *request.Execution) {
			e.RequestHeader.Set("X-Attempt", strconv.Itoa(e.Attempt))
		}))
	client := &evhttp.Client{Handlers: handlers}

Package evhttp also provides basic interfaces for each method of the
client (Doer, Getter, Header, Poster, FormPoster, and IdleCloser), a
combined interface (Executor), and utility functions for working with
a Doer (Inflate, Get, Head, Post, and PostForm).
*/
package evhttp
