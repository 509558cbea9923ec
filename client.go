// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/gogama/evhttp/request"
	"github.com/gogama/evhttp/retry"
	"github.com/gogama/evhttp/timeout"
)

var emptyHandlers = HandlerGroup{}

var (
	defaultOnce  sync.Once
	defaultCoord *Coordinator
	defaultErr   error
)

// DefaultCoordinator returns the coordinator used by a Client whose
// Coordinator field is nil. It is created with the zero Config on
// first use and is never closed.
func DefaultCoordinator() (*Coordinator, error) {
	defaultOnce.Do(func() {
		defaultCoord, defaultErr = NewCoordinator(Config{})
	})
	return defaultCoord, defaultErr
}

// A Client executes request plans with retry support on top of the
// handles of a Coordinator. Its zero value is a valid configuration.
//
// The zero value client uses DefaultCoordinator(), timeout.DefaultPolicy
// as the timeout policy, retry.DefaultPolicy as the retry policy, and
// an empty handler group.
//
// Client is safe for concurrent use by multiple goroutines. Each plan
// execution runs on its own handle, so concurrent executions share the
// coordinator's loop, connection pool and rate limits.
//
// On top of the transfer features of a Handle, Client adds the
// following:
//
// • Client buffers the entire response body into a []byte (returned as
// the Execution.Body field);
//
// • Client retries failed attempts using a customizable retry policy;
//
// • Client sets individual attempt timeouts using a customizable
// timeout policy;
//
// • Client invokes user-provided handler functions at designated
// plug-in points within the attempt/retry loop; and
//
// • Client implements the Executor interface.
type Client struct {
	// Coordinator runs the client's transfers.
	//
	// If Coordinator is nil, DefaultCoordinator() is used.
	Coordinator *Coordinator
	// RetryPolicy decides when to retry failed attempts and how long
	// to sleep after a failed attempt before retrying.
	//
	// If RetryPolicy is nil, retry.DefaultPolicy is used.
	RetryPolicy retry.Policy
	// TimeoutPolicy specifies how to set timeouts on individual
	// attempts.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a request plan.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Resolves, if not nil, overrides name resolution for every
	// attempt. Entries have the form HOST:PORT:ADDRESS[,ADDRESS...].
	// The list may be shared with other clients and handles.
	Resolves *StringList
}

// Do executes a request plan and returns the results, following the
// timeout and retry policy set on Client.
//
// The result returned is the result after the final attempt made
// during the plan execution, as determined by the retry policy.
//
// An error is returned if, after doing any retries mandated by the
// retry policy, the final attempt resulted in an error. A non-2XX
// status code in the final attempt does not result in an error.
//
// The returned Execution is never nil. If the returned error is nil,
// its Body is non-nil (although it may have zero length). Otherwise
// its Body is nil and its Err field references the returned error.
//
// Any returned error will be of type *url.Error. Cancelling the plan's
// context cancels the in-flight transfer, and the error then wraps the
// context's error.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	e := request.Execution{
		Plan: p,
	}

	coord := c.Coordinator
	if coord == nil {
		var err error
		if coord, err = DefaultCoordinator(); err != nil {
			e.Err = urlErrorWrap(p, err)
			return &e, e.Err
		}
	}
	h, err := coord.NewHandle()
	if err != nil {
		e.Err = urlErrorWrap(p, err)
		return &e, e.Err
	}
	defer func() {
		_ = h.Close()
	}()

	timeoutPolicy := c.TimeoutPolicy
	if timeoutPolicy == nil {
		timeoutPolicy = timeout.DefaultPolicy
	}

	retryPolicy := c.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = retry.DefaultPolicy
	}

	handlers := c.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}
	handlers.run(BeforeExecutionStart, &e)
	e.Start = time.Now()
	ctx := p.Context()
	d := timeoutPolicy.Timeout(&e)

RetryLoop:
	for {
		c.attempt(ctx, h, &e, handlers, d)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, &e)
		}
		if e.Throttled() {
			e.AttemptsThrottled++
			handlers.run(AfterAttemptThrottled, &e)
		}
		handlers.run(AfterAttempt, &e)
		ctxErr := ctx.Err()
		if ctxErr != nil {
			e.Err = urlErrorWrap(p, ctxErr)
			e.Body = nil
			if ctxErr == context.DeadlineExceeded {
				handlers.run(AfterPlanTimeout, &e)
			}
			break
		}
		if !retryPolicy.Decide(&e) {
			break
		}
		wait := retryPolicy.Wait(&e)
		d = timeoutPolicy.Timeout(&e)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err := ctx.Err()
			e.Err = urlErrorWrap(p, err)
			e.Body = nil
			if err == context.DeadlineExceeded {
				handlers.run(AfterPlanTimeout, &e)
			}
			break RetryLoop
		}
		e.Err = nil
		e.Body = nil
		e.Info = engine.Info{}
		e.Attempt++
	}

	e.End = time.Now()
	handlers.run(AfterExecutionEnd, &e)
	return &e, e.Err
}

// attempt runs one transfer of p on h and records its outcome in e.
func (c *Client) attempt(ctx context.Context, h *Handle, e *request.Execution, handlers *HandlerGroup, d time.Duration) {
	p := e.Plan
	e.RequestHeader = p.Header.Clone()
	if e.RequestHeader == nil {
		e.RequestHeader = make(http.Header)
	}
	handlers.run(BeforeAttempt, e)

	var body bytes.Buffer
	if err := c.configure(h, p, e.RequestHeader, d, &body); err != nil {
		e.Err = urlErrorWrap(p, err)
		return
	}
	done := make(chan error, 1)
	if err := h.Start(func(err error) { done <- err }); err != nil {
		e.Err = urlErrorWrap(p, err)
		return
	}
	e.RequestNumber = h.RequestNumber()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		h.Cancel()
		if err = <-done; errors.Is(err, ErrCanceled) {
			err = ctx.Err()
		}
	}
	e.Info = h.Info()
	e.Timings = h.Timings()
	if err != nil {
		e.Err = urlErrorWrap(p, err)
		return
	}
	e.Body = body.Bytes()
	if e.Body == nil {
		e.Body = []byte{}
	}
}

// configure stages one attempt of p on h.
func (c *Client) configure(h *Handle, p *request.Plan, header http.Header, d time.Duration, sink *bytes.Buffer) error {
	if err := h.Reset(); err != nil {
		return err
	}
	if err := h.SetURL(p.URL.String()); err != nil {
		return err
	}
	switch {
	case p.Method == http.MethodHead:
		if err := h.SetNoBody(true); err != nil {
			return err
		}
	case p.Method == http.MethodPost:
		if err := h.SetPostFields(p.Body); err != nil {
			return err
		}
	case len(p.Body) > 0:
		if err := h.SetPostFields(p.Body); err != nil {
			return err
		}
		fallthrough
	case p.Method != http.MethodGet:
		if err := h.SetCustomRequest(p.Method); err != nil {
			return err
		}
	}
	for _, line := range p.HeaderLines(header) {
		if err := h.AddHeaderLine(line); err != nil {
			return err
		}
	}
	if c.Resolves != nil {
		if err := h.SetResolves(c.Resolves); err != nil {
			return err
		}
	}
	if err := h.SetFollowLocation(true); err != nil {
		return err
	}
	if err := h.SetTimeout(d); err != nil {
		return err
	}
	return h.SetSink(sink)
}

// Get issues a GET to the specified URL, using the same policies
// followed by Do.
//
// To make a request plan with custom headers, use request.NewPlan and
// Client.Do.
func (c *Client) Get(url string) (*request.Execution, error) {
	return Get(c, url)
}

// Head issues a HEAD to the specified URL, using the same policies
// followed by Do.
func (c *Client) Head(url string) (*request.Execution, error) {
	return Head(c, url)
}

// Post issues a POST to the specified URL, using the same policies
// followed by Do.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.BodyBytes, namely: string; []byte;
// io.Reader; and io.ReadCloser.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(c, url, contentType, body)
}

// PostForm issues a POST to the specified URL, with data's keys and
// values URL-encoded as the request body.
//
// The Content-Type header is set to application/x-www-form-urlencoded.
// To set other headers, use request.NewPlan and Client.Do.
func (c *Client) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(c, url, data)
}

// CloseIdleConnections closes the idle pooled connections of the
// client's coordinator. It does not interrupt connections in use.
func (c *Client) CloseIdleConnections() {
	coord := c.Coordinator
	if coord == nil {
		var err error
		if coord, err = DefaultCoordinator(); err != nil {
			return
		}
	}
	coord.CloseIdleConnections()
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}

	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: p.URL.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
