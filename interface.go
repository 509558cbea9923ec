// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"net/http"
	"net/url"

	"github.com/gogama/evhttp/request"
)

const formContentType = "application/x-www-form-urlencoded"

// A Doer runs a request plan to completion and reports the final
// execution. Client is the Doer backed by coordinator handles; other
// implementations, such as test doubles, should keep its contract: a
// non-nil Execution always, and an error only when the last attempt
// failed.
type Doer interface {
	Do(p *request.Plan) (*request.Execution, error)
}

// A Getter fetches a URL with GET.
type Getter interface {
	Get(url string) (*request.Execution, error)
}

// A Header fetches a URL with HEAD. The transfer asks the engine for no
// body, so the Execution's Body is empty.
type Header interface {
	Head(url string) (*request.Execution, error)
}

// A Poster sends a body to a URL with POST. The body is staged on the
// handle as post fields, so it must fit in memory; it may be nil or any
// value request.BodyBytes accepts.
type Poster interface {
	Post(url, contentType string, body interface{}) (*request.Execution, error)
}

// A FormPoster sends URL-encoded form values with POST.
type FormPoster interface {
	PostForm(url string, data url.Values) (*request.Execution, error)
}

// An IdleCloser drops pooled connections which are not carrying a
// transfer. For a Client these are the coordinator's pooled sockets,
// and each closes through the coordinator so it is unbound and counted.
type IdleCloser interface {
	CloseIdleConnections()
}

// An Executor offers every request shape. Inflate builds one from any
// Doer.
type Executor interface {
	Doer
	Getter
	Header
	Poster
	FormPoster
	IdleCloser
}

// Get runs a GET plan for url on d.
func Get(d Doer, url string) (*request.Execution, error) {
	return send(d, http.MethodGet, url, "", nil)
}

// Head runs a HEAD plan for url on d.
func Head(d Doer, url string) (*request.Execution, error) {
	return send(d, http.MethodHead, url, "", nil)
}

// Post runs a POST plan for url on d with the given body and
// Content-Type.
func Post(d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	return send(d, http.MethodPost, url, contentType, body)
}

// PostForm runs a POST plan for url on d whose body is data encoded as
// application/x-www-form-urlencoded. Plans needing other headers are
// built with request.NewPlan and run with d.Do.
func PostForm(d Doer, url string, data url.Values) (*request.Execution, error) {
	return send(d, http.MethodPost, url, formContentType, data.Encode())
}

func send(d Doer, method, url, contentType string, body interface{}) (*request.Execution, error) {
	p, err := request.NewPlan(method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		p.Header.Set("Content-Type", contentType)
	}
	return d.Do(p)
}

// Inflate returns d as an Executor. A d which already is one is
// returned unchanged; otherwise the missing methods are built on d.Do,
// and CloseIdleConnections does nothing unless d is an IdleCloser.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("evhttp: nil doer")
	}
	if e, ok := d.(Executor); ok {
		return e
	}
	return inflated{d}
}

type inflated struct {
	Doer
}

func (i inflated) Get(url string) (*request.Execution, error) {
	return Get(i.Doer, url)
}

func (i inflated) Head(url string) (*request.Execution, error) {
	return Head(i.Doer, url)
}

func (i inflated) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(i.Doer, url, contentType, body)
}

func (i inflated) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(i.Doer, url, data)
}

func (i inflated) CloseIdleConnections() {
	if ic, ok := i.Doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}
