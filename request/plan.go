// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	urlpkg "net/url"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const nilCtxMsg = "evhttp/request: nil context"

// A Plan describes one logical HTTP request which a client may send
// several times, for example when an attempt fails and is retried.
//
// A Plan is turned into handle options before every attempt, so a
// plan body is always fully buffered and a plan may be executed any
// number of times.
type Plan struct {
	// Method is the HTTP method. An empty string means GET.
	Method string

	// URL is the URL to request.
	URL *urlpkg.URL

	// Header holds the request header fields. A field with an empty
	// value is sent with an empty value rather than suppressed.
	Header http.Header

	// Body is the complete request body. A nil or empty body sends no
	// body.
	Body []byte

	// Host optionally overrides the Host header. If empty or equal to
	// URL.Host, the host from URL is sent.
	Host string

	ctx context.Context
}

// NewPlan returns a plan using the background context. See
// NewPlanWithContext.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a plan for method and url whose execution
// is bounded by ctx.
//
// The body may be nil, a string, a []byte, an io.Reader or an
// io.ReadCloser; see BodyBytes.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("evhttp/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = strings.TrimSuffix(u.Host, ":")
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
		ctx:    ctx,
	}, nil
}

// Context returns the plan's context, or the background context if
// none was set. Cancelling the context cancels the plan's in-flight
// transfer and ends its execution.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p using ctx, which must not
// be nil.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// AddCookie adds a cookie to the plan's single Cookie header. Only the
// cookie's name and value are used.
func (p *Plan) AddCookie(c *http.Cookie) {
	s := (&http.Cookie{Name: c.Name, Value: c.Value}).String()
	if h := p.Header.Get("Cookie"); h != "" {
		s = h + "; " + s
	}
	p.Header.Set("Cookie", s)
}

// SetBasicAuth sets the Authorization header for HTTP Basic
// Authentication. The credentials are not encrypted.
func (p *Plan) SetBasicAuth(username, password string) {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	p.Header.Set("Authorization", "Basic "+creds)
}

// HeaderLines renders header as the raw header lines of a handle, in
// a stable order. Empty values render as "Name;" so that they are sent
// rather than suppressed. A Host override is rendered as a Host line.
//
// The header is usually the plan's own Header, or a modified copy of
// it made for one attempt.
func (p *Plan) HeaderLines(header http.Header) []string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		for _, v := range header[k] {
			if v == "" {
				lines = append(lines, k+";")
			} else {
				lines = append(lines, k+": "+v)
			}
		}
	}
	if p.Host != "" && p.URL != nil && p.Host != p.URL.Host {
		lines = append(lines, "Host: "+p.Host)
	}
	return lines
}

func validMethod(method string) bool {
	return strings.IndexFunc(method, func(r rune) bool {
		return !httpguts.IsTokenRune(r)
	}) == -1
}
