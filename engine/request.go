// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const formURLEncoded = "application/x-www-form-urlencoded"

// newRequest builds the request described by o. The request has no
// context; one is attached when the transfer runs.
func newRequest(t *transfer, o *options) (*http.Request, error) {
	u, err := parseURL(o.url)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	switch {
	case o.noBody:
		method = http.MethodHead
	case o.post || o.postFields != nil || o.form != nil:
		method = http.MethodPost
	case o.upload:
		method = http.MethodPut
	}
	if o.customRequest != "" {
		if !validMethod(o.customRequest) {
			return nil, transferError(ErrBadFunctionArgument, fmt.Errorf("invalid method %q", o.customRequest))
		}
		method = o.customRequest
	}

	req := &http.Request{
		Method:     method,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}
	if err = setBody(t, o, req); err != nil {
		return nil, err
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}
	replaced := make(map[string]bool)
	for _, line := range o.headers.Items() {
		if err = applyHeaderLine(req, line, replaced); err != nil {
			return nil, transferError(ErrBadFunctionArgument, err)
		}
	}
	return req, nil
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, transferError(ErrURLMalformat, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, transferError(ErrURLMalformat, fmt.Errorf("no scheme or host in %q", raw))
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, nil
	default:
		return nil, transferError(ErrUnsupportedProtocol, fmt.Errorf("scheme %q", u.Scheme))
	}
}

func validMethod(method string) bool {
	for i := 0; i < len(method); i++ {
		if !httpguts.IsTokenRune(rune(method[i])) {
			return false
		}
	}
	return len(method) > 0
}

func setBody(t *transfer, o *options, req *http.Request) error {
	switch {
	case o.noBody:
		return nil
	case o.form != nil:
		b, contentType, err := o.form.encode()
		if err != nil {
			return transferError(ErrBadFunctionArgument, err)
		}
		setStaticBody(req, b)
		req.Header.Set("Content-Type", contentType)
	case o.postFields != nil:
		b := o.postFields
		if o.postFieldSize >= 0 && o.postFieldSize < int64(len(b)) {
			b = b[:o.postFieldSize]
		}
		setStaticBody(req, b)
		req.Header.Set("Content-Type", formURLEncoded)
	case o.post || o.upload:
		size := o.inFileSize
		if o.post {
			req.Header.Set("Content-Type", formURLEncoded)
			size = o.postFieldSize
		}
		if o.reader == nil {
			setStaticBody(req, nil)
			return nil
		}
		req.Body = &bodyReader{t: t, r: o.reader}
		req.ContentLength = size
		if size == 0 {
			req.Body = http.NoBody
		}
		if o.seeker != nil {
			req.GetBody = func() (io.ReadCloser, error) {
				if err := o.seeker.SeekBody(0, SeekSet); err != nil {
					t.fail(transferError(ErrSeekFail, err))
					return nil, err
				}
				return &bodyReader{t: t, r: o.reader}, nil
			}
		}
	}
	return nil
}

func setStaticBody(req *http.Request, b []byte) {
	req.ContentLength = int64(len(b))
	if len(b) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
}

// applyHeaderLine applies one curl-style header line:
//
//	"Name: value"  sends the header
//	"Name;"        sends the header with an empty value
//	"Name:"        suppresses a header the engine would send by default
func applyHeaderLine(req *http.Request, line string, replaced map[string]bool) error {
	var name, value string
	empty := false
	if i := strings.IndexByte(line, ':'); i >= 0 {
		name, value = strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	} else if strings.HasSuffix(line, ";") {
		name, empty = strings.TrimSpace(line[:len(line)-1]), true
	} else {
		return fmt.Errorf("malformed header line %q", line)
	}
	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("invalid header line %q", line)
	}
	key := http.CanonicalHeaderKey(name)
	switch {
	case value == "" && !empty:
		if key == "User-Agent" {
			// A present but empty User-Agent stops net/http sending its own.
			req.Header[key] = nil
		} else {
			req.Header.Del(key)
		}
	case key == "Host":
		req.Host = value
	default:
		// The first line for a header replaces any value the engine set.
		if !replaced[key] {
			replaced[key] = true
			req.Header.Del(key)
		}
		req.Header[key] = append(req.Header[key], value)
	}
	return nil
}

// parseResolves turns "host:port:addr[,addr...]" entries into a map
// from "host:port" to replacement addresses. Entries beginning with
// "-" and malformed entries are ignored.
func parseResolves(entries []string) map[string][]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string][]string)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.HasPrefix(e, "-") {
			continue
		}
		if strings.HasPrefix(e, "+") {
			e = e[1:]
		}
		parts := strings.SplitN(e, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			continue
		}
		if _, err := strconv.ParseUint(parts[1], 10, 16); err != nil {
			continue
		}
		var addrs []string
		for _, a := range strings.Split(parts[2], ",") {
			a = strings.Trim(strings.TrimSpace(a), "[]")
			if a != "" {
				addrs = append(addrs, net.JoinHostPort(a, parts[1]))
			}
		}
		if len(addrs) > 0 {
			m[net.JoinHostPort(strings.ToLower(parts[0]), parts[1])] = addrs
		}
	}
	return m
}

// aliased reports whether resp matches one of the HTTP 200 aliases,
// either by status code or by the leading part of its status line.
func aliased(aliases []string, resp *http.Response) bool {
	code := strconv.Itoa(resp.StatusCode)
	line := resp.Proto + " " + resp.Status
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == code || a == resp.Status || strings.HasPrefix(line, a) {
			return true
		}
	}
	return false
}
