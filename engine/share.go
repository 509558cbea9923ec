// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// A Share holds state shared by every handle it is set on. Currently
// the shared state is a cookie jar, which observes the public suffix
// list so that cookies cannot be set for a whole registry domain.
type Share struct {
	jar *cookiejar.Jar
}

// NewShare returns an empty Share.
func NewShare() (*Share, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Share{jar: jar}, nil
}

// Cookies returns the cookies the share would send to u.
func (s *Share) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// SetCookies stores cookies as if they had been received from u.
func (s *Share) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)
}
