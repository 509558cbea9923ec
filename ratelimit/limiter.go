// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import (
	"net/url"
	"strings"
	"time"
)

// A Scheme partitions admission budgets between plaintext and encrypted
// traffic.
type Scheme int

const (
	// HTTP identifies plaintext connections.
	HTTP Scheme = iota
	// HTTPS identifies TLS connections.
	HTTPS
)

// String returns "http" or "https".
func (s Scheme) String() string {
	if s == HTTPS {
		return "https"
	}
	return "http"
}

// SchemeOf classifies a URL as HTTPS if it begins with "https://",
// ignoring case, and as HTTP otherwise.
func SchemeOf(rawURL string) Scheme {
	const prefix = "https://"
	if len(rawURL) >= len(prefix) && strings.EqualFold(rawURL[:len(prefix)], prefix) {
		return HTTPS
	}
	return HTTP
}

// A Limit specifies the maximum number of new connections admitted
// within any sliding window of length Period.
//
// A Limit with a non-positive Period imposes no limit. A Limit with a
// positive Period and a non-positive MaxConnections admits nothing.
type Limit struct {
	MaxConnections int
	Period         time.Duration
}

// Config configures a Limiter.
type Config struct {
	// HTTP holds the limits applied to all plaintext connections.
	HTTP []Limit
	// HTTPS holds the limits applied to all TLS connections.
	HTTPS []Limit
	// PerHost holds limits applied separately to each distinct
	// scheme and host pair, in addition to the scheme limits.
	PerHost []Limit
	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// maxIdleHosts bounds the per-host table before idle entries are swept.
const maxIdleHosts = 1024

// A Limiter performs connection admission control.
//
// Limiter is not safe for concurrent use. It is designed to be owned by
// a single reactor loop, which serializes every call.
type Limiter struct {
	schemes [2][]*window
	perHost []Limit
	hosts   map[string][]*window
	now     func() time.Time
}

// New constructs a Limiter from the given configuration.
func New(cfg Config) *Limiter {
	l := &Limiter{
		perHost: copyLimits(cfg.PerHost),
		hosts:   make(map[string][]*window),
		now:     cfg.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.schemes[HTTP] = newWindows(cfg.HTTP)
	l.schemes[HTTPS] = newWindows(cfg.HTTPS)
	return l
}

// MayAcquire reports whether a new connection for rawURL may be created
// now under scheme s. An admitted connection is counted against every
// applicable window; a refused one is counted against none.
func (l *Limiter) MayAcquire(s Scheme, rawURL string) bool {
	now := l.now()
	scheme := l.schemes[s]
	host := l.hostWindows(s, rawURL)
	if !admits(scheme, now) || !admits(host, now) {
		return false
	}
	record(scheme, now)
	record(host, now)
	return true
}

// SetLimits replaces the limits for scheme s. Admission history under
// the previous limits is discarded.
func (l *Limiter) SetLimits(s Scheme, limits ...Limit) {
	l.schemes[s] = newWindows(limits)
}

func (l *Limiter) hostWindows(s Scheme, rawURL string) []*window {
	if len(l.perHost) == 0 {
		return nil
	}
	key := s.String() + "://" + hostOf(rawURL)
	if w, ok := l.hosts[key]; ok {
		return w
	}
	if len(l.hosts) >= maxIdleHosts {
		l.sweep()
	}
	w := newWindows(l.perHost)
	l.hosts[key] = w
	return w
}

func (l *Limiter) sweep() {
	now := l.now()
	for key, ws := range l.hosts {
		idle := true
		for _, w := range ws {
			w.expire(now)
			idle = idle && w.n == 0
		}
		if idle {
			delete(l.hosts, key)
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func admits(ws []*window, now time.Time) bool {
	for _, w := range ws {
		if !w.admits(now) {
			return false
		}
	}
	return true
}

func record(ws []*window, now time.Time) {
	for _, w := range ws {
		w.record(now)
	}
}

func copyLimits(limits []Limit) []Limit {
	c := make([]Limit, len(limits))
	copy(c, limits)
	return c
}
