// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package ratelimit provides connection admission control for the
transfer coordinator.

A Limiter is consulted once for every prospective new socket, before
the socket is created. Budgets are partitioned by Scheme so that TLS
connections, which are far more expensive to establish, can be limited
separately from plaintext ones. Optional per-host limits apply on top
of the scheme limits:

	l := ratelimit.New(ratelimit.Config{
		HTTP:    []ratelimit.Limit{{MaxConnections: 500, Period: time.Second}},
		HTTPS:   []ratelimit.Limit{{MaxConnections: 100, Period: time.Second}},
		PerHost: []ratelimit.Limit{{MaxConnections: 20, Period: time.Second}},
	})
	if !l.MayAcquire(ratelimit.SchemeOf(u), u) {
		// Do not open the socket.
	}

Limits are sliding windows: a Limit of N connections per period P admits
a connection only if fewer than N connections were admitted in the
preceding P.
*/
package ratelimit
