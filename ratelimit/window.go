// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ratelimit

import "time"

// A window is a ring of admission times no older than period.
type window struct {
	period   time.Duration
	a        []time.Time
	start, n int
}

func newWindows(limits []Limit) []*window {
	ws := make([]*window, 0, len(limits))
	for _, l := range limits {
		if l.Period <= 0 {
			continue
		}
		c := l.MaxConnections
		if c < 0 {
			c = 0
		}
		ws = append(ws, &window{period: l.Period, a: make([]time.Time, c)})
	}
	return ws
}

// expire drops every admission at or before now-period.
func (w *window) expire(now time.Time) {
	cutoff := now.Add(-w.period)
	for w.n > 0 && !cutoff.Before(w.a[w.start]) {
		w.start = (w.start + 1) % len(w.a)
		w.n--
	}
}

func (w *window) admits(now time.Time) bool {
	w.expire(now)
	return w.n < len(w.a)
}

// record must only be called after admits returned true for now.
func (w *window) record(now time.Time) {
	w.a[(w.start+w.n)%len(w.a)] = now
	w.n++
}
