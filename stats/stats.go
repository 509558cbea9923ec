// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package stats provides the increment-only counters a transfer
// coordinator reports into.
//
// Every method is safe for concurrent use; the counters are the only
// coordinator state which may be touched off the reactor loop.
package stats

import (
	"sync/atomic"
	"time"
)

// Statistics accumulates socket and loop-activity counters for one
// coordinator. The zero value is ready to use.
type Statistics struct {
	openSockets        atomic.Uint64
	closeSockets       atomic.Uint64
	rateLimitedSockets atomic.Uint64

	busyPeriods atomic.Uint64
	busyNanos   atomic.Int64
	busyNow     atomic.Int64
}

// A Snapshot is a point-in-time copy of Statistics.
type Snapshot struct {
	OpenSockets        uint64
	CloseSockets       uint64
	RateLimitedSockets uint64
	BusyPeriods        uint64
	Busy               time.Duration
	BusyNow            int64
}

// MarkOpenSocket counts a socket created for a transfer.
func (s *Statistics) MarkOpenSocket() {
	s.openSockets.Add(1)
}

// MarkCloseSocket counts a socket closed through the coordinator.
func (s *Statistics) MarkCloseSocket() {
	s.closeSockets.Add(1)
}

// MarkSocketRateLimited counts a socket refused by admission control.
func (s *Statistics) MarkSocketRateLimited() {
	s.rateLimitedSockets.Add(1)
}

// StartBusy opens a busy period. Call Stop on the returned marker when
// the bracketed work is done, typically with defer:
//
//	defer s.StartBusy().Stop()
func (s *Statistics) StartBusy() BusyMarker {
	s.busyNow.Add(1)
	return BusyMarker{s: s, start: time.Now()}
}

// Snapshot returns the current value of every counter.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		OpenSockets:        s.openSockets.Load(),
		CloseSockets:       s.closeSockets.Load(),
		RateLimitedSockets: s.rateLimitedSockets.Load(),
		BusyPeriods:        s.busyPeriods.Load(),
		Busy:               time.Duration(s.busyNanos.Load()),
		BusyNow:            s.busyNow.Load(),
	}
}

// A BusyMarker brackets one busy period started by Statistics.StartBusy.
type BusyMarker struct {
	s     *Statistics
	start time.Time
}

// Stop closes the busy period. Stop on the zero BusyMarker does nothing.
func (m BusyMarker) Stop() {
	if m.s == nil {
		return
	}
	m.s.busyNanos.Add(int64(time.Since(m.start)))
	m.s.busyPeriods.Add(1)
	m.s.busyNow.Add(-1)
}

// Timings records when one transfer reached each stage. A zero time
// means the stage has not been reached.
type Timings struct {
	Start      time.Time
	OpenSocket time.Time
	Complete   time.Time
}

// Total returns the time from start to completion, or zero if the
// transfer has not completed.
func (t Timings) Total() time.Duration {
	if t.Start.IsZero() || t.Complete.IsZero() {
		return 0
	}
	return t.Complete.Sub(t.Start)
}

// Connect returns the time from start to the first socket being
// opened, or zero if no socket was opened.
func (t Timings) Connect() time.Duration {
	if t.Start.IsZero() || t.OpenSocket.IsZero() {
		return 0
	}
	return t.OpenSocket.Sub(t.Start)
}
