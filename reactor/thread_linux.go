// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package reactor

import "golang.org/x/sys/unix"

// currentThread identifies the OS thread running the caller. Because
// the loop goroutine is locked to its thread, no other goroutine can
// observe the loop's thread ID.
func currentThread() int64 {
	return int64(unix.Gettid())
}
