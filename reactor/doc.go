// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package reactor provides the single-threaded event loop on which every
transfer lifecycle mutation in package evhttp happens.

A Loop owns one goroutine which is locked to its OS thread for the life
of the loop. Work reaches the loop in one of two ways:

• RunAsync enqueues a task and returns immediately. Tasks run in FIFO
  order of submission.

• RunSync enqueues a task and blocks the caller until the task has run.
  When called from the loop itself, RunSync runs the task inline so that
  loop code can safely call APIs which marshal onto the loop.

Tasks must not block. A task that needs to wait for I/O must hand the
wait off to another goroutine and resubmit its continuation with
RunAsync.
*/
package reactor
