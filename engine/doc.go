// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package engine defines the capability surface of an HTTP transfer engine
and provides a native implementation on package net/http.

An engine exposes two kinds of object. A Handle holds the options of one
logical transfer: its URL, method, headers, body and the callbacks
through which the engine opens and closes sockets, reads the request
body, writes the response body and reports progress. A Multi runs the
transfers of many handles concurrently over one connection pool.

Options are set with Handle.SetOption and are copied when a transfer
starts:

	h, err := engine.Native().NewHandle()
	if err != nil {
		return err
	}
	defer h.Cleanup()
	if err = h.SetOption(engine.OptURL, "https://example.com/"); err != nil {
		return err
	}
	if err = h.SetOption(engine.OptWriteFunction, w); err != nil {
		return err
	}
	err = h.Perform(ctx)

Transfer failures are reported as *TransferError values. Use errors.Is
with the package sentinels to test for a specific cause.
*/
package engine
