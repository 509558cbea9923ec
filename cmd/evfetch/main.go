// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command evfetch fetches URLs concurrently through one coordinator and
// prints the status, size and timing of each transfer.
//
// Usage:
//
//	evfetch get [flags] URL...
//	evfetch post [flags] --data BODY URL...
//
// Settings are read from evhttp.yaml in the working directory, or the
// file named by --config, with EVHTTP_ environment overrides. A .env
// file in the working directory is loaded first.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
