// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout provides policies for the per-attempt timeouts of an
// evhttp.Client plan execution.
package timeout
