// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient sorts transfer errors into transient and
// non-transient categories, for retry deciders and for bucketing error
// counts in logs.
package transient
