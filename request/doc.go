// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request holds the two types an evhttp.Client works with: Plan,
which describes a logical HTTP request, and Execution, which records
the attempts made to carry it out.

A Plan is built once and may be attempted many times:

	p, err := request.NewPlan("POST", "https://example.com/upload", body)
	...
	e, err := client.Do(p)

A Plan's context bounds the whole execution, including retry waits.
Individual attempts are bounded separately by the client's timeout
policy, so an attempt can fail either by its own timeout, which may be
retried, or by the plan's deadline, which ends the execution.

Executions are created by the client and handed to timeout policies,
retry policies and event handlers while the plan runs.
*/
package request
