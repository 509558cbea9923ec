// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/stretchr/testify/assert"
)

func TestExecution_Response(t *testing.T) {
	e := &Execution{}
	assert.Equal(t, 0, e.StatusCode())
	assert.Nil(t, e.Header())
	assert.Empty(t, e.Header().Get("Foo"))
	assert.Equal(t, "", e.EffectiveURL())

	h := http.Header{"Foo": {"bar"}}
	e.Info = engine.Info{ResponseCode: 503, Header: h, EffectiveURL: "http://example.com/b"}
	assert.Equal(t, 503, e.StatusCode())
	assert.Equal(t, h, e.Header())
	assert.Equal(t, "http://example.com/b", e.EffectiveURL())
}

func TestExecution_TimeMethods(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		e := &Execution{}
		assert.False(t, e.Started())
		assert.False(t, e.Ended())
		assert.Equal(t, time.Duration(0), e.Duration())
	})
	t.Run("running", func(t *testing.T) {
		e := &Execution{Start: time.Now().Add(-time.Second)}
		assert.True(t, e.Started())
		assert.False(t, e.Ended())
		assert.GreaterOrEqual(t, e.Duration(), time.Second)
	})
	t.Run("ended", func(t *testing.T) {
		start := time.Now()
		e := &Execution{Start: start, End: start.Add(3 * time.Millisecond)}
		assert.True(t, e.Ended())
		assert.Equal(t, 3*time.Millisecond, e.Duration())
	})
}

func TestExecution_Categories(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		timeout   bool
		throttled bool
	}{
		{name: "nil"},
		{name: "plain", err: errors.New("foo")},
		{name: "errno timeout", err: &url.Error{Err: syscall.ETIMEDOUT}, timeout: true},
		{name: "engine timeout", err: &url.Error{Err: &engine.TransferError{Code: engine.ErrOperationTimedOut}}, timeout: true},
		{name: "throttled", err: &url.Error{Err: &engine.TransferError{Code: engine.ErrThrottled}}, throttled: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			e := &Execution{Err: testCase.err}
			assert.Equal(t, testCase.timeout, e.Timeout())
			assert.Equal(t, testCase.throttled, e.Throttled())
		})
	}
}

func TestExecution_Value(t *testing.T) {
	e := &Execution{}
	assert.Nil(t, e.Value(fooKey{}))
	e.SetValue(fooKey{}, "bar")
	e.SetValue(hamKey{}, "eggs")
	assert.Equal(t, "bar", e.Value(fooKey{}))
	assert.Equal(t, "eggs", e.Value(hamKey{}))
	e.SetValue(fooKey{}, "baz")
	assert.Equal(t, "baz", e.Value(fooKey{}))
	assert.Equal(t, "eggs", e.Value(hamKey{}))
}

type fooKey struct{}

type hamKey struct{}
