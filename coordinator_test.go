// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package evhttp

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gogama/evhttp/engine"
	"github.com/gogama/evhttp/ratelimit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func newFakeCoordinator(t *testing.T) (*Coordinator, *fakeEngine) {
	e := newFakeEngine()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.TraceLevel)
	c, err := NewCoordinator(Config{Engine: e, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, e
}

// drain waits until every task queued on the loop so far has run.
func drain(t *testing.T, c *Coordinator) {
	require.NoError(t, c.loop.RunSync(func() {}))
}

func TestCoordinator(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		var sink bytes.Buffer
		require.NoError(t, h.SetURL("http://example.com/"))
		require.NoError(t, h.SetSink(&sink))
		r := newRecorder()

		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		assert.Equal(t, "http://example.com/", fh.option(engine.OptURL))
		assert.Equal(t, 1, c.Active())
		assert.Equal(t, 2, fh.writeBody([]byte("OK")))
		require.True(t, e.multi.complete(fh, nil))

		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{nil}, r.get(1))
		assert.Equal(t, "OK", sink.String())
		assert.Equal(t, 0, c.Active())
		assert.Equal(t, 0, fh.writeBody([]byte("late")))
		assert.Equal(t, "OK", sink.String())
		timings := h.Timings()
		assert.False(t, timings.Start.IsZero())
		assert.False(t, timings.Complete.IsZero())
		assert.Equal(t, uint64(0), c.Statistics().Snapshot().OpenSockets)
	})
	t.Run("engine error", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		failure := &engine.TransferError{Code: engine.ErrCouldntConnect}
		require.True(t, e.multi.complete(fh, failure))
		require.True(t, r.wait(1, waitFor))
		errs := r.get(1)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], engine.ErrCouldntConnect)
	})
	t.Run("cancel before I/O", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		h.Cancel()
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(1))
		assert.Equal(t, 0, c.Active())
		assert.Equal(t, uint64(0), c.Statistics().Snapshot().OpenSockets)

		// A late engine outcome is dropped.
		select {
		case fh := <-e.multi.added:
			e.multi.complete(fh, nil)
		default:
		}
		drain(t, c)
		assert.Equal(t, 1, r.total())
	})
	t.Run("cancel before perform", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		gate := make(chan struct{})
		require.NoError(t, c.loop.RunAsync(func() {
			<-gate
			h.CancelRequest(1)
		}))
		require.NoError(t, h.Start(r.fn(1)))
		close(gate)
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(1))
		adds, _ := e.multi.counts()
		assert.Equal(t, 0, adds)
		assert.Equal(t, 0, c.Active())
	})
	t.Run("second start cancels first", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		require.NotNil(t, e.multi.waitAdded(waitFor))
		require.NoError(t, h.Start(r.fn(2)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(1))

		require.True(t, e.multi.complete(fh, nil))
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{nil}, r.get(2))
		assert.Equal(t, uint64(2), h.RequestNumber())
	})
	t.Run("cancel request spares later", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		require.NoError(t, h.Start(r.fn(2)))
		require.True(t, r.wait(1, waitFor))
		h.CancelRequest(1)
		drain(t, c)
		assert.Equal(t, []error{ErrCanceled}, r.get(1))
		assert.Empty(t, r.get(2))
		assert.Equal(t, 1, c.Active())

		e.multi.waitAdded(waitFor)
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		require.True(t, e.multi.isRunning(fh))
		h.CancelRequest(2)
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(2))
		assert.False(t, e.multi.isRunning(fh))
	})
	t.Run("exactly once", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		rnd := rand.New(rand.NewSource(42))
		handles := make([]*Handle, 3)
		for i := range handles {
			h, err := c.NewHandle()
			require.NoError(t, err)
			handles[i] = h
		}
		recorders := []*recorder{newRecorder(), newRecorder(), newRecorder()}
		for i := 0; i < 300; i++ {
			k := rnd.Intn(len(handles))
			h, r := handles[k], recorders[k]
			switch rnd.Intn(5) {
			case 0, 1:
				require.NoError(t, h.Start(r.fn(h.RequestNumber()+1)))
			case 2:
				h.Cancel()
			case 3:
				if n := h.RequestNumber(); n > 0 {
					h.CancelRequest(uint64(rnd.Int63n(int64(n))) + 1)
				}
			case 4:
				select {
				case fh := <-e.multi.added:
					e.multi.complete(fh, nil)
				default:
				}
			}
		}
		for _, h := range handles {
			h.Cancel()
		}
		drain(t, c)
		for k, h := range handles {
			r := recorders[k]
			for seq := uint64(1); seq <= h.RequestNumber(); seq++ {
				errs := r.get(seq)
				require.Len(t, errs, 1, "handle %d request %d", k, seq)
				if errs[0] != nil {
					assert.Equal(t, ErrCanceled, errs[0])
				}
			}
		}
		assert.Equal(t, 0, c.Active())
	})
	t.Run("read abort", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		src := &failingReader{data: []byte("abc"), err: errors.New("disk gone")}
		require.NoError(t, h.SetSource(src))
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)

		p := make([]byte, 16)
		n, err := fh.readBody(p)
		assert.NoError(t, err)
		assert.Equal(t, "abc", string(p[:n]))
		_, err = fh.readBody(p)
		assert.ErrorIs(t, err, engine.ErrReadAbort)
		e.multi.complete(fh, &engine.TransferError{Code: engine.ErrAbortedByCallback})
		require.True(t, r.wait(1, waitFor))
		assert.ErrorIs(t, r.get(1)[0], ErrAbortedByCallback)

		reads := src.reads
		_, err = fh.readBody(p)
		assert.ErrorIs(t, err, engine.ErrReadAbort)
		assert.Equal(t, reads, src.reads)
	})
	t.Run("progress", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		var calls int
		require.NoError(t, h.SetProgressCallback(func(_, _, _, _ int64) bool {
			calls++
			return calls < 2
		}))
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		assert.Equal(t, false, fh.option(engine.OptNoProgress))
		reporter := fh.option(engine.OptXferInfoFunction).(engine.ProgressReporter)
		assert.True(t, reporter.Progress(0, 0, 0, 0))
		assert.False(t, reporter.Progress(0, 0, 0, 0))
		e.multi.complete(fh, nil)
		require.True(t, r.wait(1, waitFor))
		assert.False(t, reporter.Progress(0, 0, 0, 0))
		assert.Equal(t, 2, calls)
	})
	t.Run("reset", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.SetURL("http://example.com/"))
		require.NoError(t, h.AddHeaderLine("X-A: 1"))
		require.NoError(t, h.AddHTTP200Alias("ICY 200 OK"))
		require.NoError(t, h.AddResolve("example.com:80:127.0.0.1"))
		f := engine.NewForm()
		f.AddField("a", "b")
		require.NoError(t, h.SetForm(f))
		require.NoError(t, h.SetPostFields([]byte("x=1")))
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		e.multi.complete(fh, nil)
		require.True(t, r.wait(1, waitFor))

		require.NoError(t, h.Reset())
		assert.Equal(t, "", h.URL())
		assert.Empty(t, h.Headers())
		assert.Empty(t, h.HTTP200Aliases())
		assert.Empty(t, h.Resolves())
		assert.False(t, h.HasPostData())
		assert.Equal(t, Timings{}, h.Timings())
		assert.Equal(t, "", fh.option(engine.OptURL))
		assert.Nil(t, fh.option(engine.OptHTTPHeader))
		assert.Nil(t, fh.option(engine.OptHTTPPost))
		assert.Equal(t, 0, fh.resetCount())
	})
	t.Run("reset shared list", func(t *testing.T) {
		c, _ := newFakeCoordinator(t)
		shared := NewStringList("X-A: 1")
		h1, err := c.NewHandle()
		require.NoError(t, err)
		h2, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h1.SetHeaders(shared))
		require.NoError(t, h2.SetHeaders(shared))
		require.NoError(t, h1.Reset())
		assert.Empty(t, h1.Headers())
		assert.Equal(t, []string{"X-A: 1"}, h2.Headers())
	})
	t.Run("reset running", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		require.NoError(t, h.Reset())
		assert.Equal(t, 1, fh.resetCount())
	})
	t.Run("seek body", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.SetSource(strings.NewReader("abcdef")))
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		seeker := fh.option(engine.OptSeekFunction).(engine.BodySeeker)

		p := make([]byte, 2)
		require.NoError(t, seeker.SeekBody(2, engine.SeekSet))
		n, err := fh.readBody(p)
		require.NoError(t, err)
		assert.Equal(t, "cd", string(p[:n]))
		require.NoError(t, seeker.SeekBody(-1, engine.SeekCur))
		n, err = fh.readBody(p)
		require.NoError(t, err)
		assert.Equal(t, "de", string(p[:n]))
		require.NoError(t, seeker.SeekBody(-1, engine.SeekEnd))
		n, err = fh.readBody(p)
		require.NoError(t, err)
		assert.Equal(t, "f", string(p[:n]))
		assert.ErrorIs(t, seeker.SeekBody(0, engine.Origin(99)), engine.ErrSeekFail)
		assert.ErrorIs(t, seeker.SeekBody(-10, engine.SeekSet), engine.ErrSeekFail)

		e.multi.complete(fh, nil)
		require.True(t, r.wait(1, waitFor))
		assert.ErrorIs(t, seeker.SeekBody(0, engine.SeekSet), engine.ErrSeekFail)
	})
	t.Run("seek unseekable", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.SetSource(&failingReader{data: []byte("abc")}))
		require.NoError(t, h.Start(noopCompletion))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		seeker := fh.option(engine.OptSeekFunction).(engine.BodySeeker)
		assert.ErrorIs(t, seeker.SeekBody(0, engine.SeekSet), engine.ErrSeekFail)
	})
	t.Run("sink failure", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.SetSink(failingWriter{}))
		require.NoError(t, h.Start(noopCompletion))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		assert.Equal(t, 0, fh.writeBody([]byte("OK")))
	})
	t.Run("open socket after cancel", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = ln.Close() }()
		rawURL := "http://" + ln.Addr().String() + "/"
		require.NoError(t, c.SetRateLimits(ratelimit.HTTP, ratelimit.Limit{MaxConnections: 1, Period: time.Hour}))
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.SetURL(rawURL))
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		fh := e.multi.waitAdded(waitFor)
		require.NotNil(t, fh)
		opener := fh.option(engine.OptOpenSocketFunction).(engine.SocketOpener)

		// Queue the cancel ahead of the socket's admission.
		gate := make(chan struct{})
		require.NoError(t, c.loop.RunAsync(func() { <-gate }))
		require.NoError(t, c.loop.RunAsync(h.Cancel))
		opened := make(chan error, 1)
		go func() {
			addr := engine.SockAddr{Network: "tcp", Address: ln.Addr().String()}
			s, err := opener.OpenSocket(context.Background(), engine.PurposeIPConnection, addr)
			if s != nil {
				_ = s.Close()
			}
			opened <- err
		}()
		assert.Eventually(t, func() bool { return c.loop.Pending() == 2 }, waitFor, time.Millisecond)
		close(gate)

		select {
		case err = <-opened:
			assert.ErrorIs(t, err, engine.ErrBadSocket)
		case <-time.After(waitFor):
			require.FailNow(t, "open socket did not return")
		}
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(1))
		assert.Equal(t, uint64(0), c.Statistics().Snapshot().OpenSockets)
		assert.Equal(t, 0, c.Sockets())
		assert.True(t, c.MayAcquireConnectionHTTP(rawURL), "admission budget untouched")
	})
	t.Run("start after handle close", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.Equal(t, ErrClosed, h.Start(noopCompletion))
		drain(t, c)
		adds, _ := e.multi.counts()
		assert.Equal(t, 0, adds)
		assert.Equal(t, uint64(0), h.RequestNumber())
	})
	t.Run("unknown socket", func(t *testing.T) {
		c, _ := newFakeCoordinator(t)
		require.NoError(t, c.loop.RunSync(func() { c.unbindSocket(99999) }))
		assert.Equal(t, 0, c.Sockets())

		a, b := net.Pipe()
		defer func() { _ = b.Close() }()
		require.NoError(t, c.closer.CloseSocket(&socket{Conn: a, fd: 99999}))
		snap := c.Statistics().Snapshot()
		assert.Equal(t, uint64(0), snap.OpenSockets)
		assert.Equal(t, uint64(1), snap.CloseSockets)
	})
	t.Run("may acquire", func(t *testing.T) {
		c, _ := newFakeCoordinator(t)
		limit := ratelimit.Limit{MaxConnections: 2, Period: time.Hour}
		require.NoError(t, c.SetRateLimits(ratelimit.HTTP, limit))
		assert.True(t, c.MayAcquireConnectionHTTP("http://a.example/"))
		assert.True(t, c.MayAcquireConnectionHTTP("http://b.example/"))
		assert.False(t, c.MayAcquireConnectionHTTP("http://c.example/"))
		assert.True(t, c.MayAcquireConnectionHTTPS("https://a.example/"))
	})
	t.Run("allocation error", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		e.failAlloc = true
		h, err := c.NewHandle()
		assert.Nil(t, h)
		var allocErr *AllocationError
		assert.ErrorAs(t, err, &allocErr)
	})
	t.Run("detached", func(t *testing.T) {
		h, err := NewHandle(WithEngine(newFakeEngine()))
		require.NoError(t, err)
		assert.Nil(t, h.Coordinator())
		assert.ErrorIs(t, h.Start(noopCompletion), ErrDetached)
	})
	t.Run("bind", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		d, err := NewHandle(WithEngine(e))
		require.NoError(t, err)
		require.NoError(t, d.SetURL("http://example.com/"))
		require.NoError(t, d.AddHeaderLine("X-A: 1"))
		b, err := d.Bind(c)
		require.NoError(t, err)
		assert.Same(t, c, b.Coordinator())
		assert.NotEqual(t, d.ID(), b.ID())
		assert.Equal(t, "http://example.com/", b.URL())
		assert.Equal(t, []string{"X-A: 1"}, b.Headers())
		assert.Equal(t, uint64(0), b.RequestNumber())
		assert.ErrorIs(t, b.Perform(context.Background()), ErrBound)
	})
	t.Run("close", func(t *testing.T) {
		c, e := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		require.NoError(t, h.Start(r.fn(1)))
		require.NotNil(t, e.multi.waitAdded(waitFor))
		require.NoError(t, c.Close())
		require.True(t, r.wait(1, waitFor))
		assert.Equal(t, []error{ErrCanceled}, r.get(1))
		assert.ErrorIs(t, h.Start(r.fn(2)), ErrClosed)
		assert.NoError(t, c.Close())
	})
	t.Run("close with queued start", func(t *testing.T) {
		c, _ := newFakeCoordinator(t)
		h, err := c.NewHandle()
		require.NoError(t, err)
		r := newRecorder()
		gate := make(chan struct{})
		require.NoError(t, c.loop.RunAsync(func() {
			<-gate
			c.closed = true
		}))
		require.NoError(t, h.Start(r.fn(1)))
		close(gate)
		require.True(t, r.wait(1, waitFor))
		errs := r.get(1)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrClosed)
	})
}

type failingReader struct {
	data  []byte
	err   error
	reads int
}

func (r *failingReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	return 0, r.err
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}
