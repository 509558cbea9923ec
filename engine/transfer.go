// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

const (
	chunkSize           = 16 * 1024
	defaultMaxRedirects = 30
)

// A transfer is one run of a native handle, built from a snapshot of
// the handle's options.
type transfer struct {
	h        *nativeHandle
	o        options
	req      *http.Request
	aliases  []string
	resolves map[string][]string

	abort   context.CancelFunc
	failure atomic.Pointer[TransferError]

	progressMu sync.Mutex
	ulTotal    int64
	ulNow      atomic.Int64
	dlNow      atomic.Int64
}

func newTransfer(h *nativeHandle, o options) (*transfer, error) {
	t := &transfer{
		h:        h,
		o:        o,
		aliases:  o.aliases.Items(),
		resolves: parseResolves(o.resolves.Items()),
	}
	req, err := newRequest(t, &t.o)
	if err != nil {
		return nil, err
	}
	t.req = req
	if req.ContentLength > 0 {
		t.ulTotal = req.ContentLength
	}
	return t, nil
}

type transferKey struct{}

func transferFrom(ctx context.Context) *transfer {
	t, _ := ctx.Value(transferKey{}).(*transfer)
	return t
}

func (t *transfer) run(ctx context.Context, rt http.RoundTripper) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.abort = cancel
	if t.o.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, t.o.timeout)
		defer cancelTimeout()
	}
	ctx = context.WithValue(ctx, transferKey{}, t)

	client := &http.Client{
		Transport:     rt,
		CheckRedirect: t.checkRedirect,
	}
	if t.o.share != nil {
		client.Jar = t.o.share.jar
	}
	resp, err := client.Do(t.req.WithContext(ctx))
	if err != nil {
		return t.finish(nil, t.classify(err))
	}
	defer resp.Body.Close()
	return t.finish(resp, t.receive(resp))
}

func (t *transfer) checkRedirect(req *http.Request, via []*http.Request) error {
	if !t.o.followLocation {
		return http.ErrUseLastResponse
	}
	limit := t.o.maxRedirs
	if limit < 0 {
		limit = defaultMaxRedirects
	}
	if len(via) > limit {
		err := transferError(ErrTooManyRedirects, fmt.Errorf("stopped after %d redirects", limit))
		t.fail(err)
		return err
	}
	return nil
}

func (t *transfer) receive(resp *http.Response) error {
	if t.o.failOnError && resp.StatusCode >= 400 && !aliased(t.aliases, resp) {
		return transferError(ErrHTTPReturnedError, fmt.Errorf("status %q", resp.Status))
	}
	dlTotal := resp.ContentLength
	if dlTotal < 0 {
		dlTotal = 0
	}
	if !t.report(dlTotal) {
		return t.err()
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if f := t.err(); f != nil {
				return f
			}
			t.dlNow.Add(int64(n))
			if t.o.writer != nil && t.o.writer.WriteBody(buf[:n]) != n {
				return transferError(ErrWriteFailed, nil)
			}
			if !t.report(dlTotal) {
				return t.err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return t.classify(err)
		}
	}
}

// report calls the progress function, if any, and aborts the transfer
// when it returns false.
func (t *transfer) report(dlTotal int64) bool {
	if t.o.noProgress || t.o.progress == nil {
		return true
	}
	t.progressMu.Lock()
	ok := t.o.progress.Progress(dlTotal, t.dlNow.Load(), t.ulTotal, t.ulNow.Load())
	t.progressMu.Unlock()
	if !ok {
		t.fail(transferError(ErrAbortedByCallback, errors.New("progress function returned false")))
	}
	return ok
}

// fail records the first failure of the transfer and aborts it.
func (t *transfer) fail(err *TransferError) {
	if t.failure.CompareAndSwap(nil, err) && t.abort != nil {
		t.abort()
	}
}

// err returns the recorded failure, if any.
func (t *transfer) err() error {
	if f := t.failure.Load(); f != nil {
		return f
	}
	return nil
}

func (t *transfer) classify(err error) error {
	if f := t.err(); f != nil {
		return f
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return transferError(ErrOperationTimedOut, err)
	case errors.Is(err, context.Canceled):
		return transferError(ErrAborted, err)
	case errors.As(err, &dnsErr):
		return transferError(ErrCouldntResolveHost, err)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return transferError(ErrCouldntConnect, err)
	default:
		return transferError(ErrTransferFailed, err)
	}
}

func (t *transfer) finish(resp *http.Response, err error) error {
	info := Info{
		DownloadSize: t.dlNow.Load(),
		UploadSize:   t.ulNow.Load(),
	}
	if resp != nil {
		info.ResponseCode = resp.StatusCode
		info.Status = resp.Status
		info.Proto = resp.Proto
		info.Header = resp.Header.Clone()
		info.ContentLength = resp.ContentLength
		info.EffectiveURL = resp.Request.URL.String()
	}
	t.h.setInfo(info)
	if err == nil {
		return t.err()
	}
	return err
}

// bodyReader adapts a BodyReader to the request body.
type bodyReader struct {
	t *transfer
	r BodyReader
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if f := b.t.err(); f != nil {
		return 0, f
	}
	n, err := b.r.ReadBody(p)
	if n > 0 {
		b.t.ulNow.Add(int64(n))
	}
	switch {
	case err == nil || err == io.EOF:
		if n > 0 && !b.t.report(0) {
			return n, b.t.err()
		}
		return n, err
	case errors.Is(err, ErrReadAbort):
		te := transferError(ErrAbortedByCallback, err)
		b.t.fail(te)
		return n, te
	default:
		te := transferError(ErrReadAbort, err)
		b.t.fail(te)
		return n, te
	}
}

func (b *bodyReader) Close() error {
	return nil
}
