// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gogama/evhttp"
	"github.com/gogama/evhttp/request"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type result struct {
	url      string
	status   int
	size     int
	attempts int
	total    time.Duration
	connect  time.Duration
	err      error
}

func fetch(cmd *cobra.Command, opts *options, method string, urls []string) error {
	log := newLogger(opts.debug, cmd.ErrOrStderr())
	s, err := settings(cmd, opts, log)
	if err != nil {
		return err
	}
	header, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	var body []byte
	if method == http.MethodPost {
		body = []byte(opts.data)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", opts.contentType)
		}
	}

	c, err := evhttp.NewCoordinator(s.Coordinator(log))
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	cl := newClient(s, c, opts.resolves, log)
	results := run(cmd.Context(), cl, method, urls, body, header)
	failed := report(cmd.OutOrStdout(), results)
	log.WithField("stats", c.Statistics().Snapshot()).Debug("evfetch: done")
	if failed > 0 {
		return fmt.Errorf("evfetch: %d of %d fetches failed", failed, len(urls))
	}
	return nil
}

// run fetches every URL concurrently. Results are in URL order.
func run(ctx context.Context, cl *evhttp.Client, method string, urls []string, body []byte, header http.Header) []result {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]result, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = fetchOne(ctx, cl, method, u, body, header)
		}(i, u)
	}
	wg.Wait()
	return results
}

func fetchOne(ctx context.Context, cl *evhttp.Client, method, u string, body []byte, header http.Header) result {
	r := result{url: u}
	p, err := request.NewPlanWithContext(ctx, method, u, body)
	if err != nil {
		r.err = err
		return r
	}
	for k, v := range header {
		p.Header[k] = append([]string(nil), v...)
	}
	e, err := cl.Do(p)
	r.status = e.StatusCode()
	r.size = len(e.Body)
	r.attempts = e.Attempt + 1
	r.total = e.Timings.Total()
	r.connect = e.Timings.Connect()
	r.err = err
	return r
}

// report prints one line per result and returns the number of failed
// fetches.
func report(w io.Writer, results []result) int {
	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "ERR %s attempts=%d %v\n", r.url, r.attempts, r.err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%d %s size=%d attempts=%d total=%s connect=%s\n",
			r.status, r.url, r.size, r.attempts, r.total, r.connect)
	}
	return failed
}

// attemptLogger logs each attempt at debug level.
type attemptLogger struct {
	log logrus.FieldLogger
}

func (l attemptLogger) Handle(_ evhttp.Event, e *request.Execution) {
	entry := l.log.WithFields(logrus.Fields{
		"url":     e.Plan.URL.String(),
		"attempt": e.Attempt,
		"request": e.RequestNumber,
		"status":  e.StatusCode(),
	})
	if e.Err != nil {
		entry.WithError(e.Err).Debug("evfetch: attempt failed")
		return
	}
	entry.Debug("evfetch: attempt")
}
