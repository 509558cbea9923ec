// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gogama/evhttp"
	"github.com/gogama/evhttp/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configPath  string
	headers     []string
	resolves    []string
	timeout     time.Duration
	retries     int
	debug       bool
	data        string
	contentType string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "evfetch",
		Short:         "Fetch URLs concurrently over one event loop",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default ./evhttp.yaml)")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "request header, as \"Name: value\"")
	flags.StringArrayVar(&opts.resolves, "resolve", nil, "resolve override, as HOST:PORT:ADDRESS")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (overrides configuration)")
	flags.IntVar(&opts.retries, "retries", 0, "retries after the first attempt (overrides configuration)")
	flags.BoolVar(&opts.debug, "debug", false, "debug logging as text")

	get := &cobra.Command{
		Use:   "get URL...",
		Short: "GET each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, opts, http.MethodGet, args)
		},
	}
	post := &cobra.Command{
		Use:   "post URL...",
		Short: "POST a body to each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fetch(cmd, opts, http.MethodPost, args)
		},
	}
	post.Flags().StringVarP(&opts.data, "data", "d", "", "request body")
	post.Flags().StringVar(&opts.contentType, "content-type", "application/x-www-form-urlencoded", "request body content type")

	root.AddCommand(get, post)
	return root
}

func newLogger(debug bool, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.Out = out
	if debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// settings loads the environment and configuration, then applies the
// flags which were set explicitly.
func settings(cmd *cobra.Command, opts *options, log logrus.FieldLogger) (*config.Settings, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("evfetch: .env: %w", err)
		}
		log.Debug("evfetch: no .env file, using process environment")
	}
	var s *config.Settings
	var err error
	if opts.configPath != "" {
		s, err = config.LoadFile(opts.configPath)
	} else {
		s, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("timeout") {
		s.Timeout = opts.timeout
	}
	if cmd.Flags().Changed("retries") {
		s.Retries = opts.retries
	}
	return s, s.Validate()
}

func parseHeaders(lines []string) (http.Header, error) {
	h := make(http.Header)
	for _, line := range lines {
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, fmt.Errorf("evfetch: malformed header %q", line)
		}
		h.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	}
	return h, nil
}

func newClient(s *config.Settings, c *evhttp.Coordinator, resolves []string, log logrus.FieldLogger) *evhttp.Client {
	handlers := &evhttp.HandlerGroup{}
	handlers.PushBack(evhttp.AfterAttempt, attemptLogger{log})
	cl := &evhttp.Client{
		Coordinator:   c,
		RetryPolicy:   s.RetryPolicy(),
		TimeoutPolicy: s.TimeoutPolicy(),
		Handlers:      handlers,
	}
	if len(resolves) > 0 {
		cl.Resolves = evhttp.NewStringList(resolves...)
	}
	return cl
}
