// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

func newTransport(cfg MultiConfig) (*http.Transport, error) {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.DisableProxy {
		t.Proxy = nil
	}
	if cfg.TLSClientConfig != nil {
		t.TLSClientConfig = cfg.TLSClientConfig.Clone()
	}
	if !cfg.DisableHTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

var plainDialer net.Dialer

// dialContext dials on behalf of the transfer carried by ctx. A
// connection dialed for one transfer may be pooled and reused by later
// transfers; it remains tied to the closer of the transfer that opened
// it.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	t := transferFrom(ctx)
	if t == nil {
		return plainDialer.DialContext(ctx, network, addr)
	}
	return t.dial(ctx, network, addr)
}

func (t *transfer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	addrs := []string{addr}
	if alt, ok := t.resolves[strings.ToLower(addr)]; ok {
		addrs = alt
	}
	if t.o.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.o.connectTimeout)
		defer cancel()
	}
	var err error
	for _, a := range addrs {
		var conn net.Conn
		conn, err = t.dialOne(ctx, network, a)
		if err == nil {
			return conn, nil
		}
		if refused(err) {
			break
		}
	}
	return nil, err
}

func (t *transfer) dialOne(ctx context.Context, network, addr string) (net.Conn, error) {
	if t.o.opener == nil {
		return plainDialer.DialContext(ctx, network, addr)
	}
	s, err := t.o.opener.OpenSocket(ctx, PurposeIPConnection, SockAddr{Network: network, Address: addr})
	if err != nil {
		switch {
		case errors.Is(err, ErrThrottled):
			t.fail(transferError(ErrThrottled, err))
		case errors.Is(err, ErrBadSocket):
			t.fail(transferError(ErrCouldntConnect, err))
		}
		return nil, err
	}
	return &closingConn{Socket: s, closer: t.o.closer}, nil
}

func refused(err error) bool {
	return errors.Is(err, ErrBadSocket) || errors.Is(err, ErrThrottled)
}

// A closingConn routes Close through the SocketCloser of the transfer
// which opened it, exactly once.
type closingConn struct {
	Socket
	closer SocketCloser
	once   sync.Once
	err    error
}

func (c *closingConn) Close() error {
	c.once.Do(func() {
		if c.closer == nil {
			c.err = c.Socket.Close()
			return
		}
		c.err = c.closer.CloseSocket(c.Socket)
	})
	return c.err
}
